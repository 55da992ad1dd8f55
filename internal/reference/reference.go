// Package reference resolves listing values against the game's reference data:
// characters by image, skills by name, owners of unique skills and races.
package reference

import (
	"context"
	"errors"
	"fmt"
)

// ErrStaleReference matches every StaleReferenceError.
var ErrStaleReference = errors.New("stale reference data")

// StaleReferenceError means a record's character image matches no known
// character, usually because the reference data lags behind the site.
type StaleReferenceError struct {
	ImageReference string
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("no character with image %q", e.ImageReference)
}

func (e *StaleReferenceError) Is(target error) bool {
	return target == ErrStaleReference
}

// Skill is a reference skill. A zero ID is an unknown skill.
type Skill struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Unique bool   `json:"is_unique"`
}

// Source is read-only access to the reference data.
type Source interface {
	CharacterByImage(ctx context.Context, image string) (string, bool, error)
	SkillByName(ctx context.Context, name string) (Skill, bool, error)
	CharacterByUniqueSkill(ctx context.Context, skillID string) (string, bool, error)
	RaceByName(ctx context.Context, name string) (string, bool, error)
}

type hit struct {
	id    string
	found bool
}

// CacheStats counts memoized entries and source round trips.
type CacheStats struct {
	Characters int
	Skills     int
	Owners     int
	Races      int
	Queries    int
}

// Resolver memoizes Source lookups for the length of one normalizer run.
// Misses are memoized too. A Resolver is not safe for concurrent use.
type Resolver struct {
	src        Source
	characters map[string]hit
	skills     map[string]Skill
	owners     map[string]hit
	races      map[string]hit
	queries    int
}

// NewResolver creates a Resolver with empty caches.
func NewResolver(src Source) *Resolver {
	return &Resolver{
		src:        src,
		characters: make(map[string]hit),
		skills:     make(map[string]Skill),
		owners:     make(map[string]hit),
		races:      make(map[string]hit),
	}
}

// Character returns the id of the character drawn by image, or a
// StaleReferenceError.
func (r *Resolver) Character(ctx context.Context, image string) (string, error) {
	h, ok := r.characters[image]
	if !ok {
		id, found, err := r.src.CharacterByImage(ctx, image)
		r.queries++
		if err != nil {
			return "", fmt.Errorf("character by image: %w", err)
		}
		h = hit{id: id, found: found}
		r.characters[image] = h
	}
	if !h.found {
		return "", &StaleReferenceError{ImageReference: image}
	}
	return h.id, nil
}

// Skill returns the named skill, or a zero Skill when it is unknown.
func (r *Resolver) Skill(ctx context.Context, name string) (Skill, error) {
	if s, ok := r.skills[name]; ok {
		return s, nil
	}
	s, found, err := r.src.SkillByName(ctx, name)
	r.queries++
	if err != nil {
		return Skill{}, fmt.Errorf("skill by name: %w", err)
	}
	if !found {
		s = Skill{}
	}
	r.skills[name] = s
	return s, nil
}

// Owner returns the character whose unique skill is skillID.
func (r *Resolver) Owner(ctx context.Context, skillID string) (string, bool, error) {
	return r.memo(ctx, r.owners, skillID, r.src.CharacterByUniqueSkill, "character by unique skill")
}

// Race returns the id of the named race.
func (r *Resolver) Race(ctx context.Context, name string) (string, bool, error) {
	return r.memo(ctx, r.races, name, r.src.RaceByName, "race by name")
}

func (r *Resolver) memo(ctx context.Context, cache map[string]hit, key string,
	lookup func(context.Context, string) (string, bool, error), what string) (string, bool, error) {
	if h, ok := cache[key]; ok {
		return h.id, h.found, nil
	}
	id, found, err := lookup(ctx, key)
	r.queries++
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", what, err)
	}
	cache[key] = hit{id: id, found: found}
	return id, found, nil
}

func (r *Resolver) CacheStats() CacheStats {
	return CacheStats{
		Characters: len(r.characters),
		Skills:     len(r.skills),
		Owners:     len(r.owners),
		Races:      len(r.races),
		Queries:    r.queries,
	}
}
