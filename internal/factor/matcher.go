package factor

import (
	"context"

	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/reference"
)

// ScenarioLabel is the factor name of the URA scenario.
const ScenarioLabel = "URAシナリオ"

// Matcher classifies a factor name, reporting whether it matched.
type Matcher interface {
	Match(ctx context.Context, name string) (model.FactorType, bool, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, name string) (model.FactorType, bool, error)

func (f MatcherFunc) Match(ctx context.Context, name string) (model.FactorType, bool, error) {
	return f(ctx, name)
}

// StaticSet matches a fixed set of names.
type StaticSet struct {
	Type  model.FactorType
	names map[string]bool
}

func NewStaticSet(t model.FactorType, names ...string) StaticSet {
	set := StaticSet{Type: t, names: make(map[string]bool, len(names))}
	for _, n := range names {
		set.names[n] = true
	}
	return set
}

func (s StaticSet) Match(_ context.Context, name string) (model.FactorType, bool, error) {
	return s.Type, s.names[name], nil
}

var (
	BlueStats  = NewStaticSet(model.FactorBlueStat, "スピード", "スタミナ", "パワー", "根性", "賢さ")
	FieldTypes = NewStaticSet(model.FactorFieldType, "芝", "ダート")
	Distances  = NewStaticSet(model.FactorDistance, "短距離", "マイル", "中距離", "長距離")
	Strategies = NewStaticSet(model.FactorStrategy, "逃げ", "先行", "差し", "追込")
)

// Exact matches a single name.
type Exact struct {
	Name string
	Type model.FactorType
}

func (e Exact) Match(_ context.Context, name string) (model.FactorType, bool, error) {
	return e.Type, name == e.Name, nil
}

// SkillLookup finds a skill by name; a zero ID means not found.
type SkillLookup interface {
	Skill(ctx context.Context, name string) (reference.Skill, error)
}

// SkillMatcher matches any known skill, unique or common.
type SkillMatcher struct {
	Skills SkillLookup
}

func (m SkillMatcher) Match(ctx context.Context, name string) (model.FactorType, bool, error) {
	skill, err := m.Skills.Skill(ctx, name)
	if err != nil {
		return "", false, err
	}
	if skill.ID == "" {
		return "", false, nil
	}
	if skill.Unique {
		return model.FactorUniqueSkill, true, nil
	}
	return model.FactorCommonSkill, true, nil
}

// RaceLookup finds a race id by name.
type RaceLookup interface {
	Race(ctx context.Context, name string) (string, bool, error)
}

// RaceMatcher matches races known to the reference data.
type RaceMatcher struct {
	Races RaceLookup
}

func (m RaceMatcher) Match(ctx context.Context, name string) (model.FactorType, bool, error) {
	_, found, err := m.Races.Race(ctx, name)
	if err != nil {
		return "", false, err
	}
	return model.FactorRace, found, nil
}

// Default matches everything.
type Default model.FactorType

func (d Default) Match(context.Context, string) (model.FactorType, bool, error) {
	return model.FactorType(d), true, nil
}

// Chain tries each matcher in order; the first match wins.
type Chain []Matcher

// Classify returns the first matching type, or FactorUnknown when none matched.
func (c Chain) Classify(ctx context.Context, name string) (model.FactorType, error) {
	for _, m := range c {
		t, ok, err := m.Match(ctx, name)
		if err != nil {
			return "", err
		}
		if ok {
			return t, nil
		}
	}
	return model.FactorUnknown, nil
}

// StandardChain is the classification order of the listing: static sets,
// the scenario label, skills, then races.
//
// Without strict races any unmatched name is a race, so a skill missing from
// stale reference data is silently counted as a race. With strict races the
// name must be a known race, and anything else is unknown.
func StandardChain(skills SkillLookup, races RaceLookup, strictRaces bool) Chain {
	chain := Chain{
		BlueStats,
		FieldTypes,
		Distances,
		Strategies,
		Exact{Name: ScenarioLabel, Type: model.FactorURA},
		SkillMatcher{Skills: skills},
	}
	if strictRaces {
		return append(chain, RaceMatcher{Races: races}, Default(model.FactorUnknown))
	}
	return append(chain, Default(model.FactorRace))
}
