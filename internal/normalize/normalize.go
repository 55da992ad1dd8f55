// Package normalize turns raw friend records into clean, queryable records.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rcliao/uma-friends/internal/factor"
	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/reference"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

var tracer = otel.Tracer("uma-friends/normalize")

const (
	report_factor        = "normalizer.factor"
	report_support_limit = "normalizer.support-limit"
	report_stale         = "normalizer.stale-reference"
)

// Normalizer owns the reference caches of one run. Build a new one per run so
// that updated reference data is picked up.
type Normalizer struct {
	resolver *reference.Resolver
	parser   factor.Parser
	tel      telemetry.API
}

// New creates a Normalizer over src. With strictRaces a factor name that is
// neither a skill nor a known race is typed unknown instead of race.
func New(src reference.Source, strictRaces bool, tel telemetry.API) *Normalizer {
	r := reference.NewResolver(src)
	return &Normalizer{
		resolver: r,
		parser:   factor.NewParser(factor.StandardChain(r, r, strictRaces)),
		tel:      telemetry.NewScopedAPI("normalize", tel),
	}
}

// CacheStats reports the resolver caches of this run.
func (n *Normalizer) CacheStats() reference.CacheStats {
	return n.resolver.CacheStats()
}

// Normalize builds the clean record for raw. It fails with a
// *reference.StaleReferenceError when the character image is unknown.
func (n *Normalizer) Normalize(ctx context.Context, raw model.RawFriend) (model.CleanFriend, error) {
	clean := model.CleanFriend{
		IdentityCode: raw.IdentityCode,
		PostedAt:     raw.PostedAt,
		Comment:      raw.Comment,
		Support:      n.support(raw),
		Key:          raw.Key,
	}
	if raw.CharacterImageReference == nil {
		return clean, nil
	}

	mainID, err := n.resolver.Character(ctx, *raw.CharacterImageReference)
	if err != nil {
		return model.CleanFriend{}, err
	}
	clean.MainCharacter = &model.MainCharacter{ID: mainID}
	if raw.FactorStrings == nil {
		return clean, nil
	}

	factors, skipped, err := n.parser.ParseAll(ctx, raw.FactorStrings)
	if err != nil {
		return model.CleanFriend{}, fmt.Errorf("parse factors of %s: %w", raw.Key, err)
	}
	for _, s := range skipped {
		n.tel.ReportWarning(report_factor, raw.Key.String(), s)
	}

	mains, totals := split(factors)
	clean.MainCharacter.Factors = mains
	clean.Factors = totals
	clean.Parents, err = n.parents(ctx, mainID, totals)
	if err != nil {
		return model.CleanFriend{}, fmt.Errorf("guess parents of %s: %w", raw.Key, err)
	}
	return clean, nil
}

func (n *Normalizer) support(raw model.RawFriend) *model.Support {
	if raw.SupportReference == nil && raw.SupportLimit == nil {
		return nil
	}
	s := &model.Support{ID: raw.SupportReference}
	if raw.SupportLimit != nil {
		if limit, ok := leadingDigit(*raw.SupportLimit); ok {
			s.Limit = &limit
		} else {
			n.tel.ReportWarning(report_support_limit, raw.Key.String(), *raw.SupportLimit)
		}
	}
	return s
}

// leadingDigit reads the limit break count off labels like "4凸".
func leadingDigit(s string) (int, bool) {
	r, _ := utf8.DecodeRuneInString(s)
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= '０' && r <= '９':
		return int(r - '０'), true
	}
	return 0, false
}

// split projects factors onto the main character's levels and the totals.
func split(factors []model.Factor) (mains, totals []model.LeveledFactor) {
	mains = make([]model.LeveledFactor, 0, len(factors))
	totals = make([]model.LeveledFactor, 0, len(factors))
	for _, f := range factors {
		if f.MainLevel != nil {
			mains = append(mains, model.LeveledFactor{Name: f.Name, Type: f.Type, Level: *f.MainLevel})
		}
		totals = append(totals, model.LeveledFactor{Name: f.Name, Type: f.Type, Level: f.TotalLevel})
	}
	return mains, totals
}

// parents guesses ancestors from unique skills that belong to someone other
// than the main character. Skills with no known owner are left out.
func (n *Normalizer) parents(ctx context.Context, mainID string, totals []model.LeveledFactor) ([]model.ParentGuess, error) {
	parents := make([]model.ParentGuess, 0)
	for _, f := range totals {
		if f.Type != model.FactorUniqueSkill {
			continue
		}
		skill, err := n.resolver.Skill(ctx, f.Name)
		if err != nil {
			return nil, err
		}
		if skill.ID == "" {
			continue
		}
		owner, found, err := n.resolver.Owner(ctx, skill.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			n.tel.ReportDebug("unique skill has no owner", "skill", skill.ID)
			continue
		}
		if owner == mainID {
			continue
		}
		parents = append(parents, model.ParentGuess{CharacterID: owner, Factor: f})
	}
	return parents, nil
}

// Split normalizes every record. Records with stale references are returned
// in failed; any other error aborts the batch.
func (n *Normalizer) Split(ctx context.Context, raws []model.RawFriend) (clean []model.CleanFriend, failed []model.RawFriend, err error) {
	ctx, span := tracer.Start(ctx, "Normalizer.Split")
	defer span.End()

	for _, raw := range raws {
		c, err := n.Normalize(ctx, raw)
		if errors.Is(err, reference.ErrStaleReference) {
			n.tel.ReportWarning(report_stale, raw.Key.String(), err)
			failed = append(failed, raw)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		clean = append(clean, c)
	}
	span.SetAttributes(
		attribute.Int("clean", len(clean)),
		attribute.Int("failed", len(failed)),
	)
	n.tel.ReportCount("clean", int64(len(clean)))
	n.tel.ReportCount("failed", int64(len(failed)))
	return clean, failed, nil
}
