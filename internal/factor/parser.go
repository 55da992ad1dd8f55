package factor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/uma-friends/internal/model"
)

// Parser parses and classifies factor strings.
type Parser struct {
	chain Chain
}

func NewParser(chain Chain) Parser {
	return Parser{chain: chain}
}

// Parse parses one factor string. Grammar errors wrap ErrMalformed.
func (p Parser) Parse(ctx context.Context, s string) (model.Factor, error) {
	spec, err := Parse(s)
	if err != nil {
		return model.Factor{}, err
	}
	t, err := p.chain.Classify(ctx, spec.Name)
	if err != nil {
		return model.Factor{}, fmt.Errorf("classify %q: %w", spec.Name, err)
	}
	return model.Factor{
		Name:       spec.Name,
		Type:       t,
		TotalLevel: spec.Total,
		MainLevel:  spec.Main,
	}, nil
}

// ParseAll parses every string in order. Malformed strings are left out and
// returned in skipped; a lookup failure aborts with err.
func (p Parser) ParseAll(ctx context.Context, strs []string) (factors []model.Factor, skipped []error, err error) {
	factors = make([]model.Factor, 0, len(strs))
	for _, s := range strs {
		f, err := p.Parse(ctx, s)
		if errors.Is(err, ErrMalformed) {
			skipped = append(skipped, err)
			continue
		}
		if err != nil {
			return nil, skipped, err
		}
		factors = append(factors, f)
	}
	return factors, skipped, nil
}
