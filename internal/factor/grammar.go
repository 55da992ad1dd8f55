// Package factor parses and classifies the factor strings of a listing.
//
// A factor string is `<name><total>` or `<name><total>(代表<main>)`, where
// both levels are a single digit.
package factor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MainMarker opens the main character's own level.
const MainMarker = "(代表"

// ErrMalformed is wrapped by every grammar error.
var ErrMalformed = errors.New("malformed factor")

// Spec is a factor string split into its parts, before classification.
type Spec struct {
	Name  string
	Total int
	Main  *int
}

// Parse splits s into name, total level and optional main level.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	head, tail, hasMain := strings.Cut(s, MainMarker)

	last, size := utf8.DecodeLastRuneInString(head)
	total, ok := digit(last)
	if !ok {
		return Spec{}, fmt.Errorf("%w %q: no total level", ErrMalformed, s)
	}
	spec := Spec{Name: head[:len(head)-size], Total: total}
	if spec.Name == "" {
		return Spec{}, fmt.Errorf("%w %q: empty name", ErrMalformed, s)
	}
	if !hasMain {
		return spec, nil
	}

	first, _ := utf8.DecodeRuneInString(tail)
	main, ok := digit(first)
	if !ok {
		return Spec{}, fmt.Errorf("%w %q: no main level", ErrMalformed, s)
	}
	if main > total {
		return Spec{}, fmt.Errorf("%w %q: main level %d above total %d", ErrMalformed, s, main, total)
	}
	spec.Main = &main
	return spec, nil
}

// digit accepts ASCII and full-width digits.
func digit(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= '０' && r <= '９':
		return int(r - '０'), true
	}
	return 0, false
}
