// Package chrono abstracts the wall clock so date inference can be tested.
package chrono

import (
	"fmt"
	"time"
)

// API is the clock used by everything that needs "now" in the listing's timezone.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// Standard reads the system clock in a fixed location.
type Standard struct {
	location *time.Location
}

// NewStandard loads the named location, e.g. "Asia/Tokyo".
func NewStandard(location string) (Standard, error) {
	loc, err := time.LoadLocation(location)
	if err != nil {
		return Standard{}, fmt.Errorf("load location %q: %w", location, err)
	}
	return Standard{location: loc}, nil
}

func (s Standard) Now() time.Time {
	return time.Now().In(s.location)
}

func (s Standard) Location() *time.Location {
	return s.location
}

// Fixed is a clock that always reports T. Loc defaults to T's location.
type Fixed struct {
	T   time.Time
	Loc *time.Location
}

func (f Fixed) Now() time.Time {
	return f.T.In(f.Location())
}

func (f Fixed) Location() *time.Location {
	if f.Loc != nil {
		return f.Loc
	}
	return f.T.Location()
}
