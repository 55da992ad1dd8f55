// Package retry turns "poll until the page has it" loops into a bounded policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrNotReady is returned (or wrapped) by an operation that should be tried again.
	ErrNotReady = errors.New("not ready")
	// ErrExhausted is wrapped by Do when every attempt returned ErrNotReady.
	ErrExhausted = errors.New("retry attempts exhausted")
)

// Policy is a fixed-interval, bounded retry policy.
type Policy struct {
	Attempts int
	Interval time.Duration
}

// Every returns a policy of n attempts spaced by interval.
func Every(interval time.Duration, n int) Policy {
	return Policy{Attempts: n, Interval: interval}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// Do runs op until it succeeds, fails with an error that is not ErrNotReady, or
// the attempts run out. Only the last case yields an ErrExhausted error.
func (p Policy) Do(ctx context.Context, op func() error) error {
	err := backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrNotReady) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx))
	if errors.Is(err, ErrNotReady) {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, max(p.Attempts, 1), err)
	}
	return err
}

// NotReady wraps a description of what is missing with ErrNotReady.
func NotReady(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotReady, fmt.Sprintf(format, args...))
}
