// Package retry runs idempotent operations with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/joescharf/campus/internal/clock"
)

// Option configures Do and Value.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock sets the clock that times the waits between attempts.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// Do calls fn up to attempts times. After the i-th failure (0-based) it waits
// baseDelay*2^i before trying again. It returns nil on the first success, the
// last error once attempts are exhausted, or ctx.Err() if ctx is cancelled
// while waiting.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func(context.Context) error, opts ...Option) error {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	if attempts < 1 {
		attempts = 1
	}
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		fired := make(chan struct{})
		t := o.clock.AfterFunc(delay, func() { close(fired) })
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-fired:
		}
		delay *= 2
	}
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, attempts int, baseDelay time.Duration, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := Do(ctx, attempts, baseDelay, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}
