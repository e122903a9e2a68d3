// Package debounce coalesces bursts of calls into a single trailing call.
package debounce

import (
	"sync"
	"time"

	"github.com/joescharf/campus/internal/clock"
)

// Debouncer runs fn with the most recent argument once delay has passed
// without another Trigger.
type Debouncer[T any] struct {
	clock clock.Clock
	delay time.Duration
	fn    func(T)

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
}

// New returns a Debouncer. A nil clock means the real clock.
func New[T any](c clock.Clock, delay time.Duration, fn func(T)) *Debouncer[T] {
	if c == nil {
		c = clock.Real()
	}
	return &Debouncer[T]{clock: c, delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period with v as the pending argument.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	t := d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			d.fn(v)
		}
	})

	d.mu.Lock()
	if gen == d.gen {
		d.timer = t
	}
	d.mu.Unlock()
}

// Stop drops any pending call.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
