package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/campus/internal/clock"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestDo_DelayDoubles(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), 3, 20*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return errors.New("again")
		}, WithClock(fc))
	}()

	waitPending := func() {
		require.Eventually(t, func() bool { return fc.Pending() == 1 }, time.Second, time.Millisecond)
	}

	waitPending()
	assert.EqualValues(t, 1, calls.Load())
	fc.Advance(19 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load(), "first wait is the base delay")
	fc.Advance(time.Millisecond)

	waitPending()
	assert.EqualValues(t, 2, calls.Load())
	fc.Advance(39 * time.Millisecond)
	assert.EqualValues(t, 2, calls.Load(), "second wait is doubled")
	fc.Advance(time.Millisecond)

	select {
	case err := <-done:
		assert.EqualError(t, err, "again")
	case <-time.After(time.Second):
		t.Fatal("Do did not return after the last attempt")
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.Zero(t, fc.Pending())
}

func TestDo_CancelStopsTimer(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, 3, time.Second, func(context.Context) error {
			return errors.New("down")
		}, WithClock(fc))
	}()

	require.Eventually(t, func() bool { return fc.Pending() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, fc.Pending())
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), 3, time.Millisecond, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("once")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
