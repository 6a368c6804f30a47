package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaPulse/internal/domain/errs"
)

var errDown = errors.New("backend down")

func TestPolicy_SucceedsAfterFailures(t *testing.T) {
	var delays []time.Duration
	p := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond},
		WithObserver(func(b Backoff) { delays = append(delays, b.Delay) }))

	calls := 0
	err := p.Do(context.Background(), "forecast:co2", func(context.Context) error {
		calls++
		if calls < 3 {
			return errDown
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
	_, tracked := p.Attempts("forecast:co2")
	assert.False(t, tracked)

	// a new failure on the same id starts from the base delay again
	delays = nil
	again := 0
	err = p.Do(context.Background(), "forecast:co2", func(context.Context) error {
		again++
		if again == 1 {
			return errDown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond}, delays)
}

func TestPolicy_ExhaustionWrapsLastError(t *testing.T) {
	var delays []time.Duration
	p := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond},
		WithObserver(func(b Backoff) { delays = append(delays, b.Delay) }))

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errDown
	})

	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindExhausted))
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
	assert.Equal(t, 0, p.InFlight())
}

func TestPolicy_PermanentErrorNotRetried(t *testing.T) {
	p := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errs.Permanent(errDown)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errDown)
	assert.False(t, errs.IsKind(err, errs.KindExhausted))
	assert.Equal(t, 0, p.InFlight())
}

func TestPolicy_ZeroRetries(t *testing.T) {
	p := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errDown
	}, MaxAttempts(0))

	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsKind(err, errs.KindExhausted))
}

func TestPolicy_CounterVisibleWhileInFlight(t *testing.T) {
	p := New(Config{MaxAttempts: 2, BaseDelay: time.Millisecond})

	var seen []int
	_ = p.Do(context.Background(), "op", func(context.Context) error {
		n, ok := p.Attempts("op")
		require.True(t, ok)
		seen = append(seen, n)
		return errDown
	})

	assert.Equal(t, []int{0, 1, 2}, seen)
	_, ok := p.Attempts("op")
	assert.False(t, ok)
}

func TestPolicy_CancelDuringBackoff(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(Config{MaxAttempts: 5, BaseDelay: time.Hour},
		WithClock(clk),
		WithObserver(func(Backoff) { cancel() }))

	calls := 0
	err := p.Do(ctx, "op", func(context.Context) error {
		calls++
		return errDown
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsKind(err, errs.KindCanceled))
	assert.Equal(t, 0, p.InFlight())
}

func TestDoResult(t *testing.T) {
	p := New(Config{MaxAttempts: 1, BaseDelay: time.Millisecond})

	calls := 0
	v, err := DoResult(context.Background(), p, "op", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errDown
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestPolicy_AttemptTimeout(t *testing.T) {
	p := New(Config{MaxAttempts: 0, BaseDelay: time.Millisecond, AttemptTimeout: 5 * time.Millisecond})

	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.True(t, errs.IsKind(err, errs.KindExhausted))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
