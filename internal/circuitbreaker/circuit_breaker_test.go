package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-sync/internal/logging"
)

type manualClock struct{ t time.Time }

func (m *manualClock) now() time.Time          { return m.t }
func (m *manualClock) advance(d time.Duration) { m.t = m.t.Add(d) }

func newTestBreaker(clock *manualClock) *CircuitBreaker {
	return NewCircuitBreaker(&Config{
		Name:             "public-stats",
		MinCalls:         4,
		MaxConsecutive:   3,
		FailureThreshold: 0.5,
		OpenTimeout:      time.Minute,
		HalfOpenMaxCalls: 1,
		Now:              clock.now,
		Logger:           logging.NewNopLogger(),
	})
}

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.False(t, called)
}

func TestCircuitBreaker_OpensOnFailureRate(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState(), "2 of 4 calls failed")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	cb.ForceOpen()
	clock.advance(59 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	clock.advance(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	cb.ForceOpen()
	clock.advance(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	cb.ForceOpen()
	clock.advance(2 * time.Minute)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		// a second caller while the half-open trial call is in flight is rejected
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrTooManyRequests)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)

	ctx, cancel := context.WithCancel(context.Background())
	err := cb.Execute(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cb.GetStats().TotalCalls)

	assert.ErrorIs(t, cb.Execute(ctx, succeed), context.Canceled, "already-cancelled context short-circuits")
}

func TestCircuitBreaker_DeadlineCountsAsFailure(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)

	err := cb.Execute(context.Background(), func(context.Context) error {
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := cb.GetStats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.ConsecutiveFails)
	assert.Equal(t, "public-stats", stats.Name)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)

	cb.ForceOpen()
	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}
