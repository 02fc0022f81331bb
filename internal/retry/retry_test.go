package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-sync/internal/errors"
	"github.com/wallet-sync/internal/logging"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testConfig(sleeps *recordedSleeps) *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxDelay = 5 * time.Second
	cfg.Sleep = sleeps.sleep
	return cfg
}

func quietContext() context.Context {
	return logging.WithLogger(context.Background(), logging.NewNopLogger())
}

func TestWithExponentialBackoff_SucceedsAfterRetries(t *testing.T) {
	sleeps := &recordedSleeps{}
	calls := 0

	result := WithExponentialBackoff(quietContext(), testConfig(sleeps), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return apperrors.NewTransientError("DELETE /push/unsubscribe", errors.New("connection reset"))
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
}

func TestWithExponentialBackoff_DelayIsCapped(t *testing.T) {
	sleeps := &recordedSleeps{}

	result := WithExponentialBackoff(quietContext(), testConfig(sleeps), func(context.Context, int) error {
		return apperrors.NewTransientError("op", errors.New("down"))
	})

	assert.False(t, result.Success)
	assert.Equal(t, 5, result.Attempts)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, sleeps.delays)
}

func TestWithExponentialBackoff_StopsOnNonRetryable(t *testing.T) {
	sleeps := &recordedSleeps{}

	result := WithExponentialBackoff(quietContext(), testConfig(sleeps), func(context.Context, int) error {
		return apperrors.NewUpstreamError("DELETE /push/unsubscribe", 401, "")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, sleeps.delays)
	assert.True(t, apperrors.Is(result.LastError, apperrors.CategoryUnauthorized))
}

func TestWithExponentialBackoff_CustomRetryable(t *testing.T) {
	sleeps := &recordedSleeps{}
	cfg := testConfig(sleeps)
	cfg.MaxAttempts = 2
	cfg.Retryable = func(error) bool { return true }

	result := WithExponentialBackoff(quietContext(), cfg, func(context.Context, int) error {
		return errors.New("plain error")
	})
	assert.Equal(t, 2, result.Attempts)
}

func TestWithExponentialBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(quietContext())
	cfg := DefaultRetryConfig()
	cfg.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	result := WithExponentialBackoff(ctx, cfg, func(context.Context, int) error {
		return apperrors.NewTransientError("op", errors.New("down"))
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestWithRetry_WrapsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(quietContext())
	cancel()

	cause := apperrors.NewInvalidParameterError("endpoint", "cannot be empty")
	err := WithRetry(ctx, func(context.Context, int) error { return cause })
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 3}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 900*time.Millisecond, calculateDelay(cfg, 3))
	assert.Equal(t, time.Second, calculateDelay(cfg, 4))
}
