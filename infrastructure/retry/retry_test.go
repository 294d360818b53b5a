package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/retry"
)

var errTransient = errors.New("transient")

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestRetry_ExhaustsAndWraps(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	calls := 0
	err := retry.Retry(context.Background(), retry.Config{
		MaxAttempts:  4,
		InitialDelay: time.Second,
		Multiplier:   2,
		IsRetryable:  func(error) bool { return true },
		Sleep:        rec.sleep,
	}, func() error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestRetry_MinDelayRaisesWait(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	calls := 0
	err := retry.Retry(context.Background(), retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Second,
		Multiplier:   2,
		IsRetryable:  func(error) bool { return true },
		MinDelay:     func(error) time.Duration { return 5 * time.Second },
		Sleep:        rec.sleep,
	}, func() error {
		calls++
		if calls == 1 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	permanent := errors.New("permanent")
	err := retry.Retry(context.Background(), retry.Config{
		MaxAttempts: 4,
		IsRetryable: func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:       rec.sleep,
	}, func() error { return permanent })

	require.ErrorIs(t, err, permanent)
	require.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Empty(t, rec.delays)
}

func TestRetry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := retry.Retry(ctx, retry.DefaultConfig(), func() error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, retry.ErrContextCancelled)
	assert.False(t, called)
}

func TestRetry_SleepInterruptedByCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := retry.Retry(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
		IsRetryable:  func(error) bool { return true },
	}, func() error {
		cancel()
		return errTransient
	})

	require.ErrorIs(t, err, retry.ErrContextCancelled)
	require.ErrorIs(t, err, context.Canceled)
}
