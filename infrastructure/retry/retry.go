// Package retry runs an operation again when it fails with a retryable error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when every attempt failed with a retryable error.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context ends while waiting to retry.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config configures retry behavior.
type Config struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff. Zero means uncapped.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
	// IsRetryable decides whether err warrants another attempt.
	IsRetryable func(error) bool
	// MinDelay, if set, returns a lower bound for the wait after err
	// (a server-provided Retry-After, for example).
	MinDelay func(err error) time.Duration
	// Sleep replaces the real wait; tests use it to record delays.
	Sleep SleepFunc
	// OnRetry is called before each wait with the 0-based retry index.
	OnRetry func(retry int, delay time.Duration, err error)
}

// DefaultConfig returns a general-purpose configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  DefaultIsRetryable,
	}
}

// DefaultIsRetryable retries transient network failures.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

// Backoff returns the exponential delay before retry n (0-based).
func (c Config) Backoff(n int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(n)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.IsRetryable == nil {
		c.IsRetryable = DefaultIsRetryable
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error,
// exhausts MaxAttempts, or ctx ends.
func Retry(ctx context.Context, config Config, fn func() error) error {
	config.applyDefaults()

	var lastErr error

	for attempt := range config.MaxAttempts {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.IsRetryable(err) {
			return err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := config.Backoff(attempt)
		if config.MinDelay != nil {
			if floor := config.MinDelay(err); floor > delay {
				delay = floor
			}
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}

		if sleepErr := config.Sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, sleepErr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, config.MaxAttempts, lastErr)
}

// RetryWithDefaults runs fn with DefaultConfig.
func RetryWithDefaults(ctx context.Context, fn func() error) error {
	return Retry(ctx, DefaultConfig(), fn)
}
