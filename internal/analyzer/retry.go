package analyzer

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/llm"
)

// RetryPolicy retries rate-limited completions.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the first retry; it doubles each time.
	BaseDelay time.Duration
}

// DefaultRetryPolicy waits at least 1s, 2s and 4s across three retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

func isRateLimited(err error) bool {
	statusErr, ok := llm.AsStatusError(err)
	return ok && statusErr.IsRateLimited()
}

func retryAfter(err error) time.Duration {
	if statusErr, ok := llm.AsStatusError(err); ok {
		return statusErr.RetryAfter
	}
	return 0
}

// run calls fn under the policy. Only 429 answers are retried, and each wait
// is the larger of the server's Retry-After and the exponential backoff.
func (p RetryPolicy) run(
	ctx context.Context,
	sleep retry.SleepFunc,
	onRetry func(retry int, delay time.Duration, err error),
	fn func() error,
) error {
	maxRetries := max(p.MaxRetries, 0)
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return retry.Retry(ctx, retry.Config{
		MaxAttempts:  maxRetries + 1,
		InitialDelay: baseDelay,
		Multiplier:   2,
		IsRetryable:  isRateLimited,
		MinDelay:     retryAfter,
		Sleep:        sleep,
		OnRetry:      onRetry,
	}, fn)
}
