package llm_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/llm"
)

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "7", want: 7 * time.Second},
		{name: "fractional seconds", value: "1.5", want: 1500 * time.Millisecond},
		{name: "negative", value: "-3", want: 0},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, llm.ParseRetryAfter(tt.value, now))
		})
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := &llm.StatusError{Provider: "openai", StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	assert.True(t, err.IsRateLimited())
	assert.Equal(t, "openai API error (429 Too Many Requests): slow down", err.Error())

	wrapped := fmt.Errorf("analyze: %w", err)
	got, ok := llm.AsStatusError(wrapped)
	assert.True(t, ok)
	assert.Same(t, err, got)
}
