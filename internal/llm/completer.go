// Package llm talks to chat-completion APIs. Clients make a single attempt
// per call; retry decisions belong to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	// ErrNotConfigured is returned when the selected provider has no API key.
	ErrNotConfigured = errors.New("llm provider not configured")
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown llm provider")
	// ErrEmptyResponse is returned when the API answered without any text.
	ErrEmptyResponse = errors.New("llm returned an empty response")
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider to return a single JSON object when it supports it.
	JSON bool
}

// Response is the text the model produced.
type Response struct {
	Text  string
	Model string
}

// Completer sends a prompt to a model.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// StatusError is a non-2xx answer from a completion API.
type StatusError struct {
	Provider   string
	StatusCode int
	// RetryAfter is the server's requested wait, zero when absent.
	RetryAfter time.Duration
	Message    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s API error (%d %s)", e.Provider, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsRateLimited reports whether the API answered 429.
func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// AsStatusError unwraps err to a *StatusError.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}

// ParseRetryAfter reads a Retry-After header value: delta-seconds or an HTTP
// date relative to now. Missing, malformed or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
