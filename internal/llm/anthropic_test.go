package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/llm"
)

func TestAnthropicClient_Complete(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "{\"summary\":\"fine\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	client := llm.NewAnthropicClient("ak-test", srv.URL, "claude-3-5-haiku-latest", 5*time.Second)
	resp, err := client.Complete(context.Background(), llm.Request{System: "sys", Prompt: "hello", MaxTokens: 64})
	require.NoError(t, err)

	assert.JSONEq(t, `{"summary":"fine"}`, resp.Text)
	assert.Equal(t, "claude-3-5-haiku-latest", resp.Model)
	assert.Equal(t, "claude-3-5-haiku-latest", got["model"])
	assert.InDelta(t, 64, got["max_tokens"], 0)
}

func TestAnthropicClient_RateLimited(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`))
	}))
	defer srv.Close()

	client := llm.NewAnthropicClient("ak-test", srv.URL, "claude-3-5-haiku-latest", 5*time.Second)
	_, err := client.Complete(context.Background(), llm.Request{Prompt: "hello", MaxTokens: 64})
	require.Error(t, err)

	statusErr, ok := llm.AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ProviderAnthropic, statusErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, 4*time.Second, statusErr.RetryAfter)
	assert.Equal(t, int32(1), calls.Load())
}
