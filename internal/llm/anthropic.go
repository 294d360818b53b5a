package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient calls the Anthropic Messages API through the official SDK.
type AnthropicClient struct {
	client anthropic.Client
	model  string
	now    func() time.Time
}

// NewAnthropicClient creates a client. SDK retries are off; an empty baseURL
// keeps the SDK default.
func NewAnthropicClient(apiKey, baseURL, model string, timeout time.Duration) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
		now:    time.Now,
	}
}

// Complete sends one Messages request. Anthropic has no JSON mode, so the
// prompt itself must ask for JSON.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, c.statusError(apiErr)
		}
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{Text: text.String(), Model: string(msg.Model)}, nil
}

func (c *AnthropicClient) statusError(apiErr *anthropic.Error) *StatusError {
	statusErr := &StatusError{
		Provider:   ProviderAnthropic,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
	}
	if apiErr.Response != nil {
		statusErr.RetryAfter = ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), c.now())
	}
	return statusErr
}
