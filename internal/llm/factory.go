package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and configures a provider.
type Config struct {
	Provider        string
	Model           string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicURL    string
	Timeout         time.Duration
}

// New builds the Completer for cfg.Provider.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrNotConfigured)
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.Timeout), nil
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrNotConfigured)
		}
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicURL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
