package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/llm"
)

func TestNew(t *testing.T) {
	t.Parallel()

	c, err := llm.New(llm.Config{Provider: "openai", OpenAIAPIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIClient{}, c)

	c, err = llm.New(llm.Config{Provider: "Anthropic", AnthropicAPIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &llm.AnthropicClient{}, c)

	_, err = llm.New(llm.Config{Provider: "anthropic"})
	require.ErrorIs(t, err, llm.ErrNotConfigured)

	_, err = llm.New(llm.Config{Provider: "openai"})
	require.ErrorIs(t, err, llm.ErrNotConfigured)

	_, err = llm.New(llm.Config{Provider: "cohere", OpenAIAPIKey: "k"})
	require.ErrorIs(t, err, llm.ErrUnknownProvider)
}
