package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`, ok: true},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`, ok: true},
		{name: "prose around", in: "Sure! Here it is: {\"a\":{\"b\":2}} Hope that helps.", want: `{"a":{"b":2}}`, ok: true},
		{name: "none", in: "I cannot help with that.", ok: false},
		{name: "reversed", in: "} {", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := extractJSONObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCompletion(t *testing.T) {
	t.Parallel()

	text := "```json\n" + `{
  "summary": "  A new bridge opened downtown. ",
  "sentiment": "Positive",
  "keywords": ["bridge", " Bridge ", "", "downtown", "opening"]
}` + "\n```"

	got, err := parseCompletion(text, 10)
	require.NoError(t, err)
	assert.Equal(t, "A new bridge opened downtown.", got.Summary)
	assert.Equal(t, domain.SentimentPositive, got.Sentiment)
	assert.Equal(t, []string{"bridge", "downtown", "opening"}, got.Keywords)
}

func TestParseCompletion_CoercesUnknownSentiment(t *testing.T) {
	t.Parallel()

	for _, sentiment := range []string{`"mixed"`, `1`, `{"label":"positive"}`, `["positive"]`, `null`, `true`} {
		got, err := parseCompletion(`{"summary":"s","sentiment":`+sentiment+`,"keywords":[]}`, 10)
		require.NoError(t, err, sentiment)
		assert.Equal(t, domain.SentimentNeutral, got.Sentiment, sentiment)
		assert.Empty(t, got.Keywords)
	}

	got, err := parseCompletion(`{"summary":"s","keywords":["k"]}`, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentNeutral, got.Sentiment)
}

func TestParseCompletion_KeywordString(t *testing.T) {
	t.Parallel()

	got, err := parseCompletion(`{"summary":"s","sentiment":"negative","keywords":"a, b ,c"}`, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentNegative, got.Sentiment)
	assert.Equal(t, []string{"a", "b"}, got.Keywords)
}

func TestParseCompletion_Invalid(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"no json here",
		`{"summary": }`,
		`{"summary":"   ","sentiment":"positive"}`,
	} {
		_, err := parseCompletion(text, 10)
		require.ErrorIs(t, err, ErrInvalidCompletion, text)
	}
}

func TestSanitizeKeywords_Cap(t *testing.T) {
	t.Parallel()

	in := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	assert.Len(t, sanitizeKeywords(in, 10), 10)
	assert.Len(t, sanitizeKeywords(in, 0), 12)
}
