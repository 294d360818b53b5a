package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

// completion is the shape requested from the model. Sentiment and Keywords
// are decoded loosely: a non-string sentiment becomes neutral and keywords
// may arrive as a comma separated string.
type completion struct {
	Summary   string `json:"summary"`
	Sentiment any    `json:"sentiment"`
	Keywords  any    `json:"keywords"`
}

// extractJSONObject strips markdown code fences and returns the outermost
// {...} span of text.
func extractJSONObject(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// parseCompletion decodes and sanitizes a model answer.
func parseCompletion(text string, maxKeywords int) (*domain.Analysis, error) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidCompletion)
	}

	var c completion
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCompletion, err)
	}

	summary := strings.TrimSpace(c.Summary)
	if summary == "" {
		return nil, fmt.Errorf("%w: summary is empty", ErrInvalidCompletion)
	}

	return &domain.Analysis{
		Summary:   summary,
		Sentiment: sentimentOf(c.Sentiment),
		Keywords:  sanitizeKeywords(keywordList(c.Keywords), maxKeywords),
	}, nil
}

func sentimentOf(v any) domain.Sentiment {
	if s, ok := v.(string); ok {
		return domain.NormalizeSentiment(s)
	}
	return domain.SentimentNeutral
}

func keywordList(v any) []string {
	switch kw := v.(type) {
	case string:
		return strings.Split(kw, ",")
	case []any:
		out := make([]string, 0, len(kw))
		for _, item := range kw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// sanitizeKeywords trims, drops empties, removes case-insensitive repeats
// (first spelling wins) and caps the list at limit.
func sanitizeKeywords(keywords []string, limit int) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))

	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)

		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
