package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentiment is the overall tone assigned to a record.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// NormalizeSentiment maps free-form model output onto the three allowed
// values. Anything unrecognised becomes neutral.
func NormalizeSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// IsValid reports whether s is one of the allowed values.
func (s Sentiment) IsValid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// Analysis is the structured result stored in the analysis jsonb column.
type Analysis struct {
	Summary   string    `json:"summary"`
	Sentiment Sentiment `json:"sentiment"`
	Keywords  []string  `json:"keywords"`
}

// Value implements driver.Valuer.
func (a Analysis) Value() (driver.Value, error) {
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}
	return b, nil
}

var errAnalysisType = errors.New("unsupported analysis column type")

// Scan implements sql.Scanner. NULL leaves the zero value.
func (a *Analysis) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%w: %T", errAnalysisType, src)
	}

	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("unmarshal analysis: %w", err)
	}
	return nil
}
