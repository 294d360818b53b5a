package service

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

// FieldMapping names the dataset item keys to read. Each configured name is
// tried first, then a list of common alternatives.
type FieldMapping struct {
	ID        string
	URL       string
	Content   string
	CreatedAt string
}

var (
	idFallbacks        = []string{"id", "_id", "externalId", "external_id", "postId", "tweetId"}
	urlFallbacks       = []string{"url", "link", "sourceUrl", "source", "permalink"}
	contentFallbacks   = []string{"text", "content", "body", "markdown", "html", "description", "fullText"}
	createdAtFallbacks = []string{"createdAt", "created_at", "timestamp", "date", "publishedAt", "published_at"}
)

// rawItem is what mapstructure decodes a dataset item into after the
// configured field names have been resolved.
type rawItem struct {
	ID        string    `mapstructure:"id"`
	URL       string    `mapstructure:"url"`
	Content   string    `mapstructure:"content"`
	CreatedAt time.Time `mapstructure:"created_at"`
}

// pick returns the first key of item with a non-empty value.
func pick(item map[string]any, preferred string, fallbacks []string) any {
	if preferred != "" {
		if v, ok := item[preferred]; ok && !isBlank(v) {
			return v
		}
	}
	for _, key := range fallbacks {
		if v, ok := item[key]; ok && !isBlank(v) {
			return v
		}
	}
	return nil
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

// mapItem converts one dataset item. ok is false when the item has no
// content or no usable identifier.
func mapItem(item map[string]any, fields FieldMapping) (domain.DatasetItem, bool, error) {
	resolved := map[string]any{}
	for key, value := range map[string]any{
		"id":         pick(item, fields.ID, idFallbacks),
		"url":        pick(item, fields.URL, urlFallbacks),
		"content":    pick(item, fields.Content, contentFallbacks),
		"created_at": pick(item, fields.CreatedAt, createdAtFallbacks),
	} {
		if value != nil {
			resolved[key] = value
		}
	}

	var raw rawItem
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
		DecodeHook:       timeHook,
	})
	if err != nil {
		return domain.DatasetItem{}, false, fmt.Errorf("create decoder: %w", err)
	}
	if err = decoder.Decode(resolved); err != nil {
		return domain.DatasetItem{}, false, fmt.Errorf("decode item: %w", err)
	}

	out := domain.DatasetItem{
		ExternalID: strings.TrimSpace(raw.ID),
		Source:     strings.TrimSpace(raw.URL),
		Content:    strings.TrimSpace(raw.Content),
	}
	if !raw.CreatedAt.IsZero() {
		t := raw.CreatedAt.UTC()
		out.SourceCreatedAt = &t
	}

	if out.Content == "" {
		return out, false, nil
	}
	if out.ExternalID == "" {
		if out.Source == "" {
			return out, false, nil
		}
		out.ExternalID = domain.URLHash(out.Source)
	}
	return out, true, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// unixMillisThreshold separates unix seconds from unix milliseconds.
const unixMillisThreshold = 1e12

// timeHook decodes RFC 3339-ish strings and unix seconds or milliseconds.
// Unparseable values leave the time unset rather than failing the item.
func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, nil
	case json.Number:
		return numberTime(v), nil
	case float64:
		return unixTime(v), nil
	case int:
		return unixTime(float64(v)), nil
	case int64:
		return unixTime(float64(v)), nil
	default:
		return time.Time{}, nil
	}
}

// numberTime reads a unix timestamp kept as json.Number, preferring the
// exact integer form.
func numberTime(n json.Number) time.Time {
	if i, err := n.Int64(); err == nil {
		return unixTime(float64(i))
	}
	if f, err := n.Float64(); err == nil {
		return unixTime(f)
	}
	return time.Time{}
}

func unixTime(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v >= unixMillisThreshold {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Unix(int64(v), 0).UTC()
}
