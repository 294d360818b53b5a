package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

var defaultFields = FieldMapping{ID: "id", URL: "url", Content: "text", CreatedAt: "createdAt"}

func TestMapItem_ConfiguredFields(t *testing.T) {
	t.Parallel()

	item, ok, err := mapItem(map[string]any{
		"id":        "abc",
		"url":       "https://example.com/a",
		"text":      "  hello world ",
		"createdAt": "2026-02-03T04:05:06Z",
	}, defaultFields)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "abc", item.ExternalID)
	assert.Equal(t, "https://example.com/a", item.Source)
	assert.Equal(t, "hello world", item.Content)
	require.NotNil(t, item.SourceCreatedAt)
	assert.Equal(t, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), *item.SourceCreatedAt)
}

func TestMapItem_Fallbacks(t *testing.T) {
	t.Parallel()

	item, ok, err := mapItem(map[string]any{
		"postId":      float64(1234567890123),
		"link":        "https://example.com/b",
		"body":        "from body",
		"publishedAt": float64(1767225600),
	}, defaultFields)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "1234567890123", item.ExternalID)
	assert.Equal(t, "https://example.com/b", item.Source)
	assert.Equal(t, "from body", item.Content)
	require.NotNil(t, item.SourceCreatedAt)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), *item.SourceCreatedAt)
}

func TestMapItem_LargeNumericIDsStayDistinct(t *testing.T) {
	t.Parallel()

	first, ok, err := mapItem(map[string]any{
		"id":        json.Number("1790000000000000001"),
		"text":      "a",
		"createdAt": json.Number("1767225600123"),
	}, defaultFields)
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := mapItem(map[string]any{"id": json.Number("1790000000000000002"), "text": "b"}, defaultFields)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "1790000000000000001", first.ExternalID)
	assert.Equal(t, "1790000000000000002", second.ExternalID)
	require.NotNil(t, first.SourceCreatedAt)
	assert.Equal(t, time.UnixMilli(1767225600123).UTC(), *first.SourceCreatedAt)
}

func TestMapItem_CustomFieldName(t *testing.T) {
	t.Parallel()

	fields := defaultFields
	fields.Content = "caption"
	item, ok, err := mapItem(map[string]any{"id": "x", "caption": "pic", "text": "ignored"}, fields)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pic", item.Content)
}

func TestMapItem_URLHashWhenNoID(t *testing.T) {
	t.Parallel()

	item, ok, err := mapItem(map[string]any{"url": "https://example.com/c", "text": "t"}, defaultFields)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.URLHash("https://example.com/c"), item.ExternalID)
}

func TestMapItem_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		item map[string]any
	}{
		{name: "no content", item: map[string]any{"id": "1", "text": "   "}},
		{name: "no identifier", item: map[string]any{"text": "orphan"}},
		{name: "content not text", item: map[string]any{"id": "1", "text": []any{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok, _ := mapItem(tt.item, defaultFields)
			assert.False(t, ok)
		})
	}
}

func TestMapItem_UnparseableDateIsDropped(t *testing.T) {
	t.Parallel()

	item, ok, err := mapItem(map[string]any{"id": "1", "text": "t", "createdAt": "last tuesday"}, defaultFields)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, item.SourceCreatedAt)
}
