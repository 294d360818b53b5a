// Package domain contains the core models for scrape-analyzer: scraped
// records, their LLM analysis, and the results of ingest and analyze runs.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record is one scraped item stored in the records table.
type Record struct {
	ID              uuid.UUID  `db:"id"                json:"id"`
	ExternalID      string     `db:"external_id"       json:"external_id"`
	Source          string     `db:"source"            json:"source"`
	Content         string     `db:"content"           json:"content"`
	SourceCreatedAt *time.Time `db:"source_created_at" json:"source_created_at,omitempty"`
	Analysis        *Analysis  `db:"analysis"          json:"analysis,omitempty"`
	AnalyzedAt      *time.Time `db:"analyzed_at"       json:"analyzed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
}

// IsAnalyzed reports whether analysis has been stored for the record.
func (r *Record) IsAnalyzed() bool {
	return r.AnalyzedAt != nil
}

// NewRecord builds an unsaved record from a mapped dataset item.
func NewRecord(item DatasetItem) *Record {
	return &Record{
		ID:              uuid.New(),
		ExternalID:      item.ExternalID,
		Source:          item.Source,
		Content:         item.Content,
		SourceCreatedAt: item.SourceCreatedAt,
	}
}

// RecordFilter selects a page of records for listing.
type RecordFilter struct {
	Limit  int
	Offset int
	// Analyzed filters on analysis state when non-nil.
	Analyzed *bool
}

// RecordPage is one page of records plus the total matching count.
type RecordPage struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}
