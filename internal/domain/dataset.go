package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DatasetItem is the typed view of one item from the task runner's dataset.
type DatasetItem struct {
	ExternalID      string
	Source          string
	Content         string
	SourceCreatedAt *time.Time
}

// URLHash returns the SHA-256 hex digest of a URL. Items without their own
// id are keyed by it so re-ingesting the same page stays a duplicate.
func URLHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
