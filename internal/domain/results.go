package domain

// IngestResult summarises one ingest run.
type IngestResult struct {
	RunID     string `json:"run_id,omitempty"`
	DatasetID string `json:"dataset_id"`
	// Fetched is the number of items read from the dataset.
	Fetched int `json:"fetched"`
	// Invalid items had no content or no usable identifier.
	Invalid  int `json:"invalid"`
	Inserted int `json:"inserted"`
	// Duplicates were already stored or repeated within the dataset.
	Duplicates int `json:"duplicates"`
}

// AnalyzeResult summarises one analysis batch.
type AnalyzeResult struct {
	Selected int `json:"selected"`
	Analyzed int `json:"analyzed"`
	Failed   int `json:"failed"`
	// Skipped records were analyzed by someone else between select and save.
	Skipped  int             `json:"skipped"`
	Failures []RecordFailure `json:"failures,omitempty"`
}

// RecordFailure explains why one record in a batch was not analyzed.
type RecordFailure struct {
	RecordID string `json:"record_id"`
	Error    string `json:"error"`
}
