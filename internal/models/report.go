package models

import "time"

// BatchStatus is the terminal state of one pipeline run.
type BatchStatus int

const (
	BatchSucceeded BatchStatus = iota
	BatchPartiallyFailed
	BatchFailed
)

// String returns a human-readable representation of the batch status.
func (s BatchStatus) String() string {
	switch s {
	case BatchSucceeded:
		return "succeeded"
	case BatchPartiallyFailed:
		return "partially_failed"
	case BatchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadResult holds per-outcome counts from the load stage. Inserted,
// Updated and Skipped are derived from the store's reported upsert result,
// never assumed. StoreTotal is the record count in the store after the run.
type LoadResult struct {
	Inserted   int   `json:"inserted"`
	Updated    int   `json:"updated"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	StoreTotal int64 `json:"store_total"`
}

// Loaded returns the number of documents that reached the store, in any
// outcome.
func (r LoadResult) Loaded() int {
	return r.Inserted + r.Updated + r.Skipped
}

// BatchReport is the externally visible result of one pipeline run.
// It is emitted once per run and not persisted.
type BatchReport struct {
	RunID       string        `json:"run_id"`
	Feed        string        `json:"feed"`
	Status      BatchStatus   `json:"status"`
	Extracted   int           `json:"extracted"`
	Dropped     int           `json:"dropped"`
	Transformed int           `json:"transformed"`
	SkippedRaw  int           `json:"skipped_raw"`
	Load        LoadResult    `json:"load"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}
