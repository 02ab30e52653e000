// Package dlq records records that failed transform or load, so a batch
// can finish while nothing is silently lost.
package dlq

import (
	"context"
	"time"

	"github.com/seclens/feedbridge/internal/models"
)

// FailedRecord is one dead-lettered record with enough context to replay
// or inspect it later.
type FailedRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Feed      string           `json:"feed"`
	Reason    string           `json:"reason"` // "transform" or "load"
	Error     string           `json:"error"`
	Record    models.RawRecord `json:"record,omitempty"`
	DocID     string           `json:"doc_id,omitempty"`
}

// Writer is the dead letter queue interface used by the pipeline.
type Writer interface {
	Write(ctx context.Context, rec *FailedRecord) error
	Close() error
}

// Nop discards failed records. Used when the DLQ is disabled.
type Nop struct{}

func (Nop) Write(ctx context.Context, rec *FailedRecord) error { return nil }
func (Nop) Close() error                                       { return nil }
