// Package pipeline sequences one batch run: Fetch -> Parse -> Transform ->
// Load, aggregating per-stage counts into a BatchReport. Stages run
// sequentially, one batch at a time; record-level failures are isolated
// and counted, stage-level failures abort the run.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/feedbridge/internal/dlq"
	"github.com/seclens/feedbridge/internal/fetcher"
	"github.com/seclens/feedbridge/internal/logging"
	"github.com/seclens/feedbridge/internal/metrics"
	"github.com/seclens/feedbridge/internal/models"
	"github.com/seclens/feedbridge/internal/parser"
	"github.com/seclens/feedbridge/internal/runstats"
	"github.com/seclens/feedbridge/internal/store"
	"github.com/seclens/feedbridge/internal/transform"
)

// State tracks pipeline progress through its stages.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateParsing
	StateTransforming
	StateLoading
	StateDone
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the raw feed payload.
type Fetcher interface {
	Fetch(ctx context.Context, src fetcher.Source) ([]byte, error)
}

// Store is the subset of the document store the loader needs.
type Store interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, doc *models.Document) (store.Outcome, error)
	Refresh(ctx context.Context) error
	CountAll(ctx context.Context) (int64, error)
}

// Params wires a Pipeline. OpenStore is called when the load stage
// begins, so a run that dies earlier never touches the store.
type Params struct {
	Feed       string
	Format     string
	Source     fetcher.Source
	Fetcher    Fetcher
	Normalizer transform.Normalizer
	OpenStore  func(ctx context.Context) (Store, error)
	DLQ        dlq.Writer
	Stats      *runstats.Client
	Logger     *logging.Logger
	Now        func() time.Time
}

// Pipeline runs one batch at a time. Not safe for concurrent Run calls.
type Pipeline struct {
	p      Params
	state  State
	logger *logging.Logger
}

// New builds a pipeline, filling in defaults for optional collaborators.
func New(p Params) *Pipeline {
	if p.DLQ == nil {
		p.DLQ = dlq.Nop{}
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	return &Pipeline{
		p:      p,
		state:  StateIdle,
		logger: p.Logger.With(logging.Feed(p.Feed)),
	}
}

// State returns the current pipeline state.
func (pl *Pipeline) State() State { return pl.state }

func (pl *Pipeline) setState(s State) {
	pl.state = s
	pl.logger.Info("pipeline stage", logging.Stage(s.String()))
}

// Run executes one batch and always returns a report; errors surface as
// a Failed status with the cause recorded, never as a panic or a partial
// silent result.
func (pl *Pipeline) Run(ctx context.Context) *models.BatchReport {
	started := pl.p.Now()
	report := &models.BatchReport{
		RunID:     uuid.NewString(),
		Feed:      pl.p.Feed,
		StartedAt: started,
	}
	logger := pl.logger.With(logging.RunID(report.RunID))

	defer func() {
		report.Duration = pl.p.Now().Sub(started)
		pl.setState(StateDone)
		metrics.BatchesTotal.WithLabelValues(pl.p.Feed, report.Status.String()).Inc()
		metrics.BatchDuration.Observe(report.Duration.Seconds())
		pl.recordStats(ctx, report)
	}()

	// Extract
	pl.setState(StateFetching)
	payload, err := pl.p.Fetcher.Fetch(ctx, pl.p.Source)
	if err != nil {
		return pl.fail(report, "fetch failed", err)
	}
	logger.Info("feed downloaded", "bytes", len(payload))

	// Parse
	pl.setState(StateParsing)
	records, dropped, err := parser.Parse(payload, pl.p.Format)
	if err != nil {
		return pl.fail(report, "parse failed", err)
	}
	report.Extracted = len(records)
	report.Dropped = dropped
	metrics.RecordsExtracted.WithLabelValues(pl.p.Feed).Add(float64(len(records)))
	metrics.RecordsDropped.WithLabelValues(pl.p.Feed).Add(float64(dropped))

	// An empty-but-well-formed feed means there is nothing to load;
	// that is a failed batch, distinct from some rows being dropped.
	if len(records) == 0 {
		return pl.fail(report, "no records extracted", nil)
	}

	// Transform
	pl.setState(StateTransforming)
	now := pl.p.Now()
	docs := make([]*models.Document, 0, len(records))
	for _, rec := range records {
		doc, err := pl.p.Normalizer.Transform(rec, now)
		if err != nil {
			report.SkippedRaw++
			if !errors.Is(err, transform.ErrSkipRecord) {
				logger.Warn("record transform failed", "error", err)
			}
			pl.deadLetter(ctx, &dlq.FailedRecord{
				Timestamp: now.UTC(),
				Feed:      pl.p.Feed,
				Reason:    "transform",
				Error:     err.Error(),
				Record:    rec,
			})
			continue
		}
		docs = append(docs, doc)
	}
	report.Transformed = len(docs)
	metrics.RecordsTransformed.WithLabelValues(pl.p.Feed).Add(float64(len(docs)))
	logger.Info("records transformed",
		"transformed", report.Transformed, "skipped", report.SkippedRaw)

	if len(docs) == 0 {
		report.Status = models.BatchPartiallyFailed
		report.Error = "no records survived transformation"
		return report
	}

	// Load
	pl.setState(StateLoading)
	st, err := pl.p.OpenStore(ctx)
	if err != nil {
		return pl.fail(report, "store unreachable", err)
	}

	if err := st.EnsureIndex(ctx); err != nil {
		var ce *store.ConnectionError
		if errors.As(err, &ce) {
			return pl.fail(report, "store unreachable", err)
		}
		logger.Warn("ensure index failed, continuing", "error", err)
	}

	for _, doc := range docs {
		outcome, err := st.Upsert(ctx, doc)
		if err != nil {
			var ce *store.ConnectionError
			if errors.As(err, &ce) {
				report.Error = err.Error()
				report.Status = models.BatchFailed
				logger.Error("store connection lost mid-batch", "error", err)
				return report
			}
			report.Load.Failed++
			metrics.LoadOutcomes.WithLabelValues(pl.p.Feed, "failed").Inc()
			logger.Warn("document upsert failed", "doc_id", doc.ID, "error", err)
			pl.deadLetter(ctx, &dlq.FailedRecord{
				Timestamp: now.UTC(),
				Feed:      pl.p.Feed,
				Reason:    "load",
				Error:     err.Error(),
				DocID:     doc.ID,
			})
			continue
		}

		switch outcome {
		case store.OutcomeCreated:
			report.Load.Inserted++
			metrics.LoadOutcomes.WithLabelValues(pl.p.Feed, "inserted").Inc()
		case store.OutcomeUpdated:
			report.Load.Updated++
			metrics.LoadOutcomes.WithLabelValues(pl.p.Feed, "updated").Inc()
		case store.OutcomeNoop:
			report.Load.Skipped++
			metrics.LoadOutcomes.WithLabelValues(pl.p.Feed, "skipped").Inc()
		}
	}

	if err := st.Refresh(ctx); err != nil {
		logger.Warn("index refresh failed", "error", err)
	}
	if total, err := st.CountAll(ctx); err == nil {
		report.Load.StoreTotal = total
	} else {
		logger.Warn("store count failed", "error", err)
	}

	switch {
	case report.Load.Loaded() == 0:
		report.Status = models.BatchPartiallyFailed
		report.Error = "no documents reached the store"
	case report.Load.Failed > 0 || report.SkippedRaw > 0 || report.Dropped > 0:
		report.Status = models.BatchPartiallyFailed
	default:
		report.Status = models.BatchSucceeded
	}

	logger.Info("batch complete",
		"status", report.Status.String(),
		"inserted", report.Load.Inserted,
		"updated", report.Load.Updated,
		"skipped", report.Load.Skipped,
		"failed", report.Load.Failed,
		"store_total", report.Load.StoreTotal)
	return report
}

func (pl *Pipeline) fail(report *models.BatchReport, msg string, err error) *models.BatchReport {
	report.Status = models.BatchFailed
	if err != nil {
		report.Error = msg + ": " + err.Error()
		pl.logger.Error(msg, "error", err)
	} else {
		report.Error = msg
		pl.logger.Error(msg)
	}
	return report
}

func (pl *Pipeline) deadLetter(ctx context.Context, rec *dlq.FailedRecord) {
	if err := pl.p.DLQ.Write(ctx, rec); err != nil {
		pl.logger.Warn("dlq write failed", "reason", rec.Reason, "error", err)
	}
}

func (pl *Pipeline) recordStats(ctx context.Context, report *models.BatchReport) {
	if pl.p.Stats == nil {
		return
	}
	if err := pl.p.Stats.RecordRun(ctx, pl.p.Feed, report); err != nil {
		pl.logger.Warn("run stats not recorded", "error", err)
	}
}
