package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Extract stage
	FetchAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedbridge_fetch_attempts_total",
			Help: "Total number of HTTP fetch attempts",
		},
	)

	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbridge_records_extracted_total",
			Help: "Total records parsed from feed payloads",
		},
		[]string{"feed"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbridge_records_dropped_total",
			Help: "Total malformed rows dropped during parsing",
		},
		[]string{"feed"},
	)

	// Transform stage
	RecordsTransformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbridge_records_transformed_total",
			Help: "Total records transformed into canonical documents",
		},
		[]string{"feed"},
	)

	// Load stage, labeled by the store-reported outcome
	LoadOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbridge_load_outcomes_total",
			Help: "Total upsert outcomes as reported by the store",
		},
		[]string{"feed", "outcome"},
	)

	// Batch level
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbridge_batches_total",
			Help: "Total pipeline runs by terminal status",
		},
		[]string{"feed", "status"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedbridge_batch_duration_seconds",
			Help:    "Duration of a full pipeline run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
