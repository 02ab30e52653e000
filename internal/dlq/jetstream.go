package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "FEEDBRIDGE_DLQ"
	subjectPrefix = "feedbridge.dlq."
)

// JetStreamQueue writes failed records to NATS JetStream, for deployments
// where several connectors share one centralized DLQ.
type JetStreamQueue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	written uint64
}

// NewJetStreamQueue connects to NATS and creates or updates the DLQ stream.
func NewJetStreamQueue(ctx context.Context, natsURL string) (*JetStreamQueue, error) {
	nc, err := nats.Connect(natsURL, nats.Name("feedbridge"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	slog.Info("dlq jetstream stream ready", slog.String("stream", streamName))
	return &JetStreamQueue{nc: nc, js: js, stream: stream}, nil
}

// Write publishes one failed record under feedbridge.dlq.<reason>.
func (q *JetStreamQueue) Write(ctx context.Context, rec *FailedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.js.Publish(ctx, subjectPrefix+rec.Reason, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	atomic.AddUint64(&q.written, 1)
	return nil
}

// List returns up to limit failed records from the stream.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: subjectPrefix + ">",
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var records []FailedRecord
	for msg := range msgs.Messages() {
		var rec FailedRecord
		if err := json.Unmarshal(msg.Data(), &rec); err != nil {
			slog.Error("failed to parse dlq message", slog.Any("error", err))
			continue
		}
		records = append(records, rec)
	}
	if msgs.Error() != nil {
		slog.Warn("dlq fetch completed with error", slog.Any("error", msgs.Error()))
	}
	return records, nil
}

// Purge removes all records from the DLQ stream.
func (q *JetStreamQueue) Purge(ctx context.Context) error {
	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	return nil
}

// Stats returns DLQ metrics from JetStream.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]any {
	info, err := q.stream.Info(ctx)
	if err != nil {
		return map[string]any{
			"enabled":       true,
			"backend":       "jetstream",
			"written_local": atomic.LoadUint64(&q.written),
			"error":         err.Error(),
		}
	}
	return map[string]any{
		"enabled":        true,
		"backend":        "jetstream",
		"written_local":  atomic.LoadUint64(&q.written),
		"total_messages": info.State.Msgs,
		"total_bytes":    info.State.Bytes,
	}
}

func (q *JetStreamQueue) Close() error {
	q.nc.Close()
	return nil
}
