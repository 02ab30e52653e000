package dlq

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileQueue appends failed records to per-day JSONL files under a base
// directory. Single-process only; suitable for a batch connector.
type FileQueue struct {
	basePath string

	mu      sync.Mutex
	written uint64
}

// NewFileQueue creates the base directory if needed.
func NewFileQueue(basePath string) (*FileQueue, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &FileQueue{basePath: basePath}, nil
}

func (q *FileQueue) fileFor(t time.Time) string {
	return filepath.Join(q.basePath, fmt.Sprintf("feedbridge-dlq-%s.jsonl", t.UTC().Format("20060102")))
}

// Write appends one failed record to today's file.
func (q *FileQueue) Write(ctx context.Context, rec *FailedRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	f, err := os.OpenFile(q.fileFor(rec.Timestamp), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open dlq file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append dlq entry: %w", err)
	}
	q.written++
	return nil
}

// List returns up to limit failed records, newest files first.
func (q *FileQueue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	paths, err := filepath.Glob(filepath.Join(q.basePath, "feedbridge-dlq-*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	var records []FailedRecord
	for _, path := range paths {
		if len(records) >= limit {
			break
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() && len(records) < limit {
			var rec FailedRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		f.Close()
	}
	return records, nil
}

// Purge removes all DLQ files.
func (q *FileQueue) Purge(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(q.basePath, "feedbridge-dlq-*.jsonl"))
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// Stats reports local DLQ counters.
func (q *FileQueue) Stats(ctx context.Context) map[string]any {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]any{
		"enabled":       true,
		"backend":       "file",
		"base_path":     q.basePath,
		"written_local": q.written,
	}
}

func (q *FileQueue) Close() error { return nil }
