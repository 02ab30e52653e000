// Package runstats keeps Redis-backed ingestion statistics per feed.
//
// Optional: the connector runs fine without Redis. When enabled, any
// instance can read the counters for dashboards or capacity checks.
//
// Redis key structure:
//
//	feed:stats:{source}            - Hash with totals and last-run metadata
//	feed:daily:{source}:{YYYYMMDD} - Records loaded on a given day (expires 7d)
//	feed:runs:{source}             - Total completed runs
package runstats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seclens/feedbridge/internal/models"
)

// Stats is the current view of one feed's ingestion counters.
type Stats struct {
	Source       string     `json:"source"`
	TotalRecords int64      `json:"total_records"`
	TotalRuns    int64      `json:"total_runs"`
	RecordsToday int64      `json:"records_today"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastStatus   string     `json:"last_status,omitempty"`
	RetrievedAt  time.Time  `json:"retrieved_at"`
}

// Client records and retrieves feed ingestion statistics.
type Client struct {
	redis *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{redis: client}, nil
}

// NewClientFromRedis creates a client from an existing Redis connection.
func NewClientFromRedis(client *redis.Client) *Client {
	return &Client{redis: client}
}

// RecordRun folds one finished batch into the counters.
func (c *Client) RecordRun(ctx context.Context, source string, report *models.BatchReport) error {
	now := time.Now()
	dayKey := now.Format("20060102")
	loaded := int64(report.Load.Loaded())

	pipe := c.redis.Pipeline()

	statsKey := fmt.Sprintf("feed:stats:%s", source)
	pipe.HSet(ctx, statsKey, map[string]interface{}{
		"last_run_at": strconv.FormatInt(now.Unix(), 10),
		"last_status": report.Status.String(),
		"last_run_id": report.RunID,
	})
	pipe.HIncrBy(ctx, statsKey, "total_records", loaded)

	dailyKey := fmt.Sprintf("feed:daily:%s:%s", source, dayKey)
	pipe.IncrBy(ctx, dailyKey, loaded)
	pipe.Expire(ctx, dailyKey, 7*24*time.Hour)

	pipe.Incr(ctx, fmt.Sprintf("feed:runs:%s", source))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// GetStats retrieves the current counters for a feed.
func (c *Client) GetStats(ctx context.Context, source string) (*Stats, error) {
	now := time.Now()
	dayKey := now.Format("20060102")

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, fmt.Sprintf("feed:stats:%s", source))
	dailyCmd := pipe.Get(ctx, fmt.Sprintf("feed:daily:%s:%s", source, dayKey))
	runsCmd := pipe.Get(ctx, fmt.Sprintf("feed:runs:%s", source))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := &Stats{Source: source, RetrievedAt: now}

	if statsMap, err := statsCmd.Result(); err == nil {
		if lastRunStr, ok := statsMap["last_run_at"]; ok {
			if unix, err := strconv.ParseInt(lastRunStr, 10, 64); err == nil {
				t := time.Unix(unix, 0)
				stats.LastRunAt = &t
			}
		}
		if status, ok := statsMap["last_status"]; ok {
			stats.LastStatus = status
		}
		if totalStr, ok := statsMap["total_records"]; ok {
			stats.TotalRecords, _ = strconv.ParseInt(totalStr, 10, 64)
		}
	}
	if val, err := dailyCmd.Int64(); err == nil {
		stats.RecordsToday = val
	}
	if val, err := runsCmd.Int64(); err == nil {
		stats.TotalRuns = val
	}

	return stats, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}
