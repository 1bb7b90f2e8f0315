package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
)

// TypeStats holds the rolling counters for one issue type.
type TypeStats struct {
	Name    string `json:"name"`
	Fixed   int64  `json:"fixed"`
	Failed  int64  `json:"failed"`
	Skipped int64  `json:"skipped"`
}

// Stats aggregates rolling counters across all tracked issue types.
type Stats struct {
	Types        []TypeStats `json:"types"`
	TotalFixed   int64       `json:"total_fixed"`
	TotalFailed  int64       `json:"total_failed"`
	TotalSkipped int64       `json:"total_skipped"`
	LastRun      time.Time   `json:"last_run"`
}

// Tracker keeps rolling per-issue-type counters in Redis with a TTL, so
// dashboards survive monitor restarts without unbounded key growth.
type Tracker struct {
	client     redis.UniversalClient
	keys       *RedisKeys
	logger     logger.Logger
	issueTypes []string
}

// NewTracker creates a new metrics tracker.
func NewTracker(client redis.UniversalClient, issueTypes []string, log logger.Logger) *Tracker {
	return &Tracker{
		client:     client,
		keys:       NewRedisKeys(KeyPrefixMetrics),
		logger:     log,
		issueTypes: issueTypes,
	}
}

// IncrementFixed increments the fixed counter for an issue type.
func (t *Tracker) IncrementFixed(ctx context.Context, issueType string) error {
	return t.increment(ctx, t.keys.Fixed(issueType), issueType)
}

// IncrementFailed increments the failed counter for an issue type.
func (t *Tracker) IncrementFailed(ctx context.Context, issueType string) error {
	return t.increment(ctx, t.keys.Failed(issueType), issueType)
}

// IncrementSkipped increments the skipped counter for an issue type.
func (t *Tracker) IncrementSkipped(ctx context.Context, issueType string) error {
	return t.increment(ctx, t.keys.Skipped(issueType), issueType)
}

func (t *Tracker) increment(ctx context.Context, key, issueType string) error {
	ttl := MetricsTTLDays * HoursPerDay * time.Hour

	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to increment counter",
			logger.String("issue_type", issueType),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}

// UpdateLastRun records the completion time of the latest run.
func (t *Tracker) UpdateLastRun(ctx context.Context) error {
	now := time.Now().Format(time.RFC3339)
	if err := t.client.Set(ctx, KeyLastRun, now, 0).Err(); err != nil {
		t.logger.Warn("Failed to update last run timestamp", logger.Error(err))
		return fmt.Errorf("update last run: %w", err)
	}
	return nil
}

// GetStats reads all counters in one pipeline.
func (t *Tracker) GetStats(ctx context.Context) (*Stats, error) {
	pipe := t.client.Pipeline()

	fixedCmds := make(map[string]*redis.StringCmd)
	failedCmds := make(map[string]*redis.StringCmd)
	skippedCmds := make(map[string]*redis.StringCmd)

	for _, issueType := range t.issueTypes {
		fixedCmds[issueType] = pipe.Get(ctx, t.keys.Fixed(issueType))
		failedCmds[issueType] = pipe.Get(ctx, t.keys.Failed(issueType))
		skippedCmds[issueType] = pipe.Get(ctx, t.keys.Skipped(issueType))
	}
	lastRunCmd := pipe.Get(ctx, KeyLastRun)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("execute pipeline: %w", err)
	}

	stats := &Stats{Types: make([]TypeStats, 0, len(t.issueTypes))}
	for _, issueType := range t.issueTypes {
		ts := TypeStats{Name: issueType}

		// Missing keys count as zero.
		if v, err := fixedCmds[issueType].Int64(); err == nil {
			ts.Fixed = v
			stats.TotalFixed += v
		}
		if v, err := failedCmds[issueType].Int64(); err == nil {
			ts.Failed = v
			stats.TotalFailed += v
		}
		if v, err := skippedCmds[issueType].Int64(); err == nil {
			ts.Skipped = v
			stats.TotalSkipped += v
		}

		stats.Types = append(stats.Types, ts)
	}

	if lastRunStr, err := lastRunCmd.Result(); err == nil && lastRunStr != "" {
		if lastRun, parseErr := time.Parse(time.RFC3339, lastRunStr); parseErr == nil {
			stats.LastRun = lastRun
		}
	}

	return stats, nil
}
