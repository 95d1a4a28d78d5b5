package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage"
	"github.com/redis/go-redis/v9"
)

var saveInterval = redis.NewScript(saveIntervalScript)

type intervalStore struct {
	client *redis.Client
	ttl    time.Duration
}

// SaveInterval stores a finalized interval
func (s *intervalStore) SaveInterval(ctx context.Context, interval storage.Interval) error {
	if interval.ID == "" {
		return fmt.Errorf("interval has no id")
	}
	if interval.EndedAt.Before(interval.StartedAt) {
		return fmt.Errorf("interval %s ends before it starts", interval.ID)
	}

	evidence, err := json.Marshal(interval.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}

	date := interval.Date()
	keys := []string{intervalKey(interval.ID), indexKey(date), summaryKey(date)}
	args := []interface{}{
		interval.ID,
		interval.Session,
		interval.Type,
		interval.State,
		interval.Label,
		interval.StartedAt.Format(time.RFC3339Nano),
		interval.EndedAt.Format(time.RFC3339Nano),
		strconv.FormatFloat(interval.Confidence, 'f', -1, 64),
		string(evidence),
		interval.Reason,
		interval.EndedAt.UnixMilli(),
		int64(interval.Duration() / time.Second),
		int64(s.ttl / time.Second),
	}

	return saveInterval.Run(ctx, s.client, keys, args...).Err()
}

// GetInterval retrieves an interval by ID
func (s *intervalStore) GetInterval(ctx context.Context, id string) (*storage.Interval, error) {
	data, err := s.client.HGetAll(ctx, intervalKey(id)).Result()
	if err != nil {
		return nil, err
	}

	return parseInterval(data)
}

// ListIntervals returns the intervals ended on date, oldest first
func (s *intervalStore) ListIntervals(ctx context.Context, date string) ([]storage.Interval, error) {
	ids, err := s.client.ZRange(ctx, indexKey(date), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.Interval{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, intervalKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	intervals := make([]storage.Interval, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		interval, err := parseInterval(data)
		if err == nil {
			intervals = append(intervals, *interval)
		}
	}

	return intervals, nil
}

// GetDailySummary returns the per-type totals of a day
func (s *intervalStore) GetDailySummary(ctx context.Context, date string) (*storage.DailySummary, error) {
	data, err := s.client.HGetAll(ctx, summaryKey(date)).Result()
	if err != nil {
		return nil, err
	}

	return parseDailySummary(date, data)
}
