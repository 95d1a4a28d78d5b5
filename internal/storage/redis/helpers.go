package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage"
)

func intervalKey(id string) string {
	return fmt.Sprintf("%s:interval:%s", keyPrefix, id)
}

func indexKey(date string) string {
	return fmt.Sprintf("%s:intervals:%s", keyPrefix, date)
}

func summaryKey(date string) string {
	return fmt.Sprintf("%s:summary:%s", keyPrefix, date)
}

// parseInterval converts a Redis hash to Interval
func parseInterval(data map[string]string) (*storage.Interval, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	endedAt, err := time.Parse(time.RFC3339Nano, data["ended_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse ended_at: %w", err)
	}

	confidence, err := strconv.ParseFloat(data["confidence"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse confidence: %w", err)
	}

	evidence := make(map[string]int)
	if raw := data["evidence"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &evidence); err != nil {
			return nil, fmt.Errorf("failed to parse evidence: %w", err)
		}
	}

	return &storage.Interval{
		ID:         data["id"],
		Session:    data["session"],
		Type:       data["type"],
		State:      data["state"],
		Label:      data["label"],
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Confidence: confidence,
		Evidence:   evidence,
		Reason:     data["reason"],
	}, nil
}

// parseDailySummary converts a Redis hash to DailySummary. A missing hash is
// an empty day, not an error.
func parseDailySummary(date string, data map[string]string) (*storage.DailySummary, error) {
	summary := &storage.DailySummary{
		Date:   date,
		ByType: make(map[string]int64),
	}

	for field, value := range data {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", field, err)
		}

		switch {
		case field == "count":
			summary.Count = n
		case field == "total_seconds":
			summary.TotalSeconds = n
		case strings.HasPrefix(field, "type:"):
			summary.ByType[strings.TrimPrefix(field, "type:")] = n
		}
	}

	return summary, nil
}
