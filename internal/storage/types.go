package storage

import (
	"sort"
	"time"
)

// DateFormat is the layout of the per-day index keys.
const DateFormat = "2006-01-02"

// Interval is a persisted distraction interval.
type Interval struct {
	ID         string         `json:"id"`
	Session    string         `json:"session"`
	Type       string         `json:"type"`
	State      string         `json:"state"`
	Label      string         `json:"label"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	Confidence float64        `json:"confidence"`
	Evidence   map[string]int `json:"evidence"`
	Reason     string         `json:"reason"`
}

// Duration returns EndedAt-StartedAt.
func (i Interval) Duration() time.Duration {
	return i.EndedAt.Sub(i.StartedAt)
}

// Date returns the UTC day the interval ended on.
func (i Interval) Date() string {
	return i.EndedAt.UTC().Format(DateFormat)
}

// DailySummary aggregates persisted intervals for one day.
type DailySummary struct {
	Date         string           `json:"date"`
	Count        int64            `json:"count"`
	TotalSeconds int64            `json:"total_seconds"`
	ByType       map[string]int64 `json:"by_type"` // seconds per distraction type
}

// Types returns the summary's types ordered by descending seconds.
func (d DailySummary) Types() []string {
	out := make([]string, 0, len(d.ByType))
	for t := range d.ByType {
		out = append(out, t)
	}
	sort.Slice(out, func(a, b int) bool {
		if d.ByType[out[a]] != d.ByType[out[b]] {
			return d.ByType[out[a]] > d.ByType[out[b]]
		}
		return out[a] < out[b]
	})
	return out
}
