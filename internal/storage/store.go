package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Intervals() IntervalStore
}

// IntervalStore persists finalized distraction intervals.
type IntervalStore interface {
	// SaveInterval stores a finalized interval and adds its duration to the
	// daily per-type totals. Saving the same ID twice does not double count.
	SaveInterval(ctx context.Context, interval Interval) error
	GetInterval(ctx context.Context, id string) (*Interval, error)
	// ListIntervals returns the intervals ended on date (YYYY-MM-DD, UTC)
	// ordered by end time.
	ListIntervals(ctx context.Context, date string) ([]Interval, error)
	GetDailySummary(ctx context.Context, date string) (*DailySummary, error)
}
