package fusion

import (
	"sort"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
)

// Entry is one accepted classification held by a window.
type Entry struct {
	CapturedAt time.Time
	SequenceID uint64
	Labels     taxonomy.Labels
}

// Window holds the most recent accepted results of one kind, bounded by size
// and by the time span between its oldest and newest entries. Entries are
// ordered by capture time, not arrival time. Not safe for concurrent use.
type Window struct {
	size    int
	maxSpan time.Duration
	entries []Entry
}

// NewWindow creates a window of at most size entries spanning at most maxSpan.
// A non-positive maxSpan disables the time bound.
func NewWindow(size int, maxSpan time.Duration) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		size:    size,
		maxSpan: maxSpan,
		entries: make([]Entry, 0, size+1),
	}
}

// Insert adds a result and evicts entries that fall outside the bounds. It
// returns the number of evicted entries.
func (w *Window) Insert(r snapshot.Result) int {
	entry := Entry{
		CapturedAt: r.Snapshot.CapturedAt,
		SequenceID: r.Snapshot.SequenceID,
		Labels:     r.Labels,
	}

	// Results arrive in completion order; keep the slice sorted by capture time.
	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].CapturedAt.After(entry.CapturedAt)
	})
	w.entries = append(w.entries, Entry{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = entry

	return w.evict()
}

func (w *Window) evict() int {
	drop := 0
	if n := len(w.entries); n > w.size {
		drop = n - w.size
	}

	if w.maxSpan > 0 && len(w.entries) > 0 {
		cutoff := w.entries[len(w.entries)-1].CapturedAt.Add(-w.maxSpan)
		for drop < len(w.entries) && w.entries[drop].CapturedAt.Before(cutoff) {
			drop++
		}
	}

	if drop > 0 {
		w.entries = append(w.entries[:0], w.entries[drop:]...)
	}
	return drop
}

// Len returns the number of retained entries.
func (w *Window) Len() int {
	return len(w.entries)
}

// Span returns the capture time between the oldest and newest entries.
func (w *Window) Span() time.Duration {
	if len(w.entries) < 2 {
		return 0
	}
	return w.entries[len(w.entries)-1].CapturedAt.Sub(w.entries[0].CapturedAt)
}

// Entries returns a copy of the retained entries, oldest first.
func (w *Window) Entries() []Entry {
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Counts returns, for every label present in any entry, the number of
// entries containing it.
func (w *Window) Counts() map[taxonomy.Label]int {
	counts := make(map[taxonomy.Label]int)
	for _, e := range w.entries {
		for label := range e.Labels {
			counts[label]++
		}
	}
	return counts
}

// Reset empties the window.
func (w *Window) Reset() {
	w.entries = w.entries[:0]
}
