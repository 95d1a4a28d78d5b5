package attention

import (
	"sort"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
)

// State is the attention state of the session.
type State string

const (
	StateFocused    State = "Focused"
	StateDistracted State = "Distracted"
	StateAbsent     State = "Absent"
)

// States lists every state, used to reset the state gauge.
var States = []State{StateFocused, StateDistracted, StateAbsent}

// CloseReason tells why an interval was closed.
type CloseReason string

const (
	// CloseRefocused: the user returned to Focused.
	CloseRefocused CloseReason = "refocused"
	// CloseFlushed: the session stopped with the interval still open.
	CloseFlushed CloseReason = "flushed"
)

// Interval is a contiguous span of non-Focused state.
type Interval struct {
	ID        string
	StartedAt time.Time
	// EndedAt is zero while the interval is open.
	EndedAt    time.Time
	State      State
	Type       taxonomy.DistractionType
	Label      taxonomy.Label
	Confidence float64
	// Evidence accumulates majority counts of every vote seen while open.
	Evidence map[taxonomy.Label]int
	Reason   CloseReason

	closed bool
}

// Open reports whether the interval has not been closed yet.
func (iv *Interval) Open() bool {
	return !iv.closed
}

// Duration returns EndedAt-StartedAt, or 0 while open.
func (iv *Interval) Duration() time.Duration {
	if iv.Open() {
		return 0
	}
	return iv.EndedAt.Sub(iv.StartedAt)
}

// Close sets EndedAt. It returns false, changing nothing, when the interval is
// already closed.
func (iv *Interval) Close(at time.Time, reason CloseReason) bool {
	if !iv.Open() {
		return false
	}
	if at.Before(iv.StartedAt) {
		at = iv.StartedAt
	}
	iv.EndedAt = at
	iv.Reason = reason
	iv.closed = true
	return true
}

// Snapshot returns a deep copy that outlives later mutation.
func (iv *Interval) Snapshot() Interval {
	cp := *iv
	cp.Evidence = make(map[taxonomy.Label]int, len(iv.Evidence))
	for l, n := range iv.Evidence {
		cp.Evidence[l] = n
	}
	return cp
}

// EvidenceLabels returns the evidence labels sorted by descending count.
func (iv *Interval) EvidenceLabels() []taxonomy.Label {
	out := make([]taxonomy.Label, 0, len(iv.Evidence))
	for l := range iv.Evidence {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if iv.Evidence[out[i]] != iv.Evidence[out[j]] {
			return iv.Evidence[out[i]] > iv.Evidence[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Outcome reports what one evaluation of the state machine did. At most one of
// Opened and Closed is set; Discarded is set instead of Closed when the
// interval was too short to keep.
type Outcome struct {
	From, To State
	Opened   *Interval
	Updated  *Interval
	Closed   *Interval
	// Discarded intervals are never handed to persistence.
	Discarded *Interval
}

// Transitioned reports whether the state changed.
func (o Outcome) Transitioned() bool {
	return o.From != o.To
}
