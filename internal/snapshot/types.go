package snapshot

import (
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
)

// Snapshot identifies one captured image. Snapshots of a correlated cam/screen
// pair share a SequenceID.
type Snapshot struct {
	Kind       taxonomy.Kind
	CapturedAt time.Time
	SequenceID uint64
}

// Job is a snapshot waiting for classification, together with its image bytes.
type Job struct {
	Snapshot Snapshot
	Image    []byte
}

// Status is the outcome of classifying a snapshot.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Result is the classification of one snapshot. A worker owns it until it is
// sent on the results queue; after that only the consumer touches it.
type Result struct {
	Snapshot Snapshot
	Labels   taxonomy.Labels
	Status   Status
	Err      error
	Attempts int
}

// Accepted reports whether the result can enter a fusion window.
func (r Result) Accepted() bool {
	return r.Status == StatusOK
}
