package scheduler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
)

// ErrQueueClosed is returned when pushing to a closed queue.
var ErrQueueClosed = errors.New("scheduler: intake queue closed")

// DropPolicy decides which snapshot is sacrificed when the intake queue is full.
type DropPolicy string

const (
	// DropOldest evicts the oldest queued snapshot to make room for the new one.
	DropOldest DropPolicy = "drop_oldest"
	// DropNewest discards the incoming snapshot and keeps the queue intact.
	DropNewest DropPolicy = "drop_newest"
)

// ParseDropPolicy validates a configured policy name.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch p := DropPolicy(s); p {
	case DropOldest, DropNewest:
		return p, nil
	case "":
		return DropOldest, nil
	default:
		return "", fmt.Errorf("unknown drop policy: %q (must be drop_oldest or drop_newest)", s)
	}
}

// Queue is the bounded intake queue between the scheduler and the workers.
// Push never blocks.
type Queue struct {
	ch     chan snapshot.Job
	policy DropPolicy

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewQueue creates an intake queue.
func NewQueue(size int, policy DropPolicy) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		ch:     make(chan snapshot.Job, size),
		policy: policy,
	}
}

// Push enqueues a job. When the queue is full the configured policy picks a
// victim, which is returned so the caller can log it.
func (q *Queue) Push(job snapshot.Job) (*snapshot.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	defer q.reportDepth()

	for {
		select {
		case q.ch <- job:
			return nil, nil
		default:
		}

		if q.policy == DropNewest {
			q.recordDrop(job)
			return &job, nil
		}

		// DropOldest: make room and retry. A worker may have emptied a slot in
		// the meantime, in which case nothing is evicted.
		select {
		case victim := <-q.ch:
			q.recordDrop(victim)
			if err := q.sendLocked(job); err == nil {
				return &victim, nil
			}
		default:
		}
	}
}

func (q *Queue) sendLocked(job snapshot.Job) error {
	select {
	case q.ch <- job:
		return nil
	default:
		return errors.New("queue full")
	}
}

func (q *Queue) recordDrop(job snapshot.Job) {
	q.dropped++
	metrics.SnapshotsDropped.WithLabelValues(string(job.Snapshot.Kind), string(q.policy)).Inc()
}

func (q *Queue) reportDepth() {
	metrics.IntakeQueueDepth.Set(float64(len(q.ch)))
}

// Jobs returns the receive side used by the workers.
func (q *Queue) Jobs() <-chan snapshot.Job {
	return q.ch
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of jobs dropped so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Policy returns the drop policy.
func (q *Queue) Policy() DropPolicy {
	return q.policy
}

// Close stops accepting jobs. Workers drain the remaining ones.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
