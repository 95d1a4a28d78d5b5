package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/rs/zerolog"
)

const (
	// DefaultInterval is the capture cadence when none is configured
	DefaultInterval = 10 * time.Second
)

// Config holds scheduler configuration
type Config struct {
	Interval time.Duration
	// CaptureTimeout bounds one capture; defaults to Interval.
	CaptureTimeout time.Duration
}

// Scheduler captures a cam/screen pair every interval and enqueues both
// snapshots for classification.
type Scheduler struct {
	config   Config
	capturer snapshot.Capturer
	queue    *Queue
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	seq      uint64
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new scheduler
func New(config Config, capturer snapshot.Capturer, queue *Queue, logger zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.CaptureTimeout <= 0 {
		config.CaptureTimeout = config.Interval
	}

	return &Scheduler{
		config:   config,
		capturer: capturer,
		queue:    queue,
		now:      time.Now,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins capturing. The first tick fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopChan != nil {
		return
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx, s.stopChan, s.done)

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Str("drop_policy", string(s.queue.Policy())).
		Msg("Snapshot scheduler started")
}

// Stop stops the scheduler and waits for an in-progress tick to finish. No job
// is enqueued after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopChan, done := s.stopChan, s.done
	s.stopChan = nil
	s.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-done

	s.logger.Info().Msg("Snapshot scheduler stopped")
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context, stopChan <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs one capture and enqueues the resulting pair. A failed capture
// is a missed tick.
func (s *Scheduler) Tick(ctx context.Context) {
	captureCtx, cancel := context.WithTimeout(ctx, s.config.CaptureTimeout)
	defer cancel()

	pair, err := s.capturer.Capture(captureCtx)
	if err != nil {
		metrics.CaptureFailures.Inc()
		s.logger.Warn().Err(err).Msg("Capture failed, skipping tick")
		return
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	capturedAt := s.now()

	s.enqueue(snapshot.Job{
		Snapshot: snapshot.Snapshot{Kind: taxonomy.KindCam, CapturedAt: capturedAt, SequenceID: seq},
		Image:    pair.Cam,
	})
	s.enqueue(snapshot.Job{
		Snapshot: snapshot.Snapshot{Kind: taxonomy.KindScreen, CapturedAt: capturedAt, SequenceID: seq},
		Image:    pair.Screen,
	})
}

func (s *Scheduler) enqueue(job snapshot.Job) {
	victim, err := s.queue.Push(job)
	if err != nil {
		s.logger.Debug().Err(err).Uint64("sequence_id", job.Snapshot.SequenceID).Msg("Snapshot not enqueued")
		return
	}
	if victim != nil {
		s.logger.Warn().
			Str("policy", string(s.queue.Policy())).
			Str("dropped_kind", string(victim.Snapshot.Kind)).
			Uint64("dropped_sequence_id", victim.Snapshot.SequenceID).
			Uint64("sequence_id", job.Snapshot.SequenceID).
			Int("queue_depth", s.queue.Len()).
			Msg("Intake queue saturated, snapshot dropped")
	}
}

// Sequence returns the last issued sequence id.
func (s *Scheduler) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
