package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/attention"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/classifier"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/distraction"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/fusion"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/notify"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/scheduler"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/worker"
	"github.com/rs/zerolog"
)

// DefaultDegradedAfterTicks is the stall threshold when none is configured
const DefaultDegradedAfterTicks = 6

var (
	// ErrAlreadyRunning is returned by Start on a running pipeline.
	ErrAlreadyRunning = errors.New("session: already running")
	// ErrNotRunning is returned by Stop on a pipeline that is not running.
	ErrNotRunning = errors.New("session: not running")
)

// Config holds the configuration of every pipeline stage
type Config struct {
	Scheduler          scheduler.Config
	QueueSize          int
	DropPolicy         scheduler.DropPolicy
	Workers            worker.Config
	Fusion             fusion.Config
	Attention          attention.Config
	DegradedAfterTicks int
}

// Pipeline wires scheduler, intake queue, worker pool and the single consumer
// that owns fusion, the attention state machine and the dispatcher.
type Pipeline struct {
	config     Config
	capturer   snapshot.Capturer
	client     classifier.Client
	vocabulary *taxonomy.Vocabulary
	dispatcher *notify.Dispatcher
	clock      attention.Clock
	logger     zerolog.Logger

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	queue     *scheduler.Queue
	scheduler *scheduler.Scheduler
	pool      *worker.Pool
	done      chan struct{}

	// status is written by the consumer and read by Status.
	statusMu sync.RWMutex
	status   metrics.HealthStatus
}

// New creates a pipeline. Nothing runs until Start.
func New(config Config, capturer snapshot.Capturer, client classifier.Client, vocabulary *taxonomy.Vocabulary,
	dispatcher *notify.Dispatcher, clock attention.Clock, logger zerolog.Logger) *Pipeline {
	if config.QueueSize <= 0 {
		config.QueueSize = 8
	}
	if config.DropPolicy == "" {
		config.DropPolicy = scheduler.DropOldest
	}
	if config.DegradedAfterTicks <= 0 {
		config.DegradedAfterTicks = DefaultDegradedAfterTicks
	}
	if clock == nil {
		clock = attention.RealClock{}
	}

	return &Pipeline{
		config:     config,
		capturer:   capturer,
		client:     client,
		vocabulary: vocabulary,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger.With().Str("component", "session").Logger(),
		status: metrics.HealthStatus{
			Status: "stopped",
			State:  string(attention.StateFocused),
		},
	}
}

// Start builds fresh pipeline stages and starts them.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	if err := p.config.Fusion.Validate(); err != nil {
		return err
	}

	p.queue = scheduler.NewQueue(p.config.QueueSize, p.config.DropPolicy)
	p.scheduler = scheduler.New(p.config.Scheduler, p.capturer, p.queue, p.logger)
	p.pool = worker.New(p.config.Workers, p.client, p.vocabulary, p.queue.Jobs(), p.logger)

	c := &consumer{
		pipeline: p,
		engine:   fusion.NewEngine(p.config.Fusion, p.logger),
		machine:  attention.NewMachine(p.config.Attention, distraction.NewClassifier(p.vocabulary), p.clock, p.logger),
		stalls:   newStallDetector(p.config.DegradedAfterTicks),
		sched:    p.scheduler,
	}

	p.done = make(chan struct{})
	p.startedAt = p.clock.Now()
	p.running = true
	p.setStatus(func(s *metrics.HealthStatus) {
		s.Status = "healthy"
		s.State = string(attention.StateFocused)
		s.IntervalOpen = false
		s.StalledKinds = nil
	})

	// Consumer first so no result waits on an unread channel.
	go c.run(ctx, p.pool.Results(), p.done)
	p.pool.Start(ctx)
	p.scheduler.Start(ctx)

	p.logger.Info().
		Int("queue_size", p.config.QueueSize).
		Str("drop_policy", string(p.config.DropPolicy)).
		Int("k", p.config.Fusion.K).
		Dur("min_span", p.config.Fusion.MinSpan).
		Dur("max_span", p.config.Fusion.MaxSpan).
		Msg("Session started")

	return nil
}

// Stop stops capture, lets in-flight classifications finish, drains their
// results and flushes the open interval. It blocks until all of that is done
// or ctx expires.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running = false
	sched, queue, pool, done := p.scheduler, p.queue, p.pool, p.done
	p.mu.Unlock()

	p.logger.Info().Msg("Stopping session")

	sched.Stop()
	pool.Stop()
	queue.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.setStatus(func(s *metrics.HealthStatus) {
		s.Status = "stopped"
		s.QueueDepth = 0
	})
	p.logger.Info().Msg("Session stopped")
	return nil
}

// Running reports whether the pipeline is started.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Status returns a snapshot for /health.
func (p *Pipeline) Status() metrics.HealthStatus {
	p.mu.Lock()
	queue, running, startedAt := p.queue, p.running, p.startedAt
	p.mu.Unlock()

	p.statusMu.RLock()
	status := p.status
	status.StalledKinds = append([]string(nil), p.status.StalledKinds...)
	p.statusMu.RUnlock()

	if running {
		status.QueueDepth = queue.Len()
		status.UptimeSeconds = int64(p.clock.Now().Sub(startedAt) / time.Second)
	}
	return status
}

func (p *Pipeline) setStatus(update func(s *metrics.HealthStatus)) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	update(&p.status)
}

// sequencer reports the last sequence id the scheduler issued.
type sequencer interface {
	Sequence() uint64
}

// consumer is the single owner of fusion windows, attention state and the
// dispatcher's trigger state.
type consumer struct {
	pipeline *Pipeline
	engine   *fusion.Engine
	machine  *attention.Machine
	stalls   *stallDetector
	sched    sequencer
}

func (c *consumer) run(ctx context.Context, results <-chan snapshot.Result, done chan<- struct{}) {
	defer close(done)

	interval := c.pipeline.config.Scheduler.Interval
	if interval <= 0 {
		interval = scheduler.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Results are drained until the pool closes them, even after ctx is done,
	// so every in-flight classification is accounted for.
	for {
		select {
		case r, ok := <-results:
			if !ok {
				c.flush(ctx)
				return
			}
			c.consume(ctx, r)
		case <-ticker.C:
			c.checkStalls(ctx)
		}
	}
}

func (c *consumer) consume(ctx context.Context, r snapshot.Result) {
	kind := r.Snapshot.Kind

	if r.Accepted() {
		if c.stalls.accepted(kind, r.Snapshot.SequenceID) {
			c.pipeline.logger.Info().Str("kind", string(kind)).Msg("Classification recovered")
			c.pipeline.dispatcher.EngineRecovered(ctx, kind, c.pipeline.clock.Now())
		}
	} else {
		c.pipeline.logger.Debug().
			Str("kind", string(kind)).
			Uint64("sequence_id", r.Snapshot.SequenceID).
			Int("attempts", r.Attempts).
			Err(r.Err).
			Msg("Classification failed, no new information")
	}

	// Stalls are checked before voting so the tick that stalls a kind
	// cannot move the state.
	c.checkStalls(ctx)

	if vote, ok := c.engine.Add(r); ok {
		c.apply(ctx, vote)
	}

	c.publish()
}

// apply hands a vote to the state machine unless a kind is stalled. While
// one kind has no data the other kind's vote would be combined with stale
// evidence, so the state is frozen until every kind recovers.
func (c *consumer) apply(ctx context.Context, vote *fusion.Vote) {
	if stalled := c.stalls.stalledKinds(); len(stalled) > 0 {
		metrics.HeldVotes.WithLabelValues(string(vote.Kind)).Inc()
		c.pipeline.logger.Info().
			Str("vote", vote.String()).
			Strs("stalled_kinds", stalled).
			Str("state", string(c.machine.State())).
			Msg("Vote held while classification is stalled")
		return
	}

	out := c.machine.Apply(vote)
	if err := c.pipeline.dispatcher.Handle(ctx, out); err != nil {
		c.pipeline.logger.Error().Err(err).Msg("Failed to dispatch attention outcome")
	}
}

func (c *consumer) checkStalls(ctx context.Context) {
	current := c.sched.Sequence()
	for _, kind := range c.stalls.check(current) {
		ticks := c.stalls.ticksSince(kind, current)
		c.pipeline.logger.Warn().
			Str("kind", string(kind)).
			Int("ticks", ticks).
			Str("state", string(c.machine.State())).
			Msg("Classification stalled, holding attention state")
		c.pipeline.dispatcher.EngineStalled(ctx, kind, ticks, c.pipeline.clock.Now())
	}
	c.publish()
}

// flush force-closes the open interval once every result is drained.
func (c *consumer) flush(ctx context.Context) {
	out := c.machine.Flush()
	if err := c.pipeline.dispatcher.Handle(context.WithoutCancel(ctx), out); err != nil {
		c.pipeline.logger.Error().Err(err).Msg("Failed to persist flushed interval")
	}
	c.publish()
}

func (c *consumer) publish() {
	state := c.machine.State()
	_, open := c.machine.OpenInterval()
	stalled := c.stalls.stalledKinds()

	c.pipeline.setStatus(func(s *metrics.HealthStatus) {
		s.State = string(state)
		s.IntervalOpen = open
		s.StalledKinds = stalled
		if len(stalled) > 0 {
			s.Status = "degraded"
		} else {
			s.Status = "healthy"
		}
	})
}
