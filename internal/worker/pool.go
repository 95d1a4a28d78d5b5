package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/classifier"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Config holds worker pool configuration
type Config struct {
	Count          int
	CallTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ResultsSize    int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Count:          3,
		CallTimeout:    20 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		ResultsSize:    32,
	}
}

// Pool runs a fixed number of classification workers. Workers share nothing but
// the intake and results channels.
type Pool struct {
	config     Config
	client     classifier.Client
	vocabulary *taxonomy.Vocabulary
	jobs       <-chan snapshot.Job
	results    chan snapshot.Result
	logger     zerolog.Logger

	wg       sync.WaitGroup
	stopping atomic.Bool
	cancel   context.CancelFunc
	skipped  atomic.Uint64
	started  atomic.Bool
}

// New creates a worker pool reading from jobs.
func New(config Config, client classifier.Client, vocabulary *taxonomy.Vocabulary, jobs <-chan snapshot.Job, logger zerolog.Logger) *Pool {
	defaults := DefaultConfig()
	if config.Count < 1 {
		config.Count = defaults.Count
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	if config.ResultsSize < 1 {
		config.ResultsSize = defaults.ResultsSize
	}

	return &Pool{
		config:     config,
		client:     client,
		vocabulary: vocabulary,
		jobs:       jobs,
		results:    make(chan snapshot.Result, config.ResultsSize),
		logger:     logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Results returns the results queue. It is closed once every worker has exited.
func (p *Pool) Results() <-chan snapshot.Result {
	return p.results
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	// retryCtx only governs backoff waits, so Stop cancels pending retries
	// without aborting calls already in flight.
	retryCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Count; i++ {
		p.wg.Add(1)
		go p.run(ctx, retryCtx, i)
	}

	go func() {
		p.wg.Wait()
		cancel()
		close(p.results)
	}()

	p.logger.Info().
		Int("workers", p.config.Count).
		Dur("call_timeout", p.config.CallTimeout).
		Int("max_retries", p.config.MaxRetries).
		Msg("Classification workers started")
}

// Stop lets in-flight calls finish and abandons queued jobs that no worker has
// picked up yet. It waits until every worker has exited.
func (p *Pool) Stop() {
	if !p.started.Load() || !p.stopping.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.wg.Wait()

	if n := p.skipped.Load(); n > 0 {
		p.logger.Info().Uint64("skipped", n).Msg("Queued snapshots abandoned on stop")
	}
	p.logger.Info().Msg("Classification workers stopped")
}

// Skipped returns the number of jobs abandoned by Stop.
func (p *Pool) Skipped() uint64 {
	return p.skipped.Load()
}

func (p *Pool) run(ctx, retryCtx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()

	for {
		if p.stopping.Load() {
			return
		}

		select {
		case <-retryCtx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			metrics.IntakeQueueDepth.Set(float64(len(p.jobs)))

			if p.stopping.Load() {
				p.skipped.Add(1)
				continue
			}
			p.results <- p.process(ctx, retryCtx, job, logger)
		}
	}
}

// process classifies one snapshot. It always returns a result: exhausted
// retries and permanent errors produce a Failed result.
func (p *Pool) process(ctx, retryCtx context.Context, job snapshot.Job, logger zerolog.Logger) snapshot.Result {
	kind := job.Snapshot.Kind
	result := snapshot.Result{Snapshot: job.Snapshot}

	var (
		labels  taxonomy.Labels
		lastErr error
	)

	operation := func() error {
		result.Attempts++

		callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
		defer cancel()

		raw, err := p.client.Classify(callCtx, job.Image, kind)
		if err == nil {
			labels = raw
			return nil
		}

		lastErr = err
		if !classifier.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.ClassifierCalls.WithLabelValues(string(kind), "retry").Inc()
		logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Uint64("sequence_id", job.Snapshot.SequenceID).
			Int("attempt", result.Attempts).
			Dur("backoff", wait).
			Msg("Classifier call failed, retrying")
	}

	if err := backoff.RetryNotify(operation, p.newBackOff(retryCtx), notify); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		metrics.ClassifierCalls.WithLabelValues(string(kind), "failed").Inc()

		event := logger.Warn()
		if errors.Is(lastErr, classifier.ErrPermanent) {
			event = logger.Error()
		}
		event.
			Err(lastErr).
			Str("kind", string(kind)).
			Uint64("sequence_id", job.Snapshot.SequenceID).
			Int("attempts", result.Attempts).
			Msg("Classification failed")

		result.Status = snapshot.StatusFailed
		result.Err = lastErr
		return result
	}

	metrics.ClassifierCalls.WithLabelValues(string(kind), "ok").Inc()

	kept, violations := p.vocabulary.Sanitize(kind, labels)
	for _, v := range violations {
		metrics.VocabularyViolations.WithLabelValues(string(v.Kind), string(v.Reason)).Inc()

		event := logger.Debug()
		if v.Reason != taxonomy.ReasonBelowThreshold {
			event = logger.Warn()
		}
		event.
			Str("kind", string(v.Kind)).
			Str("label", string(v.Label)).
			Float64("confidence", v.Confidence).
			Str("reason", string(v.Reason)).
			Uint64("sequence_id", job.Snapshot.SequenceID).
			Msg("Classifier label discarded")
	}

	result.Status = snapshot.StatusOK
	result.Labels = kept
	return result
}

func (p *Pool) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.InitialBackoff
	b.MaxInterval = p.config.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.config.MaxRetries)), ctx)
}
