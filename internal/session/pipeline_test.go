package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/attention"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/classifier"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/distraction"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/fusion"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/notify"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/scheduler"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/worker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu    sync.Mutex
	saved []storage.Interval
}

func (m *memoryStore) SaveInterval(_ context.Context, iv storage.Interval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, iv)
	return nil
}

func (m *memoryStore) GetInterval(context.Context, string) (*storage.Interval, error) {
	return nil, storage.ErrNotFound
}

func (m *memoryStore) ListIntervals(context.Context, string) ([]storage.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Interval(nil), m.saved...), nil
}

func (m *memoryStore) GetDailySummary(_ context.Context, date string) (*storage.DailySummary, error) {
	return &storage.DailySummary{Date: date}, nil
}

// eventLog collects events from the UI queue on its own goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func collect(sink *notify.ChannelSink) *eventLog {
	l := &eventLog{}
	go func() {
		for ev := range sink.Events() {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *eventLog) count(kind notify.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func testCapturer() snapshot.Capturer {
	return snapshot.CapturerFunc(func(context.Context) (snapshot.Pair, error) {
		return snapshot.Pair{Cam: []byte("cam"), Screen: []byte("screen")}, nil
	})
}

func testConfig() Config {
	workers := worker.DefaultConfig()
	workers.CallTimeout = time.Second
	workers.InitialBackoff = time.Millisecond
	workers.MaxBackoff = 5 * time.Millisecond

	return Config{
		Scheduler:          scheduler.Config{Interval: 5 * time.Millisecond},
		QueueSize:          8,
		DropPolicy:         scheduler.DropOldest,
		Workers:            workers,
		Fusion:             fusion.Config{K: 3},
		Attention:          attention.Config{MinDuration: 30 * time.Second, PersistShortOnStop: true},
		DegradedAfterTicks: 50,
	}
}

func newTestPipeline(t *testing.T, client classifier.Client) (*Pipeline, *memoryStore, *eventLog) {
	t.Helper()

	store := &memoryStore{}
	ui := notify.NewChannelSink(256)
	events := collect(ui)
	dispatcher := notify.NewDispatcher(notify.DefaultConfig(), store, nil, []notify.Sink{ui}, zerolog.Nop())
	t.Cleanup(func() { _ = dispatcher.Close() })

	p := New(testConfig(), testCapturer(), client, taxonomy.Default(), dispatcher, nil, zerolog.Nop())
	return p, store, events
}

func TestPipeline_DistractionAlertAndFlush(t *testing.T) {
	client := classifier.ClientFunc(func(_ context.Context, _ []byte, kind taxonomy.Kind) (taxonomy.Labels, error) {
		if kind == taxonomy.KindCam {
			return taxonomy.Labels{"PhoneLikely": 0.9, "Sparkles": 0.99}, nil
		}
		return taxonomy.Labels{"Productive": 0.8}, nil
	})
	p, store, events := newTestPipeline(t, client)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return p.Status().State == string(attention.StateDistracted)
	}, 5*time.Second, 5*time.Millisecond)

	status := p.Status()
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.IntervalOpen)

	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Stop(context.Background()), ErrNotRunning)

	assert.Equal(t, "stopped", p.Status().Status)
	assert.Equal(t, string(attention.StateFocused), p.Status().State)

	// The short interval is flushed and persisted on stop.
	saved, err := store.ListIntervals(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Phone", saved[0].Type)
	assert.Equal(t, string(attention.CloseFlushed), saved[0].Reason)
	assert.Positive(t, saved[0].Evidence["PhoneLikely"])
	assert.Zero(t, saved[0].Evidence["Sparkles"])

	require.Eventually(t, func() bool { return events.count(notify.KindAlert) == 1 }, time.Second, 5*time.Millisecond)
}

func TestPipeline_StalledKindReportsDegraded(t *testing.T) {
	client := classifier.ClientFunc(func(_ context.Context, _ []byte, kind taxonomy.Kind) (taxonomy.Labels, error) {
		if kind == taxonomy.KindScreen {
			return nil, fmt.Errorf("malformed reply: %w", classifier.ErrPermanent)
		}
		return taxonomy.Labels{"Focused": 0.9}, nil
	})
	p, _, events := newTestPipeline(t, client)
	p.config.Scheduler.Interval = 20 * time.Millisecond
	p.config.DegradedAfterTicks = 3

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		status := p.Status()
		return status.Status == "degraded" && len(status.StalledKinds) == 1 && status.StalledKinds[0] == "screen"
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, string(attention.StateFocused), p.Status().State)
	require.Eventually(t, func() bool { return events.count(notify.KindEngineStalled) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestPipeline_RestartAfterStop(t *testing.T) {
	client := classifier.ClientFunc(func(context.Context, []byte, taxonomy.Kind) (taxonomy.Labels, error) {
		return taxonomy.Labels{}, nil
	})
	p, _, _ := newTestPipeline(t, client)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Start(context.Background()))
		assert.True(t, p.Running())
		require.NoError(t, p.Stop(context.Background()))
		assert.False(t, p.Running())
	}
}

func TestPipeline_InvalidFusionConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Fusion.K = 0
	p := New(cfg, testCapturer(), nil, taxonomy.Default(), notify.NewDispatcher(notify.DefaultConfig(), nil, nil, nil, zerolog.Nop()), nil, zerolog.Nop())
	assert.Error(t, p.Start(context.Background()))
	assert.False(t, p.Running())
}

type fixedSequence struct {
	seq uint64
}

func (f *fixedSequence) Sequence() uint64 { return f.seq }

func result(kind taxonomy.Kind, seq uint64, labels taxonomy.Labels) snapshot.Result {
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	r := snapshot.Result{
		Snapshot: snapshot.Snapshot{
			Kind:       kind,
			CapturedAt: base.Add(time.Duration(seq) * 10 * time.Second),
			SequenceID: seq,
		},
		Labels: labels,
		Status: snapshot.StatusOK,
	}
	if labels == nil {
		r.Status = snapshot.StatusFailed
		r.Err = classifier.ErrPermanent
	}
	return r
}

func TestConsumer_StalledKindFreezesState(t *testing.T) {
	p, _, events := newTestPipeline(t, nil)
	seq := &fixedSequence{}
	c := &consumer{
		pipeline: p,
		engine:   fusion.NewEngine(fusion.Config{K: 3}, zerolog.Nop()),
		machine:  attention.NewMachine(attention.Config{MinDuration: 30 * time.Second}, distraction.NewClassifier(taxonomy.Default()), p.clock, zerolog.Nop()),
		stalls:   newStallDetector(3),
		sched:    seq,
	}
	ctx := context.Background()

	focused := taxonomy.Labels{"Focused": 0.9}
	productive := taxonomy.Labels{"Productive": 0.9}
	video := taxonomy.Labels{"VideoOnScreen": 0.9}

	for i := uint64(1); i <= 3; i++ {
		seq.seq = i
		c.consume(ctx, result(taxonomy.KindCam, i, focused))
		c.consume(ctx, result(taxonomy.KindScreen, i, productive))
	}
	require.Equal(t, attention.StateFocused, c.machine.State())

	// Cam fails from here on while the screen turns to video.
	for i := uint64(4); i <= 12; i++ {
		seq.seq = i
		c.consume(ctx, result(taxonomy.KindCam, i, nil))
		labels := productive
		if i >= 8 {
			labels = video
		}
		c.consume(ctx, result(taxonomy.KindScreen, i, labels))

		if i <= 6 {
			assert.Empty(t, c.stalls.stalledKinds(), "seq %d", i)
		} else {
			assert.Equal(t, []string{"cam"}, c.stalls.stalledKinds(), "seq %d", i)
		}
		assert.Equal(t, attention.StateFocused, c.machine.State(), "seq %d", i)
	}

	_, open := c.machine.OpenInterval()
	assert.False(t, open)
	assert.Equal(t, "degraded", p.Status().Status)
	require.Eventually(t, func() bool { return events.count(notify.KindEngineStalled) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, events.count(notify.KindAlert))

	// Once cam recovers the screen evidence counts again.
	seq.seq = 13
	c.consume(ctx, result(taxonomy.KindCam, 13, focused))
	assert.Empty(t, c.stalls.stalledKinds())
	c.consume(ctx, result(taxonomy.KindScreen, 13, video))

	assert.Equal(t, attention.StateDistracted, c.machine.State())
	assert.Equal(t, "healthy", p.Status().Status)
	require.Eventually(t, func() bool {
		return events.count(notify.KindEngineRecovered) == 1 && events.count(notify.KindAlert) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStallDetector(t *testing.T) {
	d := newStallDetector(3)

	assert.Empty(t, d.check(3), "exactly the threshold is not a stall")
	assert.Equal(t, []taxonomy.Kind{taxonomy.KindCam, taxonomy.KindScreen}, d.check(4))
	assert.Empty(t, d.check(5), "already stalled kinds are reported once")
	assert.Equal(t, 5, d.ticksSince(taxonomy.KindCam, 5))

	assert.True(t, d.accepted(taxonomy.KindCam, 5))
	assert.False(t, d.accepted(taxonomy.KindCam, 6))
	assert.Equal(t, []string{"screen"}, d.stalledKinds())

	assert.Empty(t, d.check(9))
	assert.Equal(t, []taxonomy.Kind{taxonomy.KindCam}, d.check(10))
}
