package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/rs/zerolog"
)

func job(kind taxonomy.Kind, seq uint64) snapshot.Job {
	return snapshot.Job{Snapshot: snapshot.Snapshot{Kind: kind, SequenceID: seq}}
}

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue(2, DropOldest)

	for seq := uint64(1); seq <= 2; seq++ {
		if victim, err := q.Push(job(taxonomy.KindCam, seq)); err != nil || victim != nil {
			t.Fatalf("Push(%d) = %v, %v; want no drop", seq, victim, err)
		}
	}

	victim, err := q.Push(job(taxonomy.KindCam, 3))
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if victim == nil || victim.Snapshot.SequenceID != 1 {
		t.Fatalf("expected oldest job (seq 1) to be dropped, got %+v", victim)
	}

	got := []uint64{(<-q.Jobs()).Snapshot.SequenceID, (<-q.Jobs()).Snapshot.SequenceID}
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("queue contents = %v, want [2 3]", got)
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
}

func TestQueue_DropNewest(t *testing.T) {
	q := NewQueue(1, DropNewest)

	if _, err := q.Push(job(taxonomy.KindCam, 1)); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	victim, err := q.Push(job(taxonomy.KindScreen, 2))
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if victim == nil || victim.Snapshot.SequenceID != 2 {
		t.Fatalf("expected incoming job to be dropped, got %+v", victim)
	}
	if got := (<-q.Jobs()).Snapshot.SequenceID; got != 1 {
		t.Errorf("queued job = %d, want 1", got)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, DropOldest)
	q.Close()
	q.Close() // idempotent

	if _, err := q.Push(job(taxonomy.KindCam, 1)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Push after Close = %v, want ErrQueueClosed", err)
	}
	if _, ok := <-q.Jobs(); ok {
		t.Error("expected closed jobs channel")
	}
}

func TestParseDropPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DropPolicy
		wantErr bool
	}{
		{"", DropOldest, false},
		{"drop_oldest", DropOldest, false},
		{"drop_newest", DropNewest, false},
		{"block", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDropPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDropPolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestScheduler_TickEnqueuesCorrelatedPair(t *testing.T) {
	q := NewQueue(4, DropOldest)
	capturer := snapshot.CapturerFunc(func(ctx context.Context) (snapshot.Pair, error) {
		return snapshot.Pair{Cam: []byte("cam"), Screen: []byte("screen")}, nil
	})

	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s := New(Config{Interval: time.Second}, capturer, q, zerolog.Nop())
	s.now = func() time.Time { return fixed }

	s.Tick(context.Background())
	s.Tick(context.Background())

	if q.Len() != 4 {
		t.Fatalf("queue length = %d, want 4", q.Len())
	}

	cam, screen := <-q.Jobs(), <-q.Jobs()
	if cam.Snapshot.Kind != taxonomy.KindCam || screen.Snapshot.Kind != taxonomy.KindScreen {
		t.Errorf("unexpected kinds: %s, %s", cam.Snapshot.Kind, screen.Snapshot.Kind)
	}
	if cam.Snapshot.SequenceID != 1 || screen.Snapshot.SequenceID != 1 {
		t.Errorf("pair should share sequence 1, got %d and %d", cam.Snapshot.SequenceID, screen.Snapshot.SequenceID)
	}
	if !cam.Snapshot.CapturedAt.Equal(fixed) {
		t.Errorf("CapturedAt = %v, want %v", cam.Snapshot.CapturedAt, fixed)
	}
	if string(screen.Image) != "screen" {
		t.Errorf("screen image = %q", screen.Image)
	}
	if s.Sequence() != 2 {
		t.Errorf("Sequence() = %d, want 2", s.Sequence())
	}
}

func TestScheduler_CaptureFailureIsMissedTick(t *testing.T) {
	q := NewQueue(4, DropOldest)
	capturer := snapshot.CapturerFunc(func(ctx context.Context) (snapshot.Pair, error) {
		return snapshot.Pair{}, errors.New("camera busy")
	})

	s := New(Config{Interval: time.Second}, capturer, q, zerolog.Nop())
	s.Tick(context.Background())

	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
	if s.Sequence() != 0 {
		t.Errorf("Sequence() = %d, want 0", s.Sequence())
	}
}

func TestScheduler_StartStop(t *testing.T) {
	q := NewQueue(64, DropOldest)
	captured := make(chan struct{}, 64)
	capturer := snapshot.CapturerFunc(func(ctx context.Context) (snapshot.Pair, error) {
		captured <- struct{}{}
		return snapshot.Pair{Cam: []byte("c"), Screen: []byte("s")}, nil
	})

	s := New(Config{Interval: 10 * time.Millisecond}, capturer, q, zerolog.Nop())
	s.Start(context.Background())

	select {
	case <-captured:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not tick")
	}

	s.Stop()
	s.Stop() // idempotent

	depth := q.Len()
	time.Sleep(30 * time.Millisecond)
	if q.Len() != depth {
		t.Errorf("jobs enqueued after Stop: %d -> %d", depth, q.Len())
	}
}
