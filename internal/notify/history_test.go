package notify

import (
	"testing"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/attention"
	"github.com/stretchr/testify/assert"
)

func TestAlertHistory_BoundedByCount(t *testing.T) {
	h := NewAlertHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(t0.Add(time.Duration(i) * time.Minute))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []time.Time{t0.Add(2 * time.Minute), t0.Add(3 * time.Minute), t0.Add(4 * time.Minute)}, h.Times())
	assert.Equal(t, 2, h.CountSince(t0.Add(3*time.Minute), t0.Add(10*time.Minute)))
}

func TestAlertHistory_DefaultCapacity(t *testing.T) {
	h := NewAlertHistory(0)
	for i := 0; i < 25; i++ {
		h.Add(t0)
	}
	assert.Equal(t, DefaultAlertHistorySize, h.Len())
}

func TestConsecutiveTracker(t *testing.T) {
	tracker := NewConsecutiveTracker(60 * time.Second)

	end := func(off time.Duration) attention.Interval {
		return closedInterval("iv", t0.Add(off), attention.CloseRefocused)
	}

	prev, _, ok := tracker.Observe(end(0))
	assert.Nil(t, prev)
	assert.False(t, ok)

	prev, gap, ok := tracker.Observe(end(60 * time.Second))
	assert.True(t, ok, "a gap equal to the window escalates")
	assert.Equal(t, 60*time.Second, gap)
	assert.NotNil(t, prev)

	_, gap, ok = tracker.Observe(end(121 * time.Second))
	assert.False(t, ok)
	assert.Equal(t, 61*time.Second, gap)
}
