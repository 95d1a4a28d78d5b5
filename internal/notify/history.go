package notify

import (
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/attention"
)

// DefaultAlertHistorySize bounds AlertHistory
const DefaultAlertHistorySize = 20

// AlertHistory is a bounded ring of alert timestamps. Old entries fall off by
// count; time windows are applied at query time.
type AlertHistory struct {
	times []time.Time
	start int
	size  int
}

// NewAlertHistory creates a history holding at most capacity alerts.
func NewAlertHistory(capacity int) *AlertHistory {
	if capacity <= 0 {
		capacity = DefaultAlertHistorySize
	}
	return &AlertHistory{times: make([]time.Time, capacity)}
}

// Add appends an alert timestamp, dropping the oldest when full.
func (h *AlertHistory) Add(at time.Time) {
	if h.size < len(h.times) {
		h.times[(h.start+h.size)%len(h.times)] = at
		h.size++
		return
	}
	h.times[h.start] = at
	h.start = (h.start + 1) % len(h.times)
}

// Len returns the number of recorded alerts.
func (h *AlertHistory) Len() int {
	return h.size
}

// Times returns the recorded alerts, oldest first.
func (h *AlertHistory) Times() []time.Time {
	out := make([]time.Time, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.times[(h.start+i)%len(h.times)]
	}
	return out
}

// CountSince counts alerts at or after from and not after to.
func (h *AlertHistory) CountSince(from, to time.Time) int {
	n := 0
	for i := 0; i < h.size; i++ {
		t := h.times[(h.start+i)%len(h.times)]
		if !t.Before(from) && !t.After(to) {
			n++
		}
	}
	return n
}

// MicroBreakDetector suggests a break when enough alerts fall inside a
// trailing window. Alerts that already triggered a suggestion are not counted
// again, so one burst fires once.
type MicroBreakDetector struct {
	history   *AlertHistory
	window    time.Duration
	threshold int

	lastTrigger time.Time
}

// NewMicroBreakDetector creates a detector over history.
func NewMicroBreakDetector(history *AlertHistory, window time.Duration, threshold int) *MicroBreakDetector {
	return &MicroBreakDetector{history: history, window: window, threshold: threshold}
}

// Record adds an alert and reports whether it completes a micro-break
// pattern, with the number of alerts counted.
func (d *MicroBreakDetector) Record(at time.Time) (int, bool) {
	d.history.Add(at)

	from := at.Add(-d.window)
	if !d.lastTrigger.IsZero() && !d.lastTrigger.Before(from) {
		// Only alerts strictly after the last trigger count.
		from = d.lastTrigger.Add(time.Nanosecond)
	}

	count := d.history.CountSince(from, at)
	if count < d.threshold {
		return count, false
	}
	d.lastTrigger = at
	return count, true
}

// ConsecutiveTracker remembers the end of the last persisted interval.
type ConsecutiveTracker struct {
	window time.Duration

	previous *attention.Interval
}

// NewConsecutiveTracker creates a tracker with the given window.
func NewConsecutiveTracker(window time.Duration) *ConsecutiveTracker {
	return &ConsecutiveTracker{window: window}
}

// Observe compares iv with the previously observed interval and records iv.
// It returns the previous interval and the gap between both ends when the gap
// is within the window.
func (c *ConsecutiveTracker) Observe(iv attention.Interval) (*attention.Interval, time.Duration, bool) {
	previous := c.previous
	snap := iv.Snapshot()
	c.previous = &snap

	if previous == nil {
		return nil, 0, false
	}
	gap := iv.EndedAt.Sub(previous.EndedAt)
	if gap < 0 || gap > c.window {
		return previous, gap, false
	}
	return previous, gap, true
}
