package session

import (
	"sort"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
)

// stallDetector flags a kind that went more than after scheduler ticks
// without an accepted classification. It never touches the attention state.
type stallDetector struct {
	after        uint64
	lastAccepted map[taxonomy.Kind]uint64
	stalled      map[taxonomy.Kind]bool
}

func newStallDetector(afterTicks int) *stallDetector {
	if afterTicks <= 0 {
		afterTicks = DefaultDegradedAfterTicks
	}
	d := &stallDetector{
		after:        uint64(afterTicks),
		lastAccepted: make(map[taxonomy.Kind]uint64),
		stalled:      make(map[taxonomy.Kind]bool),
	}
	for _, k := range taxonomy.Kinds {
		metrics.Degraded.WithLabelValues(string(k)).Set(0)
	}
	return d
}

// accepted records an accepted result and reports whether kind recovered.
func (d *stallDetector) accepted(kind taxonomy.Kind, seq uint64) bool {
	if seq > d.lastAccepted[kind] {
		d.lastAccepted[kind] = seq
	}
	if !d.stalled[kind] {
		return false
	}
	delete(d.stalled, kind)
	metrics.Degraded.WithLabelValues(string(kind)).Set(0)
	return true
}

// check compares every kind against the scheduler's latest sequence id and
// returns the kinds that just became stalled.
func (d *stallDetector) check(current uint64) []taxonomy.Kind {
	var newly []taxonomy.Kind
	for _, k := range taxonomy.Kinds {
		if d.stalled[k] || current <= d.lastAccepted[k]+d.after {
			continue
		}
		d.stalled[k] = true
		metrics.Degraded.WithLabelValues(string(k)).Set(1)
		newly = append(newly, k)
	}
	return newly
}

// ticksSince returns how many ticks kind has gone without an accepted result.
func (d *stallDetector) ticksSince(kind taxonomy.Kind, current uint64) int {
	if current < d.lastAccepted[kind] {
		return 0
	}
	return int(current - d.lastAccepted[kind])
}

func (d *stallDetector) stalledKinds() []string {
	out := make([]string, 0, len(d.stalled))
	for k := range d.stalled {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
