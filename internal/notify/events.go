package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/attention"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/escalation"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
)

// Kind is the kind of a notification event.
type Kind string

const (
	KindAlert           Kind = "alert"
	KindMicroBreak      Kind = "micro_break"
	KindEscalation      Kind = "escalation"
	KindEngineStalled   Kind = "engine_stalled"
	KindEngineRecovered Kind = "engine_recovered"
)

// Kinds lists every event kind.
var Kinds = []Kind{KindAlert, KindMicroBreak, KindEscalation, KindEngineStalled, KindEngineRecovered}

// Event is delivered to every sink. It carries enough evidence to explain
// itself without querying the engine.
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	Session string    `json:"session,omitempty"`
	Message string    `json:"message"`

	Interval *IntervalInfo `json:"interval,omitempty"`
	// Previous is the earlier interval of an escalation pair.
	Previous *IntervalInfo `json:"previous,omitempty"`

	// Micro-break details
	AlertCount    int     `json:"alert_count,omitempty"`
	WindowSeconds float64 `json:"window_seconds,omitempty"`

	// Escalation details
	GapSeconds float64                     `json:"gap_seconds,omitempty"`
	Suggested  *escalation.SuggestedAction `json:"suggested_action,omitempty"`

	// Stall details
	SnapshotKind string `json:"snapshot_kind,omitempty"`
	Ticks        int    `json:"ticks,omitempty"`
}

// IntervalInfo is the rendering of a distraction interval inside an event.
type IntervalInfo struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	State           string         `json:"state"`
	Label           string         `json:"label,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	Confidence      float64        `json:"confidence"`
	Evidence        map[string]int `json:"evidence"`
}

func newIntervalInfo(iv attention.Interval) *IntervalInfo {
	info := &IntervalInfo{
		ID:         iv.ID,
		Type:       string(iv.Type),
		State:      string(iv.State),
		Label:      string(iv.Label),
		StartedAt:  iv.StartedAt,
		Confidence: iv.Confidence,
		Evidence:   evidenceMap(iv.Evidence),
	}
	if !iv.Open() {
		ended := iv.EndedAt
		info.EndedAt = &ended
		info.DurationSeconds = iv.Duration().Seconds()
	}
	return info
}

func evidenceMap(in map[taxonomy.Label]int) map[string]int {
	out := make(map[string]int, len(in))
	for l, n := range in {
		out[string(l)] = n
	}
	return out
}

// evidenceString renders evidence as "HeadAway:2, VideoOnScreen:3" in
// descending count order.
func evidenceString(iv attention.Interval) string {
	labels := iv.EvidenceLabels()
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s:%d", l, iv.Evidence[l]))
	}
	return strings.Join(parts, ", ")
}
