package attention

import (
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/distraction"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/fusion"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMinDuration is the shortest interval that is kept
	DefaultMinDuration = 30 * time.Second
)

// Config holds state machine configuration
type Config struct {
	// MinDuration discards intervals closed on refocus below this duration.
	MinDuration time.Duration
	// PersistShortOnStop keeps intervals flushed at session stop even when
	// they are shorter than MinDuration.
	PersistShortOnStop bool
}

// rule maps a cam signal to the state it forces. Rules are evaluated in order
// and the first match wins; screen distraction is checked last.
type rule struct {
	signal taxonomy.Signal
	state  State
}

var camRules = []rule{
	{taxonomy.SignalAbsent, StateAbsent},
	{taxonomy.SignalPhone, StateDistracted},
	{taxonomy.SignalMicroSleep, StateDistracted},
	{taxonomy.SignalGaze, StateDistracted},
}

// Machine is the attention state machine. It is driven by a single consumer
// goroutine and is not safe for concurrent use.
type Machine struct {
	config     Config
	classifier *distraction.Classifier
	clock      Clock
	logger     zerolog.Logger

	state    State
	cam      *fusion.Vote
	screen   *fusion.Vote
	interval *Interval
}

// NewMachine creates a state machine in the Focused state.
func NewMachine(config Config, classifier *distraction.Classifier, clock Clock, logger zerolog.Logger) *Machine {
	if config.MinDuration <= 0 {
		config.MinDuration = DefaultMinDuration
	}
	if clock == nil {
		clock = RealClock{}
	}

	m := &Machine{
		config:     config,
		classifier: classifier,
		clock:      clock,
		logger:     logger.With().Str("component", "attention").Logger(),
		state:      StateFocused,
	}
	m.reportState()
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// OpenInterval returns a copy of the open interval, if any.
func (m *Machine) OpenInterval() (Interval, bool) {
	if m.interval == nil {
		return Interval{}, false
	}
	return m.interval.Snapshot(), true
}

// Apply records a fused vote and re-evaluates the state using the most recent
// vote of the other kind.
func (m *Machine) Apply(vote *fusion.Vote) Outcome {
	switch vote.Kind {
	case taxonomy.KindCam:
		m.cam = vote
	case taxonomy.KindScreen:
		m.screen = vote
	}

	evidence := distraction.Evidence{Cam: m.cam, Screen: m.screen}
	next, decidedBy := m.evaluate(evidence)
	now := m.clock.Now()

	out := Outcome{From: m.state, To: next}

	switch {
	case m.state == StateFocused && next != StateFocused:
		out.Opened = m.open(next, evidence, now)

	case m.state != StateFocused && next == StateFocused:
		out.Closed, out.Discarded = m.close(now, CloseRefocused)

	case m.state != next:
		// Distracted <-> Absent without passing through Focused.
		out.Updated = m.reenter(next, evidence, vote)

	case m.interval != nil:
		out.Updated = m.accumulate(evidence, vote)
	}

	if out.Transitioned() {
		metrics.StateTransitions.WithLabelValues(string(out.From), string(out.To)).Inc()
		m.logger.Info().
			Str("from", string(out.From)).
			Str("to", string(out.To)).
			Str("decided_by", string(decidedBy)).
			Str("cam", m.cam.String()).
			Str("screen", m.screen.String()).
			Msg("Attention state transition")

		m.state = next
		m.reportState()
	}

	return out
}

// evaluate applies the priority rules to the latest votes.
func (m *Machine) evaluate(ev distraction.Evidence) (State, taxonomy.Label) {
	for _, r := range camRules {
		if label, _, ok := m.classifier.Strongest(ev.Cam, r.signal); ok {
			return r.state, label
		}
	}
	if label, _, ok := m.classifier.Strongest(ev.Screen, taxonomy.SignalScreenDistraction); ok {
		return StateDistracted, label
	}
	return StateFocused, ""
}

func (m *Machine) open(state State, ev distraction.Evidence, now time.Time) *Interval {
	verdict := m.classifier.Classify(ev)

	iv := &Interval{
		ID:         uuid.NewString(),
		StartedAt:  now,
		State:      state,
		Type:       verdict.Type,
		Label:      verdict.Label,
		Confidence: verdict.Confidence(),
		Evidence:   make(map[taxonomy.Label]int),
	}
	addEvidence(iv, ev.Cam)
	addEvidence(iv, ev.Screen)
	m.interval = iv

	m.logger.Info().
		Str("interval_id", iv.ID).
		Str("type", string(iv.Type)).
		Str("label", string(iv.Label)).
		Float64("confidence", iv.Confidence).
		Interface("evidence", iv.Evidence).
		Msg("Distraction interval opened")

	snap := iv.Snapshot()
	return &snap
}

func (m *Machine) reenter(state State, ev distraction.Evidence, vote *fusion.Vote) *Interval {
	if m.interval == nil {
		return nil
	}

	verdict := m.classifier.Classify(ev)
	previous := m.interval.Type

	m.interval.State = state
	m.interval.Type = verdict.Type
	m.interval.Label = verdict.Label
	m.interval.Confidence = verdict.Confidence()
	addEvidence(m.interval, vote)

	m.logger.Info().
		Str("interval_id", m.interval.ID).
		Str("previous_type", string(previous)).
		Str("type", string(verdict.Type)).
		Str("label", string(verdict.Label)).
		Msg("Distraction interval updated")

	snap := m.interval.Snapshot()
	return &snap
}

// accumulate adds evidence to the open interval while the state holds. A
// verdict that changes the type (LookAway corroborated by a screen label, say)
// refines the interval and is reported as an update.
func (m *Machine) accumulate(ev distraction.Evidence, vote *fusion.Vote) *Interval {
	addEvidence(m.interval, vote)

	verdict := m.classifier.Classify(ev)
	if verdict.Type == taxonomy.TypeUnknown || verdict.Type == m.interval.Type {
		return nil
	}

	m.logger.Info().
		Str("interval_id", m.interval.ID).
		Str("previous_type", string(m.interval.Type)).
		Str("type", string(verdict.Type)).
		Str("label", string(verdict.Label)).
		Msg("Distraction interval refined")

	m.interval.Type = verdict.Type
	m.interval.Label = verdict.Label
	m.interval.Confidence = verdict.Confidence()

	snap := m.interval.Snapshot()
	return &snap
}

// close finalizes the open interval. It returns the interval as kept or as
// discarded; both are nil when no interval is open.
func (m *Machine) close(now time.Time, reason CloseReason) (kept, discarded *Interval) {
	iv := m.interval
	if iv == nil || !iv.Close(now, reason) {
		return nil, nil
	}
	m.interval = nil

	snap := iv.Snapshot()
	duration := snap.Duration()

	short := duration < m.config.MinDuration
	if short && (reason != CloseFlushed || !m.config.PersistShortOnStop) {
		metrics.Intervals.WithLabelValues(string(snap.Type), "discarded").Inc()
		m.logger.Info().
			Str("interval_id", snap.ID).
			Str("type", string(snap.Type)).
			Dur("duration", duration).
			Dur("min_duration", m.config.MinDuration).
			Str("reason", string(reason)).
			Interface("evidence", snap.Evidence).
			Msg("Distraction interval too short, discarded")
		return nil, &snap
	}

	m.logger.Info().
		Str("interval_id", snap.ID).
		Str("type", string(snap.Type)).
		Dur("duration", duration).
		Float64("confidence", snap.Confidence).
		Str("reason", string(reason)).
		Interface("evidence", snap.Evidence).
		Msg("Distraction interval closed")
	return &snap, nil
}

// Flush force-closes the open interval at session stop. Evidence is kept; the
// interval is discarded only when it is short and short flushes are not
// persisted. The state returns to Focused.
func (m *Machine) Flush() Outcome {
	out := Outcome{From: m.state, To: StateFocused}
	out.Closed, out.Discarded = m.close(m.clock.Now(), CloseFlushed)

	if out.Transitioned() {
		m.state = StateFocused
		m.reportState()
	}
	return out
}

func (m *Machine) reportState() {
	for _, s := range States {
		v := 0.0
		if s == m.state {
			v = 1
		}
		metrics.AttentionState.WithLabelValues(string(s)).Set(v)
	}
}

func addEvidence(iv *Interval, vote *fusion.Vote) {
	if vote == nil {
		return
	}
	for label, n := range vote.Majority {
		iv.Evidence[label] += n
	}
}
