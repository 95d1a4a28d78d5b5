package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/attention"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/escalation"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds dispatcher configuration
type Config struct {
	Session             string
	MicroBreakWindow    time.Duration
	MicroBreakThreshold int
	ConsecutiveWindow   time.Duration
	AlertHistorySize    int
}

// DefaultConfig returns the default trigger windows.
func DefaultConfig() Config {
	return Config{
		Session:             "default",
		MicroBreakWindow:    20 * time.Minute,
		MicroBreakThreshold: 3,
		ConsecutiveWindow:   60 * time.Second,
		AlertHistorySize:    DefaultAlertHistorySize,
	}
}

// Decider picks the suggested action of an escalation.
type Decider interface {
	Decide(ctx context.Context, input escalation.Input) (escalation.SuggestedAction, error)
}

// Dispatcher turns attention outcomes into events and persisted intervals.
// It is owned by the single consumer goroutine and is not safe for concurrent
// use.
type Dispatcher struct {
	config  Config
	store   storage.IntervalStore
	decider Decider
	sinks   []Sink
	logger  zerolog.Logger

	history     *AlertHistory
	microBreak  *MicroBreakDetector
	consecutive *ConsecutiveTracker
}

// NewDispatcher creates a dispatcher. store and decider may be nil: intervals
// are then not persisted and escalations suggest a plain notification.
func NewDispatcher(config Config, store storage.IntervalStore, decider Decider, sinks []Sink, logger zerolog.Logger) *Dispatcher {
	defaults := DefaultConfig()
	if config.MicroBreakWindow <= 0 {
		config.MicroBreakWindow = defaults.MicroBreakWindow
	}
	if config.MicroBreakThreshold <= 0 {
		config.MicroBreakThreshold = defaults.MicroBreakThreshold
	}
	if config.ConsecutiveWindow <= 0 {
		config.ConsecutiveWindow = defaults.ConsecutiveWindow
	}
	if config.Session == "" {
		config.Session = defaults.Session
	}

	history := NewAlertHistory(config.AlertHistorySize)
	return &Dispatcher{
		config:      config,
		store:       store,
		decider:     decider,
		sinks:       sinks,
		logger:      logger.With().Str("component", "notify").Logger(),
		history:     history,
		microBreak:  NewMicroBreakDetector(history, config.MicroBreakWindow, config.MicroBreakThreshold),
		consecutive: NewConsecutiveTracker(config.ConsecutiveWindow),
	}
}

// History returns the alert history.
func (d *Dispatcher) History() *AlertHistory {
	return d.history
}

// Handle dispatches everything an attention outcome calls for. The returned
// error is a persistence failure; events are still delivered.
func (d *Dispatcher) Handle(ctx context.Context, out attention.Outcome) error {
	if out.Opened != nil {
		d.Alert(ctx, *out.Opened)
	}
	if out.Closed != nil {
		return d.IntervalClosed(ctx, *out.Closed)
	}
	return nil
}

// Alert fires the immediate alert of a newly opened interval and checks the
// micro-break pattern.
func (d *Dispatcher) Alert(ctx context.Context, iv attention.Interval) {
	at := iv.StartedAt

	d.emit(ctx, Event{
		Kind:     KindAlert,
		At:       at,
		Interval: newIntervalInfo(iv),
		Message: fmt.Sprintf("%s distraction detected (confidence %.0f%%, evidence %s)",
			iv.Type, iv.Confidence*100, evidenceString(iv)),
	})

	count, fired := d.microBreak.Record(at)
	if !fired {
		return
	}

	d.logger.Info().
		Int("alerts", count).
		Dur("window", d.config.MicroBreakWindow).
		Int("threshold", d.config.MicroBreakThreshold).
		Msg("Micro-break pattern detected")

	d.emit(ctx, Event{
		Kind:          KindMicroBreak,
		At:            at,
		Interval:      newIntervalInfo(iv),
		AlertCount:    count,
		WindowSeconds: d.config.MicroBreakWindow.Seconds(),
		Message: fmt.Sprintf("%d distractions in the last %s, consider a short break",
			count, d.config.MicroBreakWindow),
	})
}

// IntervalClosed persists a finalized interval and checks the consecutive
// distraction rule. Flushed intervals are persisted but do not escalate.
func (d *Dispatcher) IntervalClosed(ctx context.Context, iv attention.Interval) error {
	err := d.persist(ctx, iv)

	if iv.Reason == attention.CloseFlushed {
		return err
	}

	previous, gap, ok := d.consecutive.Observe(iv)
	if !ok {
		if previous != nil {
			d.logger.Debug().
				Str("interval_id", iv.ID).
				Dur("gap", gap).
				Dur("window", d.config.ConsecutiveWindow).
				Msg("Distraction ends too far apart, no escalation")
		}
		return err
	}

	d.escalate(ctx, *previous, iv, gap)
	return err
}

func (d *Dispatcher) persist(ctx context.Context, iv attention.Interval) error {
	outcome := "persisted"
	if iv.Reason == attention.CloseFlushed {
		outcome = "flushed"
	}

	if d.store == nil {
		metrics.Intervals.WithLabelValues(string(iv.Type), outcome).Inc()
		return nil
	}

	record := storage.Interval{
		ID:         iv.ID,
		Session:    d.config.Session,
		Type:       string(iv.Type),
		State:      string(iv.State),
		Label:      string(iv.Label),
		StartedAt:  iv.StartedAt,
		EndedAt:    iv.EndedAt,
		Confidence: iv.Confidence,
		Evidence:   evidenceMap(iv.Evidence),
		Reason:     string(iv.Reason),
	}
	if err := d.store.SaveInterval(ctx, record); err != nil {
		metrics.PersistenceFailures.Inc()
		d.logger.Error().
			Err(err).
			Str("interval_id", iv.ID).
			Str("type", string(iv.Type)).
			Msg("Failed to persist distraction interval")
		return fmt.Errorf("persist interval %s: %w", iv.ID, err)
	}

	metrics.Intervals.WithLabelValues(string(iv.Type), outcome).Inc()
	d.logger.Debug().Str("interval_id", iv.ID).Msg("Distraction interval persisted")
	return nil
}

func (d *Dispatcher) escalate(ctx context.Context, previous, current attention.Interval, gap time.Duration) {
	input := escalation.Input{
		Type:            string(current.Type),
		Label:           string(current.Label),
		PreviousType:    string(previous.Type),
		GapSeconds:      gap.Seconds(),
		DurationSeconds: current.Duration().Seconds(),
		Evidence:        evidenceMap(current.Evidence),
	}

	action := escalation.SuggestedAction{
		Action: escalation.ActionNotify,
		Reason: "two distractions ended close together",
	}
	if d.decider != nil {
		decided, err := d.decider.Decide(ctx, input)
		if err != nil {
			d.logger.Error().Err(err).Msg("Escalation policy failed, suggesting notify")
		} else {
			action = decided
		}
	}

	d.logger.Warn().
		Str("interval_id", current.ID).
		Str("previous_interval_id", previous.ID).
		Str("type", string(current.Type)).
		Str("previous_type", string(previous.Type)).
		Dur("gap", gap).
		Str("action", action.Action).
		Str("target", action.Target).
		Interface("evidence", input.Evidence).
		Msg("Consecutive distraction escalation")

	d.emit(ctx, Event{
		Kind:       KindEscalation,
		At:         current.EndedAt,
		Interval:   newIntervalInfo(current),
		Previous:   newIntervalInfo(previous),
		GapSeconds: gap.Seconds(),
		Suggested:  &action,
		Message: fmt.Sprintf("%s and %s distractions ended %s apart, suggested action: %s",
			previous.Type, current.Type, gap, action.Action),
	})
}

// EngineStalled tells the UI that a snapshot kind produced no accepted result
// for ticks consecutive scheduler ticks.
func (d *Dispatcher) EngineStalled(ctx context.Context, kind taxonomy.Kind, ticks int, at time.Time) {
	d.emit(ctx, Event{
		Kind:         KindEngineStalled,
		At:           at,
		SnapshotKind: string(kind),
		Ticks:        ticks,
		Message:      fmt.Sprintf("no %s classification for %d ticks, attention state is frozen", kind, ticks),
	})
}

// EngineRecovered tells the UI that a stalled kind produces results again.
func (d *Dispatcher) EngineRecovered(ctx context.Context, kind taxonomy.Kind, at time.Time) {
	d.emit(ctx, Event{
		Kind:         KindEngineRecovered,
		At:           at,
		SnapshotKind: string(kind),
		Message:      fmt.Sprintf("%s classification recovered", kind),
	})
}

func (d *Dispatcher) emit(ctx context.Context, event Event) {
	event.ID = uuid.NewString()
	event.Session = d.config.Session
	metrics.Notifications.WithLabelValues(string(event.Kind)).Inc()

	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, event); err != nil {
			metrics.NotificationsDropped.WithLabelValues(sink.Name()).Inc()
			d.logger.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("kind", string(event.Kind)).
				Str("event_id", event.ID).
				Msg("Notification dropped")
		}
	}
}

// Close closes every sink.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s sink: %w", sink.Name(), err)
		}
	}
	return firstErr
}
