package fusion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/rs/zerolog"
)

// Config holds fusion configuration
type Config struct {
	// K is the hysteresis width: the window size and the vote quorum base.
	K int
	// MinSpan is the smallest oldest-to-newest capture span that may vote.
	MinSpan time.Duration
	// MaxSpan bounds how far back from the newest entry a window reaches.
	MaxSpan time.Duration
}

// DefaultConfig returns the default fusion configuration.
func DefaultConfig() Config {
	return Config{
		K:       3,
		MinSpan: 15 * time.Second,
		MaxSpan: 2 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("fusion k must be at least 1, got %d", c.K)
	}
	if c.MinSpan < 0 || c.MaxSpan < 0 {
		return fmt.Errorf("fusion spans must not be negative")
	}
	if c.MaxSpan > 0 && c.MinSpan > c.MaxSpan {
		return fmt.Errorf("fusion min_span (%s) exceeds max_span (%s)", c.MinSpan, c.MaxSpan)
	}
	return nil
}

// Quorum returns ceil(K/2), the count a label needs to reach majority.
func (c Config) Quorum() int {
	return (c.K + 1) / 2
}

// Vote is the fused evidence of one kind's window.
type Vote struct {
	Kind taxonomy.Kind
	// Majority holds the labels whose count reached the quorum.
	Majority map[taxonomy.Label]int
	// Counts holds every label seen in the window.
	Counts map[taxonomy.Label]int
	Span   time.Duration
	K      int
	// At is the capture time of the newest window entry.
	At time.Time
}

// Has reports whether label reached majority.
func (v *Vote) Has(label taxonomy.Label) bool {
	if v == nil {
		return false
	}
	_, ok := v.Majority[label]
	return ok
}

// Count returns the majority count of label, or 0.
func (v *Vote) Count(label taxonomy.Label) int {
	if v == nil {
		return 0
	}
	return v.Majority[label]
}

// Labels returns the majority labels sorted by descending count, then name.
func (v *Vote) Labels() []taxonomy.Label {
	if v == nil {
		return nil
	}
	out := make([]taxonomy.Label, 0, len(v.Majority))
	for l := range v.Majority {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := v.Majority[out[i]], v.Majority[out[j]]
		if ci != cj {
			return ci > cj
		}
		return out[i] < out[j]
	})
	return out
}

// String renders the majority as "Label:count,..." for logs.
func (v *Vote) String() string {
	if v == nil {
		return "<none>"
	}
	parts := make([]string, 0, len(v.Majority))
	for _, l := range v.Labels() {
		parts = append(parts, fmt.Sprintf("%s:%d", l, v.Majority[l]))
	}
	return string(v.Kind) + "{" + strings.Join(parts, ",") + "}"
}

// Engine keeps one window per kind and turns accepted results into votes. It
// is owned by a single consumer goroutine and takes no locks.
type Engine struct {
	config  Config
	windows map[taxonomy.Kind]*Window
	logger  zerolog.Logger
}

// NewEngine creates a fusion engine.
func NewEngine(config Config, logger zerolog.Logger) *Engine {
	windows := make(map[taxonomy.Kind]*Window, len(taxonomy.Kinds))
	for _, kind := range taxonomy.Kinds {
		windows[kind] = NewWindow(config.K, config.MaxSpan)
	}

	return &Engine{
		config:  config,
		windows: windows,
		logger:  logger.With().Str("component", "fusion").Logger(),
	}
}

// Add inserts an accepted result and evaluates its kind's window. The second
// return value is false when the window is indeterminate (too few entries or
// too short a span) or the result was not accepted; no vote is produced then.
func (e *Engine) Add(r snapshot.Result) (*Vote, bool) {
	if !r.Accepted() {
		return nil, false
	}

	kind := r.Snapshot.Kind
	w, ok := e.windows[kind]
	if !ok {
		w = NewWindow(e.config.K, e.config.MaxSpan)
		e.windows[kind] = w
	}

	if evicted := w.Insert(r); evicted > 0 {
		e.logger.Debug().Str("kind", string(kind)).Int("evicted", evicted).Msg("Window entries evicted")
	}

	if w.Len() < e.config.K || w.Span() < e.config.MinSpan {
		metrics.FusionEvaluations.WithLabelValues(string(kind), "indeterminate").Inc()
		e.logger.Debug().
			Str("kind", string(kind)).
			Int("entries", w.Len()).
			Dur("span", w.Span()).
			Msg("Window indeterminate")
		return nil, false
	}

	vote := e.evaluate(kind, w)
	metrics.FusionEvaluations.WithLabelValues(string(kind), "vote").Inc()
	e.logger.Debug().
		Str("vote", vote.String()).
		Dur("span", vote.Span).
		Msg("Window vote")
	return vote, true
}

func (e *Engine) evaluate(kind taxonomy.Kind, w *Window) *Vote {
	counts := w.Counts()
	quorum := e.config.Quorum()

	majority := make(map[taxonomy.Label]int)
	for label, n := range counts {
		if n >= quorum {
			majority[label] = n
		}
	}

	entries := w.entries
	return &Vote{
		Kind:     kind,
		Majority: majority,
		Counts:   counts,
		Span:     w.Span(),
		K:        e.config.K,
		At:       entries[len(entries)-1].CapturedAt,
	}
}

// Window returns the window of a kind, for inspection.
func (e *Engine) Window(kind taxonomy.Kind) *Window {
	return e.windows[kind]
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}
