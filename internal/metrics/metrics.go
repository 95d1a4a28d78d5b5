package metrics

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Intake metrics
	IntakeQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "attentiond_intake_queue_depth",
			Help: "Snapshots waiting for a classification worker",
		},
	)

	SnapshotsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_snapshots_dropped_total",
			Help: "Snapshots dropped because the intake queue was saturated",
		},
		[]string{"kind", "policy"},
	)

	CaptureFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attentiond_capture_failures_total",
			Help: "Scheduler ticks lost to capture failures",
		},
	)

	// Classifier metrics
	ClassifierCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_classifier_calls_total",
			Help: "Classifier calls by outcome",
		},
		[]string{"kind", "outcome"},
	)

	ClassifierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attentiond_classifier_duration_seconds",
			Help:    "Classifier call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"kind"},
	)

	ClassifierCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attentiond_classifier_cache_hits_total",
			Help: "Classifications served from the image cache",
		},
	)

	ClassifierCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attentiond_classifier_cache_misses_total",
			Help: "Classifications not found in the image cache",
		},
	)

	VocabularyViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_vocabulary_violations_total",
			Help: "Classifier labels discarded while sanitizing",
		},
		[]string{"kind", "reason"},
	)

	// Fusion and state metrics
	FusionEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_fusion_evaluations_total",
			Help: "Fusion window evaluations by outcome",
		},
		[]string{"kind", "outcome"},
	)

	AttentionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attentiond_attention_state",
			Help: "Current attention state (1 for the active state)",
		},
		[]string{"state"},
	)

	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_state_transitions_total",
			Help: "Attention state transitions",
		},
		[]string{"from", "to"},
	)

	Intervals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_distraction_intervals_total",
			Help: "Closed distraction intervals by outcome",
		},
		[]string{"type", "outcome"},
	)

	// Notification metrics
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_notifications_total",
			Help: "Events emitted to notification sinks",
		},
		[]string{"kind"},
	)

	NotificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_notifications_dropped_total",
			Help: "Events a sink could not accept",
		},
		[]string{"sink"},
	)

	PersistenceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attentiond_persistence_failures_total",
			Help: "Finalized intervals the persistence backend rejected",
		},
	)

	Degraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attentiond_degraded",
			Help: "1 while no accepted classification arrives for a kind",
		},
		[]string{"kind"},
	)

	HeldVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attentiond_held_votes_total",
			Help: "Fusion votes not applied because a kind is stalled",
		},
		[]string{"kind"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		IntakeQueueDepth,
		SnapshotsDropped,
		CaptureFailures,
		ClassifierCalls,
		ClassifierDuration,
		ClassifierCacheHits,
		ClassifierCacheMisses,
		VocabularyViolations,
		FusionEvaluations,
		AttentionState,
		StateTransitions,
		Intervals,
		Notifications,
		NotificationsDropped,
		PersistenceFailures,
		Degraded,
		HeldVotes,
	)
}

// HealthFunc reports the engine status served on /health.
type HealthFunc func() HealthStatus

// HealthStatus is the JSON body of /health.
type HealthStatus struct {
	Status        string   `json:"status"` // "healthy", "degraded", "stopped"
	State         string   `json:"state"`
	IntervalOpen  bool     `json:"interval_open"`
	QueueDepth    int      `json:"queue_depth"`
	StalledKinds  []string `json:"stalled_kinds,omitempty"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. health may be nil.
func NewServer(addr string, health HealthFunc, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
			return
		}

		status := health()
		w.Header().Set("Content-Type", "application/json")
		if status.Status == "stopped" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler exposes the server mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
