package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/attention"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/classifier"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/config"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/escalation"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/fusion"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/notify"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/scheduler"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/session"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/snapshot"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage/redis"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/systemd"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/worker"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// stopTimeout bounds draining in-flight classifications on shutdown.
const stopTimeout = 45 * time.Second

var serveUI bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attention engine",
	Long:  `Start a capture session with the classification pipeline, notification sinks and metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveUI, "ui", false, "Print notification events to the terminal")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger, closeLog := setupLogger(cfg.Logging)
	defer closeLog()
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting attentiond")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	vocabulary, err := cfg.Vocabulary.Vocabulary()
	if err != nil {
		return fmt.Errorf("failed to build label vocabulary: %w", err)
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("host", cfg.Storage.Redis.Host).
		Int("retention_days", cfg.Storage.RetentionDays).
		Msg("Storage initialized")

	// Initialize classifier
	client, err := newClassifier(cfg.Classifier, vocabulary, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}

	capturer, err := snapshot.NewCommandCapturer(cfg.Capture.CameraCommand, cfg.Capture.ScreenCommand)
	if err != nil {
		return fmt.Errorf("failed to initialize capturer: %w", err)
	}

	// Initialize escalation policy
	escalationEngine, err := escalation.NewEngine(cfg.Escalation.PolicyDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize escalation policy: %w", err)
	}

	// Initialize notification sinks
	sinks, ui, err := buildSinks(cfg.Notifications, store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notification sinks: %w", err)
	}
	if ui != nil {
		go printEvents(ui.Events(), os.Stdout)
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Session:             cfg.Session.Name,
		MicroBreakWindow:    config.ParseDuration(cfg.Notifications.MicroBreakWindow, 20*time.Minute),
		MicroBreakThreshold: cfg.Notifications.MicroBreakThreshold,
		ConsecutiveWindow:   config.ParseDuration(cfg.Notifications.ConsecutiveWindow, 60*time.Second),
		AlertHistorySize:    cfg.Notifications.AlertHistorySize,
	}, store.Intervals(), escalationEngine, sinks, logger)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close notification sinks")
		}
	}()

	sessionConfig, err := sessionConfigFrom(cfg)
	if err != nil {
		return err
	}
	pipeline := session.New(sessionConfig, capturer, client, vocabulary, dispatcher, nil, logger)

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, pipeline.Status, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}

		logger.Info().
			Str("addr", metricsAddr).
			Msg("Metrics Server started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	// Log startup complete
	logger.Info().
		Str("session", cfg.Session.Name).
		Str("interval", cfg.Session.SnapshotInterval).
		Int("workers", cfg.Workers.Count).
		Strs("sinks", cfg.Notifications.Sinks).
		Msg("attentiond startup complete")

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	if interval := systemd.WatchdogInterval(); interval > 0 {
		go runWatchdog(ctx, interval, logger)
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, reloading escalation policy...")
			if err := escalationEngine.Reload(); err != nil {
				logger.Error().Err(err).Msg("Failed to reload escalation policy")
			} else {
				logger.Info().Msg("Escalation policy reloaded successfully")
			}
			// Continue running
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			// Break out of loop to shutdown
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	if err := pipeline.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping session")
	}
	cancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("attentiond stopped")

	return nil
}

// openStorage opens the configured storage backend
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		return redis.Open(cfg.Redis, cfg.RetentionDays)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// newClassifier builds the vision client, wrapped in the LRU cache when enabled
func newClassifier(cfg config.ClassifierConfig, vocabulary *taxonomy.Vocabulary, logger zerolog.Logger) (classifier.Client, error) {
	httpClient, err := classifier.NewHTTPClient(classifier.HTTPConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: config.ParseDuration(cfg.Timeout, classifier.DefaultTimeout),
	}, vocabulary, logger)
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize <= 0 {
		return httpClient, nil
	}
	return classifier.NewCachingClient(httpClient, cfg.CacheSize, logger)
}

// buildSinks creates the configured notification sinks. The UI queue is only
// created when events are printed to the terminal.
func buildSinks(cfg config.NotificationsConfig, store storage.Store, logger zerolog.Logger) ([]notify.Sink, *notify.ChannelSink, error) {
	var sinks []notify.Sink
	var ui *notify.ChannelSink

	if serveUI {
		ui = notify.NewChannelSink(cfg.UIQueueSize)
		sinks = append(sinks, ui)
	}

	for _, name := range cfg.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, notify.NewLogSink(logger))
		case "redis":
			redisStore, ok := store.(*redis.Store)
			if !ok {
				return nil, nil, fmt.Errorf("redis sink requires redis storage")
			}
			sinks = append(sinks, notify.NewRedisSink(redisStore.Client(), cfg.RedisChannel))
		case "nats":
			natsSink, err := notify.NewNATSSink(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
			if err != nil {
				return nil, nil, err
			}
			sinks = append(sinks, natsSink)
		default:
			return nil, nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}

	return sinks, ui, nil
}

// sessionConfigFrom converts the loaded configuration into pipeline stage configs
func sessionConfigFrom(cfg *config.Config) (session.Config, error) {
	dropPolicy, err := scheduler.ParseDropPolicy(cfg.Queue.DropPolicy)
	if err != nil {
		return session.Config{}, err
	}

	defaults := worker.DefaultConfig()
	fusionDefaults := fusion.DefaultConfig()

	return session.Config{
		Scheduler: scheduler.Config{
			Interval: config.ParseDuration(cfg.Session.SnapshotInterval, scheduler.DefaultInterval),
		},
		QueueSize:  cfg.Queue.IntakeSize,
		DropPolicy: dropPolicy,
		Workers: worker.Config{
			Count:          cfg.Workers.Count,
			CallTimeout:    config.ParseDuration(cfg.Workers.CallTimeout, defaults.CallTimeout),
			MaxRetries:     cfg.Workers.MaxRetries,
			InitialBackoff: config.ParseDuration(cfg.Workers.InitialBackoff, defaults.InitialBackoff),
			MaxBackoff:     config.ParseDuration(cfg.Workers.MaxBackoff, defaults.MaxBackoff),
			ResultsSize:    cfg.Queue.ResultsSize,
		},
		Fusion: fusion.Config{
			K:       cfg.Fusion.K,
			MinSpan: config.ParseDuration(cfg.Fusion.MinSpan, fusionDefaults.MinSpan),
			MaxSpan: config.ParseDuration(cfg.Fusion.MaxSpan, fusionDefaults.MaxSpan),
		},
		Attention: attention.Config{
			MinDuration:        config.ParseDuration(cfg.Attention.MinDuration, 30*time.Second),
			PersistShortOnStop: cfg.Session.PersistShortOnStop,
		},
		DegradedAfterTicks: cfg.Session.DegradedAfterTicks,
	}, nil
}

// runWatchdog pings the systemd watchdog until ctx is done
func runWatchdog(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		}
	}
}

// printEvents renders UI events on the terminal until the queue is closed
func printEvents(events <-chan notify.Event, w io.Writer) {
	for ev := range events {
		printEvent(w, ev)
	}
}

func printEvent(w io.Writer, ev notify.Event) {
	var c *color.Color
	switch ev.Kind {
	case notify.KindAlert:
		c = color.New(color.FgYellow, color.Bold)
	case notify.KindMicroBreak:
		c = color.New(color.FgCyan, color.Bold)
	case notify.KindEscalation, notify.KindEngineStalled:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgGreen)
	}

	_, _ = c.Fprintf(w, "[%s] %-16s", ev.At.Local().Format("15:04:05"), ev.Kind)
	_, _ = fmt.Fprintf(w, " %s\n", ev.Message)
	if ev.Suggested != nil {
		_, _ = fmt.Fprintf(w, "           → suggested: %s %s (%s)\n", ev.Suggested.Action, ev.Suggested.Target, ev.Suggested.Reason)
	}
}

// setupLogger configures the logger based on configuration. The returned
// function closes the rotated log file, if any.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, func()) {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	var out io.Writer = os.Stdout
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	if cfg.File == "" {
		return zerolog.New(out).With().Timestamp().Logger(), func() {}
	}

	// The rotated file always gets JSON
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	writer := zerolog.MultiLevelWriter(out, file)
	return zerolog.New(writer).With().Timestamp().Logger(), func() { _ = file.Close() }
}
