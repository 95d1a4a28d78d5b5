package main

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the attentiond configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(out)
		red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(out, "   - %s\n", key)
		}
		fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := config.ValidKeys()

	// Find unknown keys
	unknown := []string{}
	for _, key := range v.AllKeys() {
		if validKeys[key] || strings.HasPrefix(key, "vocabulary.labels.") {
			continue
		}
		unknown = append(unknown, key)
	}
	sort.Strings(unknown)

	return unknown, nil
}

// dumpConfig prints every section with non-default values highlighted
func dumpConfig(w io.Writer, cfg, defaultCfg *config.Config, unknownKeys []string) {
	// Setup colors (only if terminal supports it)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	field := func(name string, value, defaultValue interface{}) {
		dumpField(w, name, value, defaultValue, yellow, green)
	}

	// Session
	_, _ = cyan.Fprintln(w, "\n[session]")
	field("  name", cfg.Session.Name, defaultCfg.Session.Name)
	field("  snapshot_interval", cfg.Session.SnapshotInterval, defaultCfg.Session.SnapshotInterval)
	field("  degraded_after_ticks", cfg.Session.DegradedAfterTicks, defaultCfg.Session.DegradedAfterTicks)
	field("  persist_short_on_stop", cfg.Session.PersistShortOnStop, defaultCfg.Session.PersistShortOnStop)

	// Queue
	_, _ = cyan.Fprintln(w, "\n[queue]")
	field("  intake_size", cfg.Queue.IntakeSize, defaultCfg.Queue.IntakeSize)
	field("  results_size", cfg.Queue.ResultsSize, defaultCfg.Queue.ResultsSize)
	field("  drop_policy", cfg.Queue.DropPolicy, defaultCfg.Queue.DropPolicy)

	// Workers
	_, _ = cyan.Fprintln(w, "\n[workers]")
	field("  count", cfg.Workers.Count, defaultCfg.Workers.Count)
	field("  call_timeout", cfg.Workers.CallTimeout, defaultCfg.Workers.CallTimeout)
	field("  max_retries", cfg.Workers.MaxRetries, defaultCfg.Workers.MaxRetries)
	field("  initial_backoff", cfg.Workers.InitialBackoff, defaultCfg.Workers.InitialBackoff)
	field("  max_backoff", cfg.Workers.MaxBackoff, defaultCfg.Workers.MaxBackoff)

	// Fusion
	_, _ = cyan.Fprintln(w, "\n[fusion]")
	field("  k", cfg.Fusion.K, defaultCfg.Fusion.K)
	field("  min_span", cfg.Fusion.MinSpan, defaultCfg.Fusion.MinSpan)
	field("  max_span", cfg.Fusion.MaxSpan, defaultCfg.Fusion.MaxSpan)

	// Attention
	_, _ = cyan.Fprintln(w, "\n[attention]")
	field("  min_duration", cfg.Attention.MinDuration, defaultCfg.Attention.MinDuration)

	// Notifications
	_, _ = cyan.Fprintln(w, "\n[notifications]")
	field("  micro_break_window", cfg.Notifications.MicroBreakWindow, defaultCfg.Notifications.MicroBreakWindow)
	field("  micro_break_threshold", cfg.Notifications.MicroBreakThreshold, defaultCfg.Notifications.MicroBreakThreshold)
	field("  consecutive_window", cfg.Notifications.ConsecutiveWindow, defaultCfg.Notifications.ConsecutiveWindow)
	field("  alert_history_size", cfg.Notifications.AlertHistorySize, defaultCfg.Notifications.AlertHistorySize)
	field("  sinks", cfg.Notifications.Sinks, defaultCfg.Notifications.Sinks)
	field("  redis_channel", cfg.Notifications.RedisChannel, defaultCfg.Notifications.RedisChannel)
	field("  nats_url", cfg.Notifications.NATSURL, defaultCfg.Notifications.NATSURL)
	field("  nats_subject_prefix", cfg.Notifications.NATSSubjectPrefix, defaultCfg.Notifications.NATSSubjectPrefix)
	field("  ui_queue_size", cfg.Notifications.UIQueueSize, defaultCfg.Notifications.UIQueueSize)

	// Classifier
	_, _ = cyan.Fprintln(w, "\n[classifier]")
	field("  base_url", cfg.Classifier.BaseURL, defaultCfg.Classifier.BaseURL)
	field("  api_key", redactPassword(cfg.Classifier.APIKey), redactPassword(defaultCfg.Classifier.APIKey))
	field("  model", cfg.Classifier.Model, defaultCfg.Classifier.Model)
	field("  timeout", cfg.Classifier.Timeout, defaultCfg.Classifier.Timeout)
	field("  cache_size", cfg.Classifier.CacheSize, defaultCfg.Classifier.CacheSize)

	// Capture
	_, _ = cyan.Fprintln(w, "\n[capture]")
	field("  camera_command", cfg.Capture.CameraCommand, defaultCfg.Capture.CameraCommand)
	field("  screen_command", cfg.Capture.ScreenCommand, defaultCfg.Capture.ScreenCommand)

	// Vocabulary
	_, _ = cyan.Fprintln(w, "\n[vocabulary]")
	if len(cfg.Vocabulary.Labels) == 0 {
		_, _ = green.Fprintln(w, "  labels = (built-in default)")
	}
	for _, l := range cfg.Vocabulary.Labels {
		_, _ = yellow.Fprintf(w, "  %s/%s threshold=%.2f signal=%s type=%s\n",
			l.Kind, l.Name, l.Threshold, l.Signal, l.DistractionType)
	}

	// Escalation
	_, _ = cyan.Fprintln(w, "\n[escalation]")
	field("  policy_dir", cfg.Escalation.PolicyDir, defaultCfg.Escalation.PolicyDir)

	// Storage
	_, _ = cyan.Fprintln(w, "\n[storage]")
	field("  type", cfg.Storage.Type, defaultCfg.Storage.Type)
	field("  retention_days", cfg.Storage.RetentionDays, defaultCfg.Storage.RetentionDays)
	_, _ = cyan.Fprintln(w, "  [storage.redis]")
	field("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host)
	field("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port)
	field("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password))
	field("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB)
	field("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize)
	field("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns)
	field("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout)
	field("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout)
	field("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout)

	// Logging
	_, _ = cyan.Fprintln(w, "\n[logging]")
	field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)
	field("  file", cfg.Logging.File, defaultCfg.Logging.File)
	field("  max_size_mb", cfg.Logging.MaxSizeMB, defaultCfg.Logging.MaxSizeMB)
	field("  max_backups", cfg.Logging.MaxBackups, defaultCfg.Logging.MaxBackups)
	field("  max_age_days", cfg.Logging.MaxAgeDays, defaultCfg.Logging.MaxAgeDays)
	field("  compress", cfg.Logging.Compress, defaultCfg.Logging.Compress)

	// Metrics
	_, _ = cyan.Fprintln(w, "\n[metrics]")
	field("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled)
	field("  bind_address", cfg.Metrics.BindAddress, defaultCfg.Metrics.BindAddress)
	field("  port", cfg.Metrics.Port, defaultCfg.Metrics.Port)

	// Display unknown keys if any
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Fprintln(w, "\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(w, "  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(w io.Writer, name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	// Deep equal comparison
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Fprintf(w, "%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Fprintf(w, "%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
