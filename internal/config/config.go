package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Session       SessionConfig       `mapstructure:"session"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Workers       WorkersConfig       `mapstructure:"workers"`
	Fusion        FusionConfig        `mapstructure:"fusion"`
	Attention     AttentionConfig     `mapstructure:"attention"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Capture       CaptureConfig       `mapstructure:"capture"`
	Vocabulary    VocabularyConfig    `mapstructure:"vocabulary"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// SessionConfig defines the capture session
type SessionConfig struct {
	Name               string `mapstructure:"name"`
	SnapshotInterval   string `mapstructure:"snapshot_interval"`
	DegradedAfterTicks int    `mapstructure:"degraded_after_ticks"`
	PersistShortOnStop bool   `mapstructure:"persist_short_on_stop"`
}

// QueueConfig defines the intake and results queues
type QueueConfig struct {
	IntakeSize  int    `mapstructure:"intake_size"`
	ResultsSize int    `mapstructure:"results_size"`
	DropPolicy  string `mapstructure:"drop_policy"` // "drop_oldest" or "drop_newest"
}

// WorkersConfig defines the classification worker pool
type WorkersConfig struct {
	Count          int    `mapstructure:"count"`
	CallTimeout    string `mapstructure:"call_timeout"`
	MaxRetries     int    `mapstructure:"max_retries"`
	InitialBackoff string `mapstructure:"initial_backoff"`
	MaxBackoff     string `mapstructure:"max_backoff"`
}

// FusionConfig defines hysteresis voting
type FusionConfig struct {
	K       int    `mapstructure:"k"`
	MinSpan string `mapstructure:"min_span"`
	MaxSpan string `mapstructure:"max_span"`
}

// AttentionConfig defines the state machine
type AttentionConfig struct {
	MinDuration string `mapstructure:"min_duration"`
}

// NotificationsConfig defines notification triggers and sinks
type NotificationsConfig struct {
	MicroBreakWindow    string   `mapstructure:"micro_break_window"`
	MicroBreakThreshold int      `mapstructure:"micro_break_threshold"`
	ConsecutiveWindow   string   `mapstructure:"consecutive_window"`
	AlertHistorySize    int      `mapstructure:"alert_history_size"`
	Sinks               []string `mapstructure:"sinks"` // any of "log", "redis", "nats"
	RedisChannel        string   `mapstructure:"redis_channel"`
	NATSURL             string   `mapstructure:"nats_url"`
	NATSSubjectPrefix   string   `mapstructure:"nats_subject_prefix"`
	UIQueueSize         int      `mapstructure:"ui_queue_size"`
}

// ClassifierConfig defines the vision classifier endpoint
type ClassifierConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Timeout   string `mapstructure:"timeout"`
	CacheSize int    `mapstructure:"cache_size"` // 0 disables the cache
}

// CaptureConfig defines the external capture commands
type CaptureConfig struct {
	CameraCommand []string `mapstructure:"camera_command"`
	ScreenCommand []string `mapstructure:"screen_command"`
}

// VocabularyConfig defines the label table. Empty means the built-in table.
type VocabularyConfig struct {
	Labels []LabelConfig `mapstructure:"labels"`
}

// LabelConfig defines one vocabulary label
type LabelConfig struct {
	Name            string  `mapstructure:"name"`
	Kind            string  `mapstructure:"kind"`
	Threshold       float64 `mapstructure:"threshold"`
	Signal          string  `mapstructure:"signal"`
	DistractionType string  `mapstructure:"distraction_type"`
}

// EscalationConfig defines the escalation policy
type EscalationConfig struct {
	PolicyDir string `mapstructure:"policy_dir"` // empty uses the embedded policy
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type          string      `mapstructure:"type"`
	Redis         RedisConfig `mapstructure:"redis"`
	RetentionDays int         `mapstructure:"retention_days"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig defines the metrics endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("ATTENTIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration made of default values only.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Session defaults
	v.SetDefault("session.name", "default")
	v.SetDefault("session.snapshot_interval", "10s")
	v.SetDefault("session.degraded_after_ticks", 6)
	v.SetDefault("session.persist_short_on_stop", true)

	// Queue defaults
	v.SetDefault("queue.intake_size", 8)
	v.SetDefault("queue.results_size", 32)
	v.SetDefault("queue.drop_policy", "drop_oldest")

	// Worker defaults
	v.SetDefault("workers.count", 3)
	v.SetDefault("workers.call_timeout", "20s")
	v.SetDefault("workers.max_retries", 2)
	v.SetDefault("workers.initial_backoff", "500ms")
	v.SetDefault("workers.max_backoff", "4s")

	// Fusion defaults
	v.SetDefault("fusion.k", 3)
	v.SetDefault("fusion.min_span", "15s")
	v.SetDefault("fusion.max_span", "2m")

	// Attention defaults
	v.SetDefault("attention.min_duration", "30s")

	// Notification defaults
	v.SetDefault("notifications.micro_break_window", "20m")
	v.SetDefault("notifications.micro_break_threshold", 3)
	v.SetDefault("notifications.consecutive_window", "60s")
	v.SetDefault("notifications.alert_history_size", 20)
	v.SetDefault("notifications.sinks", []string{"log"})
	v.SetDefault("notifications.redis_channel", "attentiond:events")
	v.SetDefault("notifications.nats_url", "")
	v.SetDefault("notifications.nats_subject_prefix", "attentiond")
	v.SetDefault("notifications.ui_queue_size", 32)

	// Classifier defaults
	v.SetDefault("classifier.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.timeout", "20s")
	v.SetDefault("classifier.cache_size", 256)

	// Capture defaults
	v.SetDefault("capture.camera_command", []string{"ffmpeg", "-loglevel", "error", "-f", "v4l2", "-i", "/dev/video0", "-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-"})
	v.SetDefault("capture.screen_command", []string{"grim", "-t", "jpeg", "-"})

	// Escalation defaults
	v.SetDefault("escalation.policy_dir", "")

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.retention_days", 90)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9464)
}

// ValidKeys returns the set of every recognized configuration key.
func ValidKeys() map[string]bool {
	v := viper.New()
	SetDefaults(v)

	keys := make(map[string]bool)
	for _, k := range v.AllKeys() {
		keys[k] = true
	}
	// vocabulary.labels is a list of tables; viper reports it as one key.
	keys["vocabulary.labels"] = true
	return keys
}

// Specs converts the configured label table. An empty table yields the
// built-in default.
func (c VocabularyConfig) Specs() ([]taxonomy.LabelSpec, error) {
	if len(c.Labels) == 0 {
		return taxonomy.DefaultSpecs(), nil
	}

	specs := make([]taxonomy.LabelSpec, 0, len(c.Labels))
	for i, l := range c.Labels {
		kind, err := taxonomy.ParseKind(l.Kind)
		if err != nil {
			return nil, fmt.Errorf("vocabulary.labels[%d] (%s): %w", i, l.Name, err)
		}
		signal, err := taxonomy.ParseSignal(l.Signal)
		if err != nil {
			return nil, fmt.Errorf("vocabulary.labels[%d] (%s): %w", i, l.Name, err)
		}

		spec := taxonomy.LabelSpec{
			Name:      taxonomy.Label(l.Name),
			Kind:      kind,
			Threshold: l.Threshold,
			Signal:    signal,
		}
		if l.DistractionType != "" {
			typ, err := taxonomy.ParseDistractionType(l.DistractionType)
			if err != nil {
				return nil, fmt.Errorf("vocabulary.labels[%d] (%s): %w", i, l.Name, err)
			}
			spec.Type = typ
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Vocabulary builds the immutable label vocabulary.
func (c VocabularyConfig) Vocabulary() (*taxonomy.Vocabulary, error) {
	specs, err := c.Specs()
	if err != nil {
		return nil, err
	}
	return taxonomy.NewVocabulary(specs)
}

// ParseDuration parses a duration string, returning the default if parsing fails
func ParseDuration(s string, defaultDuration time.Duration) time.Duration {
	if s == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultDuration
	}
	return d
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile bypasses the search path, so a missing file surfaces as
	// an os error rather than ConfigFileNotFoundError.
	return strings.Contains(err.Error(), "no such file or directory")
}

// validate checks configuration for errors
func validate(c *Config) error {
	durations := map[string]string{
		"session.snapshot_interval":        c.Session.SnapshotInterval,
		"workers.call_timeout":             c.Workers.CallTimeout,
		"workers.initial_backoff":          c.Workers.InitialBackoff,
		"workers.max_backoff":              c.Workers.MaxBackoff,
		"fusion.min_span":                  c.Fusion.MinSpan,
		"fusion.max_span":                  c.Fusion.MaxSpan,
		"attention.min_duration":           c.Attention.MinDuration,
		"notifications.micro_break_window": c.Notifications.MicroBreakWindow,
		"notifications.consecutive_window": c.Notifications.ConsecutiveWindow,
		"classifier.timeout":               c.Classifier.Timeout,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	if c.Queue.IntakeSize < 1 {
		return fmt.Errorf("queue.intake_size must be at least 1")
	}
	if c.Queue.ResultsSize < 1 {
		return fmt.Errorf("queue.results_size must be at least 1")
	}
	switch c.Queue.DropPolicy {
	case "drop_oldest", "drop_newest":
	default:
		return fmt.Errorf("queue.drop_policy must be drop_oldest or drop_newest, got %q", c.Queue.DropPolicy)
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1")
	}
	if c.Workers.MaxRetries < 0 {
		return fmt.Errorf("workers.max_retries must not be negative")
	}
	if c.Fusion.K < 1 {
		return fmt.Errorf("fusion.k must be at least 1")
	}
	if ParseDuration(c.Fusion.MaxSpan, 0) < ParseDuration(c.Fusion.MinSpan, 0) {
		return fmt.Errorf("fusion.max_span must not be shorter than fusion.min_span")
	}
	if c.Notifications.MicroBreakThreshold < 1 {
		return fmt.Errorf("notifications.micro_break_threshold must be at least 1")
	}
	if c.Notifications.AlertHistorySize < 1 {
		return fmt.Errorf("notifications.alert_history_size must be at least 1")
	}
	if c.Notifications.MicroBreakThreshold > c.Notifications.AlertHistorySize {
		return fmt.Errorf("notifications.micro_break_threshold (%d) must not exceed notifications.alert_history_size (%d)",
			c.Notifications.MicroBreakThreshold, c.Notifications.AlertHistorySize)
	}
	for _, sink := range c.Notifications.Sinks {
		switch sink {
		case "log", "redis":
		case "nats":
			if c.Notifications.NATSURL == "" {
				return fmt.Errorf("notifications.nats_url is required for the nats sink")
			}
		default:
			return fmt.Errorf("unknown notification sink %q", sink)
		}
	}
	if c.Classifier.BaseURL == "" || c.Classifier.Model == "" {
		return fmt.Errorf("classifier.base_url and classifier.model are required")
	}
	if len(c.Capture.CameraCommand) == 0 || len(c.Capture.ScreenCommand) == 0 {
		return fmt.Errorf("capture.camera_command and capture.screen_command are required")
	}
	if _, err := c.Vocabulary.Vocabulary(); err != nil {
		return fmt.Errorf("vocabulary: %w", err)
	}
	if c.Storage.Type != "redis" {
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Storage.RetentionDays < 1 {
		return fmt.Errorf("storage.retention_days must be at least 1")
	}

	return nil
}
