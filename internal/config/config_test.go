package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "10s", cfg.Session.SnapshotInterval)
	assert.Equal(t, "drop_oldest", cfg.Queue.DropPolicy)
	assert.Equal(t, 3, cfg.Workers.Count)
	assert.Equal(t, 3, cfg.Fusion.K)
	assert.Equal(t, "30s", cfg.Attention.MinDuration)
	assert.Equal(t, 3, cfg.Notifications.MicroBreakThreshold)
	assert.Equal(t, []string{"log"}, cfg.Notifications.Sinks)
	assert.Equal(t, 6379, cfg.Storage.Redis.Port)
	assert.Equal(t, 90, cfg.Storage.RetentionDays)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
session:
  snapshot_interval: 5s
fusion:
  k: 5
queue:
  drop_policy: drop_newest
vocabulary:
  labels:
    - name: Focused
      kind: cam
      threshold: 0.5
      signal: neutral
    - name: Absent
      kind: cam
      threshold: 0.6
      signal: absent
      distraction_type: Absent
    - name: Productive
      kind: screen
      threshold: 0.5
      signal: neutral
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5s", cfg.Session.SnapshotInterval)
	assert.Equal(t, 5, cfg.Fusion.K)
	assert.Equal(t, "drop_newest", cfg.Queue.DropPolicy)

	vocab, err := cfg.Vocabulary.Vocabulary()
	require.NoError(t, err)
	spec, ok := vocab.Lookup(taxonomy.KindCam, "Absent")
	require.True(t, ok)
	assert.Equal(t, taxonomy.TypeAbsent, spec.Type)
	assert.InDelta(t, 0.6, spec.Threshold, 1e-9)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ATTENTIOND_WORKERS_COUNT", "7")
	t.Setenv("ATTENTIOND_STORAGE_REDIS_HOST", "redis.internal")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Workers.Count)
	assert.Equal(t, "redis.internal", cfg.Storage.Redis.Host)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad duration", "session:\n  snapshot_interval: soon\n"},
		{"zero k", "fusion:\n  k: 0\n"},
		{"bad drop policy", "queue:\n  drop_policy: drop_random\n"},
		{"max span below min span", "fusion:\n  min_span: 1m\n  max_span: 30s\n"},
		{"micro-break threshold above history", "notifications:\n  micro_break_threshold: 25\n  alert_history_size: 20\n"},
		{"unknown sink", "notifications:\n  sinks: [email]\n"},
		{"nats without url", "notifications:\n  sinks: [nats]\n"},
		{"unknown label signal", "vocabulary:\n  labels:\n    - name: X\n      kind: cam\n      threshold: 0.5\n      signal: bogus\n"},
		{"unsupported storage", "storage:\n  type: bolt\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	for _, k := range []string{"session.snapshot_interval", "storage.redis.host", "notifications.sinks", "vocabulary.labels"} {
		assert.True(t, keys[k], k)
	}
	assert.False(t, keys["server.http_port"])
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 9464, cfg.Metrics.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("nope", time.Minute))
}

func TestVocabularyConfig_EmptyIsDefault(t *testing.T) {
	specs, err := VocabularyConfig{}.Specs()
	require.NoError(t, err)
	assert.Equal(t, taxonomy.DefaultSpecs(), specs)
}
