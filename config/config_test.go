package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/config"
	"github.com/warp/allocation-engine/planner"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.New())

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "planner.db", cfg.DBPath)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, planner.CascadeGap, cfg.Queue.Cascade)
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:5173")
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	// GIVEN: PLANNER_* variables
	t.Setenv("PLANNER_PORT", "9090")
	t.Setenv("PLANNER_QUEUE_CASCADE", "shift")
	t.Setenv("PLANNER_SCHEDULER_INTERVAL", "15m")
	t.Setenv("PLANNER_LOG_LEVEL", "DEBUG")

	// WHEN: Loading
	cfg, err := config.Load(config.New())

	// THEN: They win over the defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, planner.CascadeShift, cfg.Queue.Cascade)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_YAMLFile(t *testing.T) {
	// GIVEN: A config file
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: ":memory:"
log:
  format: json
scheduler:
  enabled: false
cors:
  origins: ["https://plan.example.com"]
`), 0o600))
	v := config.New()

	// WHEN: Reading it
	require.NoError(t, config.ReadFile(v, path))
	cfg, err := config.Load(v)

	// THEN: File values replace the defaults
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"https://plan.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown cascade", "queue.cascade", "reorder"},
		{"negative interval", "scheduler.interval", -time.Minute},
		{"bad port", "port", 0},
		{"bad level", "log.level", "loud"},
		{"bad format", "log.format", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := config.New()
			v.Set(tt.key, tt.val)

			_, err := config.Load(v)

			assert.Error(t, err)
		})
	}
}
