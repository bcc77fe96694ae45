/*
Package config loads the planner's runtime configuration.

SOURCES (later wins):
  1. Defaults set in SetDefaults
  2. Optional YAML file (--config)
  3. PLANNER_* environment variables (PLANNER_SCHEDULER_INTERVAL, ...)
  4. Command-line flags bound by cmd/planner

KEYS:
  port                 HTTP port
  db                   SQLite path, ":memory:" for a throwaway database
  log.level            debug | info | warn | error
  log.format           text | json
  scheduler.enabled    run the consolidation job
  scheduler.interval   time between consolidation passes
  queue.cascade        gap | shift
  cors.origins         allowed browser origins
*/
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/warp/allocation-engine/planner"
)

const EnvPrefix = "PLANNER"

type Config struct {
	Port      int
	DBPath    string
	LogLevel  string
	LogFormat string
	Scheduler SchedulerConfig
	Queue     QueueConfig
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

type QueueConfig struct {
	Cascade planner.CascadePolicy
}

// New returns a viper instance reading PLANNER_* variables on top of the
// defaults.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db", "planner.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("queue.cascade", string(planner.CascadeGap))
	v.SetDefault("cors.origins", []string{"http://localhost:5173", "http://localhost:8080"})
}

// ReadFile merges a YAML file into v.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cascade, err := planner.ParseCascadePolicy(v.GetString("queue.cascade"))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Port:      v.GetInt("port"),
		DBPath:    v.GetString("db"),
		LogLevel:  strings.ToLower(v.GetString("log.level")),
		LogFormat: strings.ToLower(v.GetString("log.format")),
		Scheduler: SchedulerConfig{
			Enabled:  v.GetBool("scheduler.enabled"),
			Interval: v.GetDuration("scheduler.interval"),
		},
		Queue:          QueueConfig{Cascade: cascade},
		AllowedOrigins: v.GetStringSlice("cors.origins"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", c.Scheduler.Interval)
	}
	if _, err := planner.ParseCascadePolicy(string(c.Queue.Cascade)); err != nil {
		return err
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}
