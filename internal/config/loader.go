package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve in minimal containers

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if CADENCE_CONFIG is set
//  3. env (prefix CADENCE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("CADENCE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like CADENCE_QUEUE_SIZE -> queue_size (flat keys).
	// CADENCE_CONFIG itself is consumed above and ignored here.
	envProvider := env.Provider("CADENCE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "cadence_")
		if s == "config" {
			return ""
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.StoreDriver == StorePostgres && c.PostgresDSN == "" {
		return fmt.Errorf("%w: postgres_dsn is required for the postgres store", ErrInvalidConfig)
	}
	return nil
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Sanitize replaces out-of-range tunables with their defaults and returns one
// warning per replaced value. It never fails.
func (c *Config) Sanitize(ctx context.Context) []string {
	def := New(ctx)
	var warnings []string
	warn := func(key string, got any, want any) {
		warnings = append(warnings, fmt.Sprintf("%s=%v is invalid, using %v", key, got, want))
	}

	positiveInt := func(key string, v *int, d int) {
		if *v <= 0 {
			warn(key, *v, d)
			*v = d
		}
	}
	hour := func(key string, v *int, d int) {
		if *v < 0 || *v > 23 {
			warn(key, *v, d)
			*v = d
		}
	}
	unit := func(key string, v *float64, d float64) {
		if !(*v > 0 && *v < 1) {
			warn(key, *v, d)
			*v = d
		}
	}

	positiveInt("queue_size", &c.QueueSize, def.QueueSize)
	positiveInt("worker_count", &c.WorkerCount, def.WorkerCount)
	positiveInt("dedupe_size", &c.DedupeSize, def.DedupeSize)
	positiveInt("attempt_timeout_ms", &c.AttemptTimeoutMS, def.AttemptTimeoutMS)
	positiveInt("confidence_checkpoint_seconds", &c.ConfidenceCheckpointSeconds, def.ConfidenceCheckpointSeconds)
	positiveInt("temporal_checkpoint_seconds", &c.TemporalCheckpointSeconds, def.TemporalCheckpointSeconds)
	positiveInt("card_checkpoint_seconds", &c.CardCheckpointSeconds, def.CardCheckpointSeconds)
	positiveInt("maximum_interval", &c.MaximumInterval, def.MaximumInterval)
	positiveInt("leech_threshold", &c.LeechThreshold, def.LeechThreshold)
	positiveInt("fast_threshold_ms", &c.FastThresholdMS, def.FastThresholdMS)
	positiveInt("slow_threshold_ms", &c.SlowThresholdMS, def.SlowThresholdMS)
	positiveInt("flow_min_dwell_seconds", &c.FlowMinDwellSeconds, def.FlowMinDwellSeconds)
	positiveInt("profile_recency_days", &c.ProfileRecencyDays, def.ProfileRecencyDays)
	positiveInt("metrics_sample_seconds", &c.MetricsSampleSeconds, def.MetricsSampleSeconds)

	if !metricName.MatchString(c.MetricsNamespace) {
		warn("metrics_namespace", c.MetricsNamespace, def.MetricsNamespace)
		c.MetricsNamespace = def.MetricsNamespace
	}

	if c.SlowThresholdMS <= c.FastThresholdMS {
		warn("slow_threshold_ms", c.SlowThresholdMS, def.SlowThresholdMS)
		c.FastThresholdMS, c.SlowThresholdMS = def.FastThresholdMS, def.SlowThresholdMS
	}

	unit("desired_retention", &c.DesiredRetention, def.DesiredRetention)
	unit("recovery_rate_per_minute", &c.RecoveryRatePerMinute, def.RecoveryRatePerMinute)
	unit("load_threshold", &c.LoadThreshold, def.LoadThreshold)

	hour("morning_peak_start", &c.MorningPeakStart, def.MorningPeakStart)
	hour("morning_peak_end", &c.MorningPeakEnd, def.MorningPeakEnd)
	hour("post_lunch_start", &c.PostLunchStart, def.PostLunchStart)
	hour("post_lunch_end", &c.PostLunchEnd, def.PostLunchEnd)
	hour("late_night_start", &c.LateNightStart, def.LateNightStart)
	hour("late_night_end", &c.LateNightEnd, def.LateNightEnd)

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		warn("timezone", c.Timezone, def.Timezone)
		c.Timezone = def.Timezone
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		warn("log_format", c.LogFormat, def.LogFormat)
		c.LogFormat = def.LogFormat
	}

	return warnings
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
