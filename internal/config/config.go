// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Loaders accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"runtime"
)

// Store drivers accepted by StoreDriver.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds each worker's job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of per-user partitions.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the attempt-id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// AttemptTimeoutMS bounds one attempt or session call end to end.
	AttemptTimeoutMS int `koanf:"attempt_timeout_ms"`

	// StoreDriver selects the checkpoint store: memory, sqlite, redis or postgres.
	StoreDriver   string `koanf:"store_driver"`
	SQLitePath    string `koanf:"sqlite_path"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	PostgresDSN   string `koanf:"postgres_dsn"`

	// Metrics settings. MetricsNode, when set, is attached to every series
	// as a constant node label.
	MetricsEnabled       bool   `koanf:"metrics_enabled"`
	MetricsNamespace     string `koanf:"metrics_namespace"`
	MetricsNode          string `koanf:"metrics_node"`
	MetricsSampleSeconds int    `koanf:"metrics_sample_seconds"`

	// Checkpoint intervals for the write-behind timers.
	ConfidenceCheckpointSeconds int `koanf:"confidence_checkpoint_seconds"`
	TemporalCheckpointSeconds   int `koanf:"temporal_checkpoint_seconds"`
	CardCheckpointSeconds       int `koanf:"card_checkpoint_seconds"`

	// Scheduler settings.
	AdaptiveEnabled    bool    `koanf:"adaptive_enabled"`
	DesiredRetention   float64 `koanf:"desired_retention"`
	MaximumInterval    int     `koanf:"maximum_interval"`
	LeechThreshold     int     `koanf:"leech_threshold"`
	AllowTimingAdvance bool    `koanf:"allow_timing_advance"`

	// Flow thresholds.
	FastThresholdMS     int `koanf:"fast_threshold_ms"`
	SlowThresholdMS     int `koanf:"slow_threshold_ms"`
	FlowMinDwellSeconds int `koanf:"flow_min_dwell_seconds"`

	// Confidence profile recency filter.
	ProfileRecencyDays int `koanf:"profile_recency_days"`

	// Temporal settings. Hours are in Timezone.
	Timezone              string  `koanf:"timezone"`
	RecoveryRatePerMinute float64 `koanf:"recovery_rate_per_minute"`
	LoadThreshold         float64 `koanf:"load_threshold"`
	MorningPeakStart      int     `koanf:"morning_peak_start"`
	MorningPeakEnd        int     `koanf:"morning_peak_end"`
	PostLunchStart        int     `koanf:"post_lunch_start"`
	PostLunchEnd          int     `koanf:"post_lunch_end"`
	LateNightStart        int     `koanf:"late_night_start"`
	LateNightEnd          int     `koanf:"late_night_end"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                    "info",
		LogFormat:                   "text",
		Addr:                        ":9080",
		QueueSize:                   10_000,
		WorkerCount:                 runtime.NumCPU() * 2,
		DedupeSize:                  500_000,
		AttemptTimeoutMS:            2000,
		StoreDriver:                 StoreMemory,
		SQLitePath:                  "cadence.db",
		RedisAddr:                   "localhost:6379",
		RedisDB:                     0,
		MetricsEnabled:              true,
		MetricsNamespace:            "cadence",
		MetricsSampleSeconds:        10,
		ConfidenceCheckpointSeconds: 30,
		TemporalCheckpointSeconds:   60,
		CardCheckpointSeconds:       120,
		AdaptiveEnabled:             true,
		DesiredRetention:            0.9,
		MaximumInterval:             36500,
		LeechThreshold:              8,
		AllowTimingAdvance:          false,
		FastThresholdMS:             3000,
		SlowThresholdMS:             8000,
		FlowMinDwellSeconds:         10,
		ProfileRecencyDays:          30,
		Timezone:                    "UTC",
		RecoveryRatePerMinute:       0.01,
		LoadThreshold:               0.7,
		MorningPeakStart:            8,
		MorningPeakEnd:              11,
		PostLunchStart:              13,
		PostLunchEnd:                15,
		LateNightStart:              22,
		LateNightEnd:                5,
	}
}
