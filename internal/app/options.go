// Package service wires the per-learner engines to the worker pool, the
// attempt deduplicator and the checkpoint store. It is the dependency the
// HTTP API is built on.
package service

import (
	"runtime"
	"time"

	"github.com/okian/cadence/internal/adapters/repository"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/domain/confidence"
	"github.com/okian/cadence/internal/domain/flow"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/internal/engine"
	"github.com/okian/cadence/pkg/logger"
)

const (
	defaultQueueSize      = 10_000
	defaultDedupeSize     = 500_000
	defaultTimeout        = 2 * time.Second
	defaultStopTimeout    = 10 * time.Second
	defaultConfidenceSave = 30 * time.Second
	defaultTemporalSave   = 60 * time.Second
	defaultCardSave       = 120 * time.Second
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines. Each worker owns a
// disjoint set of learners.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds each worker's queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the attempt-id deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithTimeout bounds each call from submission to reply.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCheckpointIntervals sets the write-behind cadence per checkpoint kind.
// Non-positive values keep the defaults.
func WithCheckpointIntervals(conf, temp, cards time.Duration) Option {
	return func(s *Service) {
		for kind, d := range map[engine.Kind]time.Duration{
			engine.KindConfidence: conf,
			engine.KindTemporal:   temp,
			engine.KindCards:      cards,
		} {
			if d > 0 {
				s.intervals[kind] = d
			}
		}
	}
}

// WithStore sets the checkpoint store. The caller keeps ownership and
// closes it; without this option an in-memory store is used.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
			s.ownsStore = false
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEngineMetrics replaces the metrics sink handed to every engine.
func WithEngineMetrics(m engine.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.engineMetrics = m
		}
	}
}

// WithEngineOptions appends options applied to every learner engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// FromConfig translates cfg into service options. cfg is expected to be
// sanitized already.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithTimeout(time.Duration(cfg.AttemptTimeoutMS) * time.Millisecond),
		WithCheckpointIntervals(
			time.Duration(cfg.ConfidenceCheckpointSeconds)*time.Second,
			time.Duration(cfg.TemporalCheckpointSeconds)*time.Second,
			time.Duration(cfg.CardCheckpointSeconds)*time.Second,
		),
		WithEngineOptions(
			engine.WithThresholds(model.Thresholds{
				FastMs: float64(cfg.FastThresholdMS),
				SlowMs: float64(cfg.SlowThresholdMS),
			}),
			engine.WithFlowOptions(
				flow.WithMinDwell(time.Duration(cfg.FlowMinDwellSeconds)*time.Second),
			),
			engine.WithConfidenceOptions(
				confidence.WithRecency(time.Duration(cfg.ProfileRecencyDays)*24*time.Hour),
			),
			engine.WithTemporalOptions(
				temporal.WithLocation(cfg.Location()),
				temporal.WithRecoveryRate(cfg.RecoveryRatePerMinute),
				temporal.WithLoadThreshold(cfg.LoadThreshold),
				temporal.WithWindows(
					cfg.MorningPeakStart, cfg.MorningPeakEnd,
					cfg.PostLunchStart, cfg.PostLunchEnd,
					cfg.LateNightStart, cfg.LateNightEnd,
				),
			),
			engine.WithSchedulerOptions(
				srs.WithAdaptive(cfg.AdaptiveEnabled),
				srs.WithDesiredRetention(cfg.DesiredRetention),
				srs.WithMaximumInterval(cfg.MaximumInterval),
				srs.WithLeechThreshold(cfg.LeechThreshold),
				srs.WithTimingAdvance(cfg.AllowTimingAdvance),
			),
		),
	}
}

func defaultWorkerCount() int { return runtime.NumCPU() * 2 }
