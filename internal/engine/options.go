// Package engine composes the per-learner signal components and the review
// scheduler. One Engine owns one learner's state; callers serialize access
// per user and subscribe to the snapshots it publishes.
package engine

import (
	"time"

	"github.com/okian/cadence/internal/domain/confidence"
	"github.com/okian/cadence/internal/domain/flow"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/momentum"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/pkg/logger"
)

// frustrationThreshold is the emotional frustration at which scheduling
// treats the learner as frustrated even without a FRUSTRATED flow state.
const frustrationThreshold = 0.7

// defaultSessionGap is the pause after which the next attempt opens a new
// practice session.
const defaultSessionGap = 30 * time.Minute

// Metrics receives engine observations. *metrics.Manager satisfies it.
type Metrics interface {
	RecordAttemptProcessed(latencyMs float64)
	RecordSessionProcessed()
	RecordFlowTransition(from, to string)
	RecordMomentumTransition(from, to string)
	RecordSchedulingDecision(path string)
	RecordSchedulingError(reason string)
	RecordObserverNotification()
}

type noopMetrics struct{}

func (noopMetrics) RecordAttemptProcessed(float64)          {}
func (noopMetrics) RecordSessionProcessed()                 {}
func (noopMetrics) RecordFlowTransition(string, string)     {}
func (noopMetrics) RecordMomentumTransition(string, string) {}
func (noopMetrics) RecordSchedulingDecision(string)         {}
func (noopMetrics) RecordSchedulingError(string)            {}
func (noopMetrics) RecordObserverNotification()             {}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithSessionGap sets the pause between attempts that starts a new session.
func WithSessionGap(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sessionGap = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithThresholds sets the fast and slow latency thresholds used to derive
// response records.
func WithThresholds(th model.Thresholds) Option {
	return func(e *Engine) {
		if th.FastMs > 0 && th.SlowMs > th.FastMs {
			e.thresholds = th
		}
	}
}

// WithFlowOptions configures the flow detector.
func WithFlowOptions(opts ...flow.Option) Option {
	return func(e *Engine) { e.flowOpts = append(e.flowOpts, opts...) }
}

// WithMomentumOptions configures the momentum tracker.
func WithMomentumOptions(opts ...momentum.Option) Option {
	return func(e *Engine) { e.momentumOpts = append(e.momentumOpts, opts...) }
}

// WithConfidenceOptions configures the confidence engine.
func WithConfidenceOptions(opts ...confidence.Option) Option {
	return func(e *Engine) { e.confidenceOpts = append(e.confidenceOpts, opts...) }
}

// WithTemporalOptions configures the temporal model.
func WithTemporalOptions(opts ...temporal.Option) Option {
	return func(e *Engine) { e.temporalOpts = append(e.temporalOpts, opts...) }
}

// WithSchedulerOptions configures the review scheduler.
func WithSchedulerOptions(opts ...srs.Option) Option {
	return func(e *Engine) { e.schedulerOpts = append(e.schedulerOpts, opts...) }
}
