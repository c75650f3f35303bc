// Package momentum tracks a learner's emotional streaks and score trends
// over short, medium and long response windows.
package momentum

import "time"

// Default tracker configuration constants.
const (
	defaultShortWindow  = 5
	defaultMediumWindow = 15
	defaultLongWindow   = 30
	defaultAlpha        = 0.3
	defaultSeedScore    = 0.5
	defaultIdleAfter    = 5 * time.Minute
	defaultDecayTau     = 10 * time.Minute
	defaultSessionGap   = 30 * time.Minute
	defaultFastMs       = 3000
	defaultSlowMs       = 8000
	recoveryLatencyMs   = 6000
	streakStep          = 0.03
	streakCap           = 5
	changeConfirmations = 2
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithWindows sets the short, medium and long window lengths.
func WithWindows(short, medium, long int) Option {
	return func(t *Tracker) {
		if short > 1 && medium >= short && long >= medium {
			t.shortWindow, t.mediumWindow, t.longWindow = short, medium, long
		}
	}
}

// WithAlpha sets the smoothing factor of the momentum score.
func WithAlpha(alpha float64) Option {
	return func(t *Tracker) {
		if alpha > 0 && alpha <= 1 {
			t.alpha = alpha
		}
	}
}

// WithIdleDecay sets the idle gap after which the score decays and the decay time constant.
func WithIdleDecay(after, tau time.Duration) Option {
	return func(t *Tracker) {
		if after > 0 && tau > 0 {
			t.idleAfter, t.decayTau = after, tau
		}
	}
}

// WithThresholds sets the fast and slow latency thresholds in milliseconds.
func WithThresholds(fastMs, slowMs float64) Option {
	return func(t *Tracker) {
		if fastMs > 0 && slowMs > fastMs {
			t.fastMs, t.slowMs = fastMs, slowMs
		}
	}
}
