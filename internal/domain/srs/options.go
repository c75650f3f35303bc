// Package srs schedules reviews with an FSRS-6 memory model conditioned on
// flow, confidence and temporal signals, and falls back to a fixed interval
// table when the adaptive path is disabled or fails.
package srs

// Default scheduler configuration constants.
const (
	defaultRetention      = 0.9
	defaultMaxInterval    = 36500
	defaultLeechThreshold = 8
	advanceFactor         = 0.9
	hintShrink            = 0.8
	easePenalty           = 0.2
)

// defaultFallbackTable is the fixed interval ladder in days.
var defaultFallbackTable = []int{1, 3, 7, 14, 30, 90}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithAdaptive enables or disables the adaptive path.
func WithAdaptive(enabled bool) Option {
	return func(s *Scheduler) {
		s.adaptive = enabled
	}
}

// WithDesiredRetention sets the target recall probability in (0, 1).
func WithDesiredRetention(r float64) Option {
	return func(s *Scheduler) {
		if r > 0 && r < 1 {
			s.retention = r
		}
	}
}

// WithMaximumInterval caps intervals in days.
func WithMaximumInterval(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.maxInterval = days
		}
	}
}

// WithLeechThreshold sets the lapse count at which a card is flagged.
func WithLeechThreshold(lapses int) Option {
	return func(s *Scheduler) {
		if lapses > 0 {
			s.leechThreshold = lapses
		}
	}
}

// WithTimingAdvance allows a 10% shorter interval when timing is optimal.
func WithTimingAdvance(enabled bool) Option {
	return func(s *Scheduler) {
		s.allowAdvance = enabled
	}
}

// WithParameters replaces the FSRS weights. Invalid weights are ignored.
func WithParameters(p [21]float64) Option {
	return func(s *Scheduler) {
		if ValidateParameters(p) == nil {
			s.algo = newAlgo(p)
		}
	}
}
