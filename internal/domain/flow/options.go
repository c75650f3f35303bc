// Package flow classifies a learner's moment-to-moment engagement from a
// sliding window of recent responses.
package flow

import "time"

// Default detector configuration constants.
const (
	defaultWindowSize  = 20
	defaultFlowWindow  = 10
	defaultMinSamples  = 3
	defaultMinDwell    = 10 * time.Second
	defaultHistorySize = 20
	defaultFastMs      = 3000
	defaultSlowMs      = 8000
)

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithWindowSize sets how many responses are retained.
func WithWindowSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.windowSize = n
		}
	}
}

// WithFlowWindow sets the sub-window used for classification metrics.
func WithFlowWindow(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.flowWindow = n
		}
	}
}

// WithThresholds sets the fast and slow latency thresholds in milliseconds.
func WithThresholds(fastMs, slowMs float64) Option {
	return func(d *Detector) {
		if fastMs > 0 && slowMs > fastMs {
			d.fastMs = fastMs
			d.slowMs = slowMs
		}
	}
}

// WithMinDwell sets the minimum time between committed state changes.
func WithMinDwell(dwell time.Duration) Option {
	return func(d *Detector) {
		if dwell > 0 {
			d.minDwell = dwell
		}
	}
}
