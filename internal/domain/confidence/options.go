// Package confidence maintains per-category confidence profiles and the
// calibration between self-reported and actual correctness.
package confidence

import "time"

// Default engine configuration constants.
const (
	defaultRecency          = 30 * 24 * time.Hour
	defaultTimeAlpha        = 0.3
	defaultCalibrationAlpha = 0.2
	outcomeWindow           = 10
	trendWindow             = 6
	trendThreshold          = 0.05
	insightMinAttempts      = 3
	biasThreshold           = 0.15
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRecency sets how old a profile may be and still count at read time.
func WithRecency(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.recency = d
		}
	}
}

// WithTimeAlpha sets the smoothing factor of the response-time average.
func WithTimeAlpha(alpha float64) Option {
	return func(e *Engine) {
		if alpha > 0 && alpha <= 1 {
			e.timeAlpha = alpha
		}
	}
}

// WithCalibrationAlpha sets the smoothing factor of the calibration score.
func WithCalibrationAlpha(alpha float64) Option {
	return func(e *Engine) {
		if alpha > 0 && alpha <= 1 {
			e.calibrationAlpha = alpha
		}
	}
}
