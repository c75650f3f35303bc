// Package temporal keeps a learner's circadian performance profile and a
// cognitive load and fatigue estimate fed by session summaries.
package temporal

import "time"

// Default model configuration constants.
const (
	defaultAlpha           = 0.3
	defaultRecoveryRate    = 0.01
	defaultLoadThreshold   = 0.7
	defaultOptimalMinutes  = 20
	minOptimalMinutes      = 5
	maxOptimalMinutes      = 60
	minHourSessions        = 2
	peakMargin             = 0.05
	maxPeakHours           = 3
	loadHistorySize        = 50
	minTimingMultiplier    = 0.5
	maxTimingMultiplier    = 2.0
	defaultDelay           = 30 * time.Minute
	defaultMorningStart    = 8
	defaultMorningEnd      = 11
	defaultPostLunchStart  = 13
	defaultPostLunchEnd    = 15
	defaultLateNightStart  = 22
	defaultLateNightEnd    = 5
	singleHourPeakFloor    = 0.7
	singleHourLowCeiling   = 0.5
	interruptionPenalty    = 0.02
	maxInterruptionPenalty = 0.2
	reportedFatigueWeight  = 0.3
)

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithLocation sets the time zone used to bucket hours.
func WithLocation(loc *time.Location) Option {
	return func(m *Model) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithRecoveryRate sets how much cognitive load recovers per minute.
func WithRecoveryRate(perMinute float64) Option {
	return func(m *Model) {
		if perMinute > 0 && perMinute < 1 {
			m.load.RecoveryRatePerMinute = perMinute
		}
	}
}

// WithLoadThreshold sets the cognitive load above which sessions are delayed.
func WithLoadThreshold(threshold float64) Option {
	return func(m *Model) {
		if threshold > 0 && threshold < 1 {
			m.load.Threshold = threshold
		}
	}
}

// WithAlpha sets the smoothing factor of the hourly aggregates.
func WithAlpha(alpha float64) Option {
	return func(m *Model) {
		if alpha > 0 && alpha <= 1 {
			m.alpha = alpha
		}
	}
}

// WithWindows sets the morning peak, post-lunch and late night hour ranges.
// Each range is [start, end) and may wrap past midnight.
func WithWindows(morningStart, morningEnd, lunchStart, lunchEnd, nightStart, nightEnd int) Option {
	return func(m *Model) {
		hours := []int{morningStart, morningEnd, lunchStart, lunchEnd, nightStart, nightEnd}
		for _, h := range hours {
			if h < 0 || h > 23 {
				return
			}
		}
		m.morning = hourRange{morningStart, morningEnd}
		m.postLunch = hourRange{lunchStart, lunchEnd}
		m.lateNight = hourRange{nightStart, nightEnd}
	}
}
