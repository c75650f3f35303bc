package model

import (
	"time"

	"github.com/okian/cadence/internal/domain/window"
)

// Thresholds classify latencies as fast or slow.
type Thresholds struct {
	FastMs float64
	SlowMs float64
}

// DefaultThresholds returns fast < 3000 ms and slow > 8000 ms.
func DefaultThresholds() Thresholds {
	return Thresholds{FastMs: 3000, SlowMs: 8000}
}

// ResponseRecord is an attempt enriched with derived signals. Records only
// live in bounded windows.
type ResponseRecord struct {
	Correct             bool
	ResponseTimeMs      float64
	HintsUsed           int
	Item                Item
	Timestamp           time.Time
	Confidence          float64
	PerceivedDifficulty float64
	IsFast              bool
	IsSlow              bool
}

// NewRecord derives a record from a normalized attempt.
func NewRecord(e AttemptEvent, th Thresholds) ResponseRecord {
	r := ResponseRecord{
		Correct:        e.Correct,
		ResponseTimeMs: e.ResponseTimeMs,
		HintsUsed:      e.HintsUsed,
		Item:           e.Item,
		Timestamp:      e.Timestamp,
		IsFast:         e.ResponseTimeMs < th.FastMs,
		IsSlow:         e.ResponseTimeMs > th.SlowMs,
	}

	conf := 0.2
	if r.Correct {
		conf = 0.6
	}
	if r.IsFast && r.Correct {
		conf += 0.3
	}
	if r.IsSlow {
		if r.Correct {
			conf -= 0.2
		} else {
			conf -= 0.1
		}
	}
	conf -= 0.15 * float64(r.HintsUsed)
	r.Confidence = window.Clamp01(conf)

	diff := 0.5
	if !r.Correct {
		diff += 0.3
	}
	if r.IsSlow {
		diff += 0.2
	}
	if r.IsFast {
		diff -= 0.3
	}
	diff += 0.1 * float64(r.HintsUsed)
	r.PerceivedDifficulty = window.Clamp01(diff)

	return r
}
