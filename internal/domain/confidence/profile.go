package confidence

import (
	"time"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/window"
)

// Profile aggregates attempts for one mood, category or item.
type Profile struct {
	Key               string    `json:"key"`
	Attempts          int       `json:"attempts"`
	Correct           int       `json:"correct"`
	AvgResponseTimeMs float64   `json:"avgResponseTimeMs"`
	Confidence        float64   `json:"confidence"`
	Trend             Trend     `json:"trend"`
	StrengthAreas     []string  `json:"strengthAreas"`
	ImprovementAreas  []string  `json:"improvementAreas"`
	LastAttempt       time.Time `json:"lastAttempt"`
	Outcomes          []bool    `json:"outcomes"`
	History           []float64 `json:"history"`
}

// Accuracy returns correct/attempts, or 0 before the first attempt.
func (p *Profile) Accuracy() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Correct) / float64(p.Attempts)
}

// SpeedFactor scores a mean latency: 1 inside [2000, 4000] ms, rising
// linearly from 0.7 below it and falling to 0 at 12000 ms above it.
func SpeedFactor(rtMs float64) float64 {
	switch {
	case rtMs < 0:
		return 0.7
	case rtMs < 2000:
		return 0.7 + 0.3*rtMs/2000
	case rtMs <= 4000:
		return 1
	case rtMs <= 12000:
		return 1 - (rtMs-4000)/8000
	default:
		return 0
	}
}

func (p *Profile) consistency() float64 {
	xs := make([]float64, len(p.Outcomes))
	for i, ok := range p.Outcomes {
		if ok {
			xs[i] = 1
		}
	}
	return 1 - window.Variance(xs)
}

func (p *Profile) update(rec model.ResponseRecord, timeAlpha float64) {
	p.Attempts++
	if rec.Correct {
		p.Correct++
	}
	if p.Attempts == 1 {
		p.AvgResponseTimeMs = rec.ResponseTimeMs
	} else {
		p.AvgResponseTimeMs = window.EMA(p.AvgResponseTimeMs, rec.ResponseTimeMs, timeAlpha)
	}
	p.Outcomes = appendCapped(p.Outcomes, rec.Correct, outcomeWindow)
	if rec.Timestamp.After(p.LastAttempt) {
		p.LastAttempt = rec.Timestamp
	}

	accuracy := p.Accuracy()
	speed := SpeedFactor(p.AvgResponseTimeMs)
	consistency := p.consistency()
	// Weights sum to 0.8, so a profile never reaches the top level.
	p.Confidence = window.Clamp01(accuracy*0.4 + speed*0.2 + consistency*0.2)

	p.History = appendCapped(p.History, p.Confidence, trendWindow)
	p.Trend = trendOf(p.History)

	p.StrengthAreas = p.StrengthAreas[:0]
	p.ImprovementAreas = p.ImprovementAreas[:0]
	if accuracy >= 0.8 {
		p.StrengthAreas = append(p.StrengthAreas, "accuracy")
	} else if accuracy < 0.6 {
		p.ImprovementAreas = append(p.ImprovementAreas, "accuracy")
	}
	if speed >= 0.9 {
		p.StrengthAreas = append(p.StrengthAreas, "speed")
	} else if speed < 0.5 {
		p.ImprovementAreas = append(p.ImprovementAreas, "speed")
	}
	if consistency >= 0.8 {
		p.StrengthAreas = append(p.StrengthAreas, "consistency")
	} else if consistency < 0.6 {
		p.ImprovementAreas = append(p.ImprovementAreas, "consistency")
	}
}

func trendOf(history []float64) Trend {
	if len(history) < trendWindow {
		return Neutral
	}
	older := window.Mean(history[:3])
	recent := window.Mean(history[len(history)-3:])
	switch d := recent - older; {
	case d > trendThreshold:
		return Improving
	case d < -trendThreshold:
		return Declining
	default:
		return Stable
	}
}

func appendCapped[T any](xs []T, v T, limit int) []T {
	xs = append(xs, v)
	if len(xs) > limit {
		xs = append(xs[:0], xs[len(xs)-limit:]...)
	}
	return xs
}

func (p *Profile) clone() Profile {
	c := *p
	c.StrengthAreas = append([]string(nil), p.StrengthAreas...)
	c.ImprovementAreas = append([]string(nil), p.ImprovementAreas...)
	c.Outcomes = append([]bool(nil), p.Outcomes...)
	c.History = append([]float64(nil), p.History...)
	return c
}
