package model

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cadence/internal/domain/window"
)

// Session types understood by the temporal model.
const (
	SessionReview      = "review"
	SessionPractice    = "practice"
	SessionNewMaterial = "new_material"
	SessionTest        = "test"
	SessionRest        = "rest"
)

// SessionSummary aggregates one practice session.
type SessionSummary struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	Attempts           int       `json:"attempts"`
	Accuracy           float64   `json:"accuracy"`
	AvgResponseTimeMs  float64   `json:"avgResponseTimeMs"`
	FatigueEstimate    float64   `json:"fatigueEstimate"`
	Interruptions      int       `json:"interruptions"`
	SessionType        string    `json:"sessionType"`
	LongestErrorStreak int       `json:"longestErrorStreak"`
}

// Normalize returns a copy with defaults applied: a missing start becomes
// now, an end before the start collapses to the start, ratios are clamped
// and negative counters become 0.
func (s SessionSummary) Normalize(now time.Time) SessionSummary {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Start.IsZero() {
		s.Start = now
	}
	if s.End.Before(s.Start) {
		s.End = s.Start
	}
	s.Accuracy = window.Clamp01(s.Accuracy)
	s.FatigueEstimate = window.Clamp01(s.FatigueEstimate)
	if !(s.AvgResponseTimeMs > 0) || math.IsInf(s.AvgResponseTimeMs, 0) {
		s.AvgResponseTimeMs = DefaultResponseTimeMs
	}
	if s.Attempts < 0 {
		s.Attempts = 0
	}
	if s.Interruptions < 0 {
		s.Interruptions = 0
	}
	if s.LongestErrorStreak < 0 {
		s.LongestErrorStreak = 0
	}
	if s.SessionType == "" {
		s.SessionType = SessionPractice
	}
	return s
}

// Minutes returns the session duration in minutes.
func (s SessionSummary) Minutes() float64 {
	return s.End.Sub(s.Start).Minutes()
}
