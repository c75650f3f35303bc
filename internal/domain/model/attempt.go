// Package model contains the domain models passed between the detectors,
// the scheduler and the service layers.
package model

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cadence/internal/domain/window"
)

// DefaultResponseTimeMs replaces missing or invalid latencies. It is well
// above the slow threshold so such attempts count as slow.
const DefaultResponseTimeMs = 30000

// Item identifies one practice item.
type Item struct {
	Verb   string `json:"verb"`
	Mood   string `json:"mood"`
	Tense  string `json:"tense"`
	Person string `json:"person"`
}

// Key returns verb|mood|tense|person.
func (i Item) Key() string {
	return i.Verb + "|" + i.Mood + "|" + i.Tense + "|" + i.Person
}

// Category returns mood|tense.
func (i Item) Category() string {
	return i.Mood + "|" + i.Tense
}

// AttemptEvent is one answered prompt as reported by the practice layer.
type AttemptEvent struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"userId"`
	Correct                bool      `json:"correct"`
	ResponseTimeMs         float64   `json:"responseTimeMs"`
	HintsUsed              int       `json:"hintsUsed"`
	Item                   Item      `json:"item"`
	Timestamp              time.Time `json:"timestamp"`
	SelfReportedConfidence *float64  `json:"selfReportedConfidence,omitempty"`
	ErrorTypes             []string  `json:"errorTypes,omitempty"`
}

// Normalize returns a copy with missing or malformed fields defaulted. It
// never fails: latency <= 0 or NaN becomes DefaultResponseTimeMs, negative
// hints become 0, a zero timestamp becomes now and a self-report is clamped
// to [0,1]. An empty ID is replaced with a fresh UUID.
func (e AttemptEvent) Normalize(now time.Time) AttemptEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if !(e.ResponseTimeMs > 0) || math.IsInf(e.ResponseTimeMs, 0) {
		e.ResponseTimeMs = DefaultResponseTimeMs
	}
	if e.HintsUsed < 0 {
		e.HintsUsed = 0
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.SelfReportedConfidence != nil {
		v := window.Clamp01(*e.SelfReportedConfidence)
		e.SelfReportedConfidence = &v
	}
	if len(e.ErrorTypes) > 0 {
		types := make([]string, 0, len(e.ErrorTypes))
		for _, t := range e.ErrorTypes {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				types = append(types, t)
			}
		}
		e.ErrorTypes = types
	}
	return e
}

// AccentOnly reports whether the attempt failed only on accent marks.
func (e AttemptEvent) AccentOnly() bool {
	if len(e.ErrorTypes) == 0 {
		return false
	}
	for _, t := range e.ErrorTypes {
		if t != "accent" {
			return false
		}
	}
	return true
}

// CardKey returns the checkpoint key of the user's card for item:
// user|mood|tense|person|verb.
func CardKey(userID string, item Item) string {
	return userID + "|" + item.Mood + "|" + item.Tense + "|" + item.Person + "|" + item.Verb
}

// ConfidenceKey returns the checkpoint key of the user's confidence profiles.
func ConfidenceKey(userID string) string { return userID + "|confidence" }

// TemporalKey returns the checkpoint key of the user's temporal state.
func TemporalKey(userID string) string { return userID + "|temporal" }

// CardIndexKey returns the checkpoint key listing the user's card keys.
func CardIndexKey(userID string) string { return userID + "|cards" }
