package srs

import (
	"math"
	"time"
)

// Legacy ease range.
const (
	MinEase = 1.3
	MaxEase = 3.2
)

// Card is the durable schedule of one user and item. Cards are never
// deleted; leeches are flagged.
type Card struct {
	Key          string    `json:"key"`
	State        State     `json:"state"`
	Difficulty   float64   `json:"difficulty"`
	Stability    float64   `json:"stability"`
	IntervalDays int       `json:"intervalDays"`
	Reps         int       `json:"reps"`
	Lapses       int       `json:"lapses"`
	Due          time.Time `json:"due"`
	LastReview   time.Time `json:"lastReview"`
	Leech        bool      `json:"leech"`
	Ease         float64   `json:"ease"`
}

// NewCard returns an unreviewed card due at now with neutral memory values.
func NewCard(key string, now time.Time) Card {
	d := 5.0
	return Card{
		Key:          key,
		State:        StateNew,
		Difficulty:   d,
		Stability:    DefaultParameters[Good-1],
		IntervalDays: 1,
		Due:          now,
		Ease:         DifficultyToEase(d),
	}
}

// EaseToDifficulty maps a legacy ease factor onto the 1..10 difficulty
// scale: d = 10 - (ease - 1.3) * 9 / 1.9.
func EaseToDifficulty(ease float64) float64 {
	ease = math.Min(math.Max(ease, MinEase), MaxEase)
	return 10 - (ease-MinEase)*9/(MaxEase-MinEase)
}

// DifficultyToEase is the inverse of EaseToDifficulty:
// ease = 1.3 + (10 - d) * 1.9 / 9.
func DifficultyToEase(d float64) float64 {
	d = clampD(d)
	return MinEase + (10-d)*(MaxEase-MinEase)/9
}

// IsDue reports whether the card should be reviewed at now.
func (c Card) IsDue(now time.Time) bool {
	return c.State == StateNew || !now.Before(c.Due)
}

// ElapsedDays returns fractional days since the last review, or 0 before it.
func (c Card) ElapsedDays(now time.Time) float64 {
	if c.LastReview.IsZero() || now.Before(c.LastReview) {
		return 0
	}
	return now.Sub(c.LastReview).Hours() / 24
}
