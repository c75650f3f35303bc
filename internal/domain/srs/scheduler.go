package srs

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/okian/cadence/internal/domain/confidence"
	"github.com/okian/cadence/internal/domain/window"
)

// Fallback reasons.
const (
	ReasonDisabled  = "disabled"
	ReasonPanic     = "panic"
	ReasonNonFinite = "non_finite"
	ReasonError     = "error"
)

var confidenceMultipliers = map[confidence.Level]float64{
	confidence.Struggling:    0.7,
	confidence.Hesitant:      0.85,
	confidence.Uncertain:     1.0,
	confidence.Confident:     1.1,
	confidence.Overconfident: 0.95,
}

// Adjustment explains how the base interval was changed.
type Adjustment struct {
	Multiplier float64  `json:"multiplier"`
	ExtraDays  float64  `json:"extraDays"`
	Reasons    []string `json:"reasons"`
}

// Result is returned by CalculateNextInterval.
type Result struct {
	Card           Card       `json:"card"`
	Rating         Rating     `json:"rating"`
	Adjustment     Adjustment `json:"adjustment"`
	LegacyEase     float64    `json:"legacyEase"`
	UsedFallback   bool       `json:"usedFallback"`
	FallbackReason string     `json:"fallbackReason,omitempty"`
}

// Stats counts scheduling calls by path.
type Stats struct {
	Adaptive int64 `json:"adaptive"`
	Fallback int64 `json:"fallback"`
	Errors   int64 `json:"errors"`
}

// Scheduler computes next intervals. It holds no per-card state and is safe
// for concurrent use.
type Scheduler struct {
	algo           algo
	adaptive       bool
	retention      float64
	maxInterval    int
	leechThreshold int
	allowAdvance   bool
	table          []int

	// update is the adaptive path; tests substitute it.
	update func(Card, Rating, Meta, time.Time) (Card, Adjustment, error)

	adaptiveCount atomic.Int64
	fallbackCount atomic.Int64
	errorCount    atomic.Int64
}

// New creates a Scheduler with FSRS-6 defaults and the adaptive path on.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		algo:           newAlgo(DefaultParameters),
		adaptive:       true,
		retention:      defaultRetention,
		maxInterval:    defaultMaxInterval,
		leechThreshold: defaultLeechThreshold,
		table:          defaultFallbackTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.update = s.adaptiveNext
	return s
}

// CalculateNextInterval rates the review and returns the updated card. It
// never fails: adaptive errors, panics and non-finite values are counted
// and replaced by the fixed-table result.
func (s *Scheduler) CalculateNextInterval(card Card, correct bool, hintsUsed int, meta Meta) Result {
	now := meta.Now
	if now.IsZero() {
		now = time.Now()
	}
	if hintsUsed < 0 {
		hintsUsed = 0
	}
	rating := DeriveRating(correct, hintsUsed, meta)

	reason := ReasonDisabled
	if s.adaptive {
		next, adj, err := s.safeUpdate(card, rating, meta, now)
		if err == nil {
			s.adaptiveCount.Add(1)
			return Result{Card: next, Rating: rating, Adjustment: adj, LegacyEase: next.Ease}
		}
		s.errorCount.Add(1)
		switch {
		case errors.Is(err, ErrAdaptivePanic):
			reason = ReasonPanic
		case errors.Is(err, ErrNonFinite):
			reason = ReasonNonFinite
		default:
			reason = ReasonError
		}
	}

	s.fallbackCount.Add(1)
	next := s.fallbackNext(card, correct, hintsUsed, now)
	return Result{
		Card:           next,
		Rating:         rating,
		Adjustment:     Adjustment{Multiplier: 1},
		LegacyEase:     next.Ease,
		UsedFallback:   true,
		FallbackReason: reason,
	}
}

func (s *Scheduler) safeUpdate(card Card, rating Rating, meta Meta, now time.Time) (next Card, adj Adjustment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAdaptivePanic, r)
		}
	}()
	return s.update(card, rating, meta, now)
}

func (s *Scheduler) adaptiveNext(card Card, rating Rating, meta Meta, now time.Time) (Card, Adjustment, error) {
	c := card
	if c.State == StateNew || c.LastReview.IsZero() {
		c.Stability = s.algo.initStability(rating)
		c.Difficulty = s.algo.initDifficulty(rating, true)
	} else {
		elapsed := c.ElapsedDays(now)
		if elapsed < 1 {
			c.Stability = s.algo.shortTermStability(c.Stability, rating)
		} else {
			r := s.algo.retrievability(elapsed, c.Stability)
			c.Stability = s.algo.nextStability(c.Difficulty, c.Stability, r, rating)
		}
		c.Difficulty = s.algo.nextDifficulty(c.Difficulty, rating)
	}

	base := s.algo.intervalDays(c.Stability, s.retention)
	adj := s.adjust(meta)
	days := base*adj.Multiplier + adj.ExtraDays

	if !window.Finite(c.Stability) || !window.Finite(c.Difficulty) || !window.Finite(days) {
		return card, Adjustment{}, ErrNonFinite
	}

	s.transition(&c, rating != Again)
	s.finish(&c, days, now)
	return c, adj, nil
}

// adjust builds the multiplicative and additive interval adjustments.
func (s *Scheduler) adjust(meta Meta) Adjustment {
	adj := Adjustment{Multiplier: 1}

	if m, ok := confidenceMultipliers[meta.Confidence]; ok && m != 1 {
		adj.Multiplier *= m
		adj.Reasons = append(adj.Reasons, fmt.Sprintf("confidence_%s", meta.Confidence))
	}

	if tm := meta.Timing.TimingMultiplier; tm > 0 && tm != 1 {
		adj.Multiplier *= tm
		adj.Reasons = append(adj.Reasons, meta.Timing.Reasons...)
	}

	if meta.Frustrated {
		adj.ExtraDays = 1
		adj.Reasons = append(adj.Reasons, "frustration_delay")
	} else if meta.Timing.ShouldDelay {
		adj.ExtraDays = 1
		adj.Reasons = append(adj.Reasons, "fatigue_delay")
	}

	if s.allowAdvance && meta.Timing.IsOptimalTime && adj.ExtraDays == 0 {
		adj.Multiplier *= advanceFactor
		adj.Reasons = append(adj.Reasons, "optimal_time_advance")
	}
	return adj
}

// fallbackNext is the deterministic fixed-table schedule.
func (s *Scheduler) fallbackNext(card Card, correct bool, hintsUsed int, now time.Time) Card {
	c := card
	if c.Ease < MinEase || !window.Finite(c.Ease) {
		c.Ease = DifficultyToEase(c.Difficulty)
	}

	var days float64
	if !correct {
		c.Ease = math.Max(c.Ease-easePenalty, MinEase)
		days = 1
	} else {
		reps := c.Reps + 1
		if reps <= len(s.table) {
			days = float64(s.table[reps-1])
		} else {
			days = float64(max(c.IntervalDays, 1)) * c.Ease
		}
		if hintsUsed > 0 {
			days *= hintShrink
		}
	}

	ease := c.Ease
	s.transition(&c, correct)
	s.finish(&c, days, now)
	c.Ease = ease
	c.Difficulty = EaseToDifficulty(ease)
	c.Stability = clampS(float64(c.IntervalDays))
	return c
}

// transition updates state, reps and lapses for a pass or a failure.
func (s *Scheduler) transition(c *Card, passed bool) {
	if !passed {
		c.Reps = 0
		c.Lapses++
		if c.State == Review {
			c.State = Relearning
		} else {
			c.State = Learning
		}
		return
	}
	c.Reps++
	c.State = Review
}

// finish rounds and clamps the interval and stamps due dates and flags.
func (s *Scheduler) finish(c *Card, days float64, now time.Time) {
	ivl := int(math.Round(days))
	if ivl < 1 {
		ivl = 1
	}
	if ivl > s.maxInterval {
		ivl = s.maxInterval
	}
	c.IntervalDays = ivl
	c.LastReview = now
	c.Due = now.Add(time.Duration(ivl) * 24 * time.Hour)
	c.Difficulty = clampD(c.Difficulty)
	c.Stability = clampS(c.Stability)
	c.Ease = DifficultyToEase(c.Difficulty)
	c.Leech = c.Leech || c.Lapses >= s.leechThreshold
}

// Retrievability returns the recall probability of the card at now, or 1
// for unreviewed cards.
func (s *Scheduler) Retrievability(c Card, now time.Time) float64 {
	if c.State == StateNew || c.LastReview.IsZero() || !(c.Stability > 0) {
		return 1
	}
	return window.Clamp01(s.algo.retrievability(c.ElapsedDays(now), c.Stability))
}

// Adaptive reports whether the adaptive path is enabled.
func (s *Scheduler) Adaptive() bool { return s.adaptive }

// Stats returns the path counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Adaptive: s.adaptiveCount.Load(),
		Fallback: s.fallbackCount.Load(),
		Errors:   s.errorCount.Load(),
	}
}
