package srs

import (
	"time"

	"github.com/okian/cadence/internal/domain/confidence"
	"github.com/okian/cadence/internal/domain/flow"
	"github.com/okian/cadence/internal/domain/temporal"
)

const easyResponseMs = 2000

// Meta carries the read-only signals the orchestrator passes into a
// scheduling call.
type Meta struct {
	ResponseTimeMs float64
	ErrorTypes     []string
	Flow           flow.State
	Confidence     confidence.Level
	// Frustrated is set when flow or momentum report frustration.
	Frustrated bool
	// Timing is the temporal recommendation at Now. A zero multiplier is
	// treated as 1.
	Timing temporal.Recommendation
	Now    time.Time
}

func accentOnly(types []string) bool {
	if len(types) == 0 {
		return false
	}
	for _, t := range types {
		if t != "accent" {
			return false
		}
	}
	return true
}

// DeriveRating turns an outcome and the current signals into a rating.
// Incorrect answers rate Again, or Hard when every error was an accent.
// Correct answers start at Good, drop to Hard with hints and rise to Easy
// when fast without hints; frustration or low confidence then lowers them
// one step (never below Hard) and, failing that, deep flow or high
// confidence raises them one step (never above Good with hints).
func DeriveRating(correct bool, hintsUsed int, meta Meta) Rating {
	if !correct {
		if accentOnly(meta.ErrorTypes) {
			return Hard
		}
		return Again
	}

	r := Good
	switch {
	case hintsUsed > 0:
		r = Hard
	case meta.ResponseTimeMs > 0 && meta.ResponseTimeMs < easyResponseMs:
		r = Easy
	}

	lowConfidence := meta.Confidence == confidence.Struggling || meta.Confidence == confidence.Hesitant
	highConfidence := meta.Confidence == confidence.Confident || meta.Confidence == confidence.Overconfident
	switch {
	case meta.Frustrated || meta.Flow == flow.Frustrated || lowConfidence:
		r = max(r-1, Hard)
	case meta.Flow == flow.DeepFlow || highConfidence:
		ceiling := Easy
		if hintsUsed > 0 {
			ceiling = Good
		}
		r = min(r+1, ceiling)
	}
	return r
}
