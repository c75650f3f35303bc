package confidence

import "strings"

// Level buckets a confidence value.
type Level string

// Confidence levels, lowest first.
const (
	Struggling    Level = "struggling"
	Hesitant      Level = "hesitant"
	Uncertain     Level = "uncertain"
	Confident     Level = "confident"
	Overconfident Level = "overconfident"
)

// LevelFor maps a confidence value to its level. Boundary values resolve to
// the upper level.
func LevelFor(c float64) Level {
	switch {
	case c >= 0.9:
		return Overconfident
	case c >= 0.7:
		return Confident
	case c >= 0.5:
		return Uncertain
	case c >= 0.3:
		return Hesitant
	default:
		return Struggling
	}
}

// ParseLevel parses a level name; unknown names map to Uncertain.
func ParseLevel(s string) Level {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case Struggling, Hesitant, Uncertain, Confident, Overconfident:
		return l
	default:
		return Uncertain
	}
}

// Trend describes the direction of a profile's recent confidence.
type Trend string

// Profile trends.
const (
	Improving Trend = "improving"
	Declining Trend = "declining"
	Stable    Trend = "stable"
	Neutral   Trend = "neutral"
)
