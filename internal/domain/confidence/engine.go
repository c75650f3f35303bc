package confidence

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/window"
)

// Profile key prefixes.
const (
	moodPrefix     = "mood:"
	categoryPrefix = "category:"
	itemPrefix     = "item:"
)

// Calibration tracks how well self-reports match outcomes.
type Calibration struct {
	// Score is an EMA of 1 - |selfReport - correct|; 1 is perfectly calibrated.
	Score float64 `json:"score"`
	// Bias is an EMA of selfReport - correct; positive means overconfident.
	Bias    float64 `json:"bias"`
	Samples int     `json:"samples"`
}

// Priority orders recommendations.
type Priority string

// Recommendation priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation is one suggested next step.
type Recommendation struct {
	Type     string   `json:"type"`
	Priority Priority `json:"priority"`
	Message  string   `json:"message"`
}

// Insight is an observation derived from the profiles.
type Insight struct {
	Kind    string `json:"kind"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

// Result is returned by Process.
type Result struct {
	Overall         float64          `json:"overall"`
	Category        float64          `json:"category"`
	Level           Level            `json:"level"`
	Trend           Trend            `json:"trend"`
	Calibration     Calibration      `json:"calibration"`
	Recommendations []Recommendation `json:"recommendations"`
	Insights        []Insight        `json:"insights"`
}

// Engine owns one learner's confidence profiles. It is not safe for
// concurrent use; callers serialize access per user.
type Engine struct {
	recency          time.Duration
	timeAlpha        float64
	calibrationAlpha float64

	profiles    map[string]*Profile
	calibration Calibration
}

// New creates an empty Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		recency:          defaultRecency,
		timeAlpha:        defaultTimeAlpha,
		calibrationAlpha: defaultCalibrationAlpha,
		profiles:         make(map[string]*Profile),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MoodKey returns the profile key of a mood.
func MoodKey(item model.Item) string { return moodPrefix + item.Mood }

// CategoryKey returns the profile key of a mood and tense.
func CategoryKey(item model.Item) string { return categoryPrefix + item.Category() }

// ItemKey returns the profile key of a single item.
func ItemKey(item model.Item) string { return itemPrefix + item.Key() }

// Process updates the mood, category and item profiles of the record. The
// calibration only moves when selfReport is non-nil.
func (e *Engine) Process(rec model.ResponseRecord, selfReport *float64) Result {
	for _, key := range []string{MoodKey(rec.Item), CategoryKey(rec.Item), ItemKey(rec.Item)} {
		p, ok := e.profiles[key]
		if !ok {
			p = &Profile{Key: key, Trend: Neutral}
			e.profiles[key] = p
		}
		p.update(rec, e.timeAlpha)
	}

	if selfReport != nil && window.Finite(*selfReport) {
		e.calibrate(window.Clamp01(*selfReport), rec.Correct)
	}

	cat := e.profiles[CategoryKey(rec.Item)]
	level := LevelFor(cat.Confidence)
	return Result{
		Overall:         e.Overall(rec.Timestamp),
		Category:        cat.Confidence,
		Level:           level,
		Trend:           cat.Trend,
		Calibration:     e.calibration,
		Recommendations: Recommend(level, e.calibration, cat.Trend),
		Insights:        e.Insights(rec.Timestamp),
	}
}

func (e *Engine) calibrate(self float64, correct bool) {
	actual := 0.0
	if correct {
		actual = 1
	}
	score := 1 - math.Abs(self-actual)
	bias := self - actual
	c := &e.calibration
	if c.Samples == 0 {
		c.Score, c.Bias = score, bias
	} else {
		c.Score = window.EMA(c.Score, score, e.calibrationAlpha)
		c.Bias = window.EMA(c.Bias, bias, e.calibrationAlpha)
	}
	c.Samples++
}

// Recommend maps a level, calibration and trend to suggestions. It is a pure
// function; the calibration rule only applies once self-reports exist.
func Recommend(level Level, cal Calibration, trend Trend) []Recommendation {
	var out []Recommendation
	switch level {
	case Struggling:
		out = append(out, Recommendation{Type: "review_fundamentals", Priority: PriorityHigh,
			Message: "Review the fundamentals of this topic before moving on"})
	case Hesitant:
		out = append(out, Recommendation{Type: "guided_practice", Priority: PriorityMedium,
			Message: "Practice with hints available to build certainty"})
	case Uncertain:
		out = append(out, Recommendation{Type: "mixed_practice", Priority: PriorityMedium,
			Message: "Mix familiar and new items to consolidate"})
	case Confident:
		out = append(out, Recommendation{Type: "increase_challenge", Priority: PriorityLow,
			Message: "Increase difficulty or add new material"})
	case Overconfident:
		out = append(out, Recommendation{Type: "verify_mastery", Priority: PriorityMedium,
			Message: "Verify mastery with a timed check before skipping reviews"})
	}
	if cal.Samples > 0 && cal.Score < 0.6 {
		out = append(out, Recommendation{Type: "track_confidence", Priority: PriorityLow,
			Message: "Rate your confidence before answering to improve self-assessment"})
	}
	switch trend {
	case Declining:
		out = append(out, Recommendation{Type: "take_break_or_review", Priority: PriorityMedium,
			Message: "Confidence is dropping; take a short break or review earlier material"})
	case Improving:
		out = append(out, Recommendation{Type: "keep_momentum", Priority: PriorityLow,
			Message: "Confidence is rising; keep the current pace"})
	}
	return out
}

func (e *Engine) fresh(p *Profile, now time.Time) bool {
	return !p.LastAttempt.Before(now.Add(-e.recency))
}

// Overall returns the attempt-weighted mean confidence of the category
// profiles seen within the recency window, or 0.5 when there are none.
func (e *Engine) Overall(now time.Time) float64 {
	var sum, weight float64
	for key, p := range e.profiles {
		if !strings.HasPrefix(key, categoryPrefix) || !e.fresh(p, now) {
			continue
		}
		sum += p.Confidence * float64(p.Attempts)
		weight += float64(p.Attempts)
	}
	if weight == 0 {
		return 0.5
	}
	return window.Clamp01(sum / weight)
}

// Insights reports the strongest and weakest recent categories and any
// calibration bias.
func (e *Engine) Insights(now time.Time) []Insight {
	var cats []*Profile
	for key, p := range e.profiles {
		if strings.HasPrefix(key, categoryPrefix) && p.Attempts >= insightMinAttempts && e.fresh(p, now) {
			cats = append(cats, p)
		}
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Confidence != cats[j].Confidence {
			return cats[i].Confidence > cats[j].Confidence
		}
		return cats[i].Key < cats[j].Key
	})

	var out []Insight
	if len(cats) > 0 {
		best := cats[0]
		out = append(out, Insight{Kind: "strongest_category", Key: best.Key,
			Message: fmt.Sprintf("Strongest area %s at %.0f%%", trimPrefix(best.Key), best.Confidence*100)})
	}
	if len(cats) > 1 {
		worst := cats[len(cats)-1]
		out = append(out, Insight{Kind: "weakest_category", Key: worst.Key,
			Message: fmt.Sprintf("Weakest area %s at %.0f%%", trimPrefix(worst.Key), worst.Confidence*100)})
	}
	if e.calibration.Samples >= insightMinAttempts {
		switch {
		case e.calibration.Bias > biasThreshold:
			out = append(out, Insight{Kind: "overconfident", Message: "Self-ratings run higher than results"})
		case e.calibration.Bias < -biasThreshold:
			out = append(out, Insight{Kind: "underconfident", Message: "Results are better than self-ratings suggest"})
		}
	}
	return out
}

// Profile returns a copy of the profile stored under key.
func (e *Engine) Profile(key string) (Profile, bool) {
	p, ok := e.profiles[key]
	if !ok {
		return Profile{}, false
	}
	return p.clone(), true
}

// CategoryConfidence returns the category confidence of item, or 0.5 when
// the category has not been practiced recently.
func (e *Engine) CategoryConfidence(item model.Item, now time.Time) float64 {
	p, ok := e.profiles[CategoryKey(item)]
	if !ok || !e.fresh(p, now) {
		return 0.5
	}
	return p.Confidence
}

// LevelForItem returns the level of the item's category.
func (e *Engine) LevelForItem(item model.Item, now time.Time) Level {
	return LevelFor(e.CategoryConfidence(item, now))
}

// Calibration returns the current calibration.
func (e *Engine) Calibration() Calibration { return e.calibration }

// Len returns the number of stored profiles, including stale ones.
func (e *Engine) Len() int { return len(e.profiles) }

type checkpoint struct {
	Profiles    map[string]*Profile `json:"profiles"`
	Calibration Calibration         `json:"calibration"`
}

// Export encodes every profile and the calibration as JSON.
func (e *Engine) Export() ([]byte, error) {
	return json.Marshal(checkpoint{Profiles: e.profiles, Calibration: e.calibration})
}

// Import replaces the engine state with a blob produced by Export.
func (e *Engine) Import(b []byte) error {
	var cp checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return fmt.Errorf("confidence: decode checkpoint: %w", err)
	}
	if cp.Profiles == nil {
		cp.Profiles = make(map[string]*Profile)
	}
	for k, p := range cp.Profiles {
		if p == nil {
			delete(cp.Profiles, k)
			continue
		}
		p.Key = k
		p.Confidence = window.Clamp01(p.Confidence)
	}
	e.profiles = cp.Profiles
	e.calibration = cp.Calibration
	return nil
}

func trimPrefix(key string) string {
	for _, p := range []string{moodPrefix, categoryPrefix, itemPrefix} {
		if strings.HasPrefix(key, p) {
			return strings.TrimPrefix(key, p)
		}
	}
	return key
}
