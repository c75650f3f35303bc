package momentum

import (
	"math"
	"time"

	"github.com/okian/cadence/internal/domain/flow"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/window"
)

// Tracker maintains one learner's momentum. It is not safe for concurrent
// use; callers serialize access per user.
type Tracker struct {
	shortWindow  int
	mediumWindow int
	longWindow   int
	alpha        float64
	idleAfter    time.Duration
	decayTau     time.Duration
	fastMs       float64
	slowMs       float64

	responses *window.Ring[model.ResponseRecord]
	raws      *window.Ring[float64]

	score        float64
	lastRaw      float64
	hasRaw       bool
	typ          Type
	pending      Type
	pendingCount int
	streaks      Streaks
	lastSeen     time.Time
	sessionStart time.Time
	last         Result
}

// New creates a Tracker with the score seeded at 0.5.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		shortWindow:  defaultShortWindow,
		mediumWindow: defaultMediumWindow,
		longWindow:   defaultLongWindow,
		alpha:        defaultAlpha,
		idleAfter:    defaultIdleAfter,
		decayTau:     defaultDecayTau,
		fastMs:       defaultFastMs,
		slowMs:       defaultSlowMs,
		score:        defaultSeedScore,
		typ:          SteadyProgress,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.responses = window.New[model.ResponseRecord](t.longWindow)
	t.raws = window.New[float64](t.mediumWindow)
	return t
}

// Process adds a response observed in the given flow state.
func (t *Tracker) Process(rec model.ResponseRecord, state flow.State) Result {
	t.decayIfIdle(rec.Timestamp)
	if t.sessionStart.IsZero() || (!t.lastSeen.IsZero() && rec.Timestamp.Sub(t.lastSeen) > defaultSessionGap) {
		t.sessionStart = rec.Timestamp
	}

	prev, hasPrev := t.responses.Newest()
	t.responses.Push(rec)

	raw := t.rawScore()
	t.updateStreaks(rec, prev, hasPrev, raw)
	t.raws.Push(raw)

	adjusted := raw +
		streakStep*float64(min(t.streaks.Confidence.Current, streakCap)) -
		streakStep*float64(min(t.streaks.Struggle.Current, streakCap))
	t.score = window.Clamp01(window.EMA(t.score, window.Clamp01(adjusted), t.alpha))
	t.lastRaw, t.hasRaw = raw, true
	if rec.Timestamp.After(t.lastSeen) {
		t.lastSeen = rec.Timestamp
	}

	trends := t.Trends()
	candidate := classify(t.score, trends.Medium)
	res := Result{
		Type:      t.typ,
		Previous:  t.typ,
		Candidate: candidate,
		Score:     t.score,
		RawScore:  raw,
		Trends:    trends,
	}
	if t.commit(candidate) {
		res.Type = candidate
		res.TypeChanged = true
	}
	res.Streaks = t.streaks
	res.Emotional = t.emotional(state, rec.Timestamp)
	t.last = res
	return res
}

// decayIfIdle pulls the score toward the mean recent raw score when the
// learner has been away longer than idleAfter.
func (t *Tracker) decayIfIdle(now time.Time) {
	if t.lastSeen.IsZero() || t.raws.Len() == 0 {
		return
	}
	gap := now.Sub(t.lastSeen)
	if gap <= t.idleAfter {
		return
	}
	target := window.Mean(t.raws.Items())
	k := math.Exp(-gap.Seconds() / t.decayTau.Seconds())
	t.score = window.Clamp01(target + (t.score-target)*k)
}

func (t *Tracker) rawScore() float64 {
	recs := t.responses.Last(t.mediumWindow)
	n := len(recs)
	if n == 0 {
		return defaultSeedScore
	}

	correct := 0
	rts := make([]float64, n)
	confs := make([]float64, n)
	hard, hardCorrect := 0, 0
	misses, followUps, recovered := 0, 0, 0
	for i, r := range recs {
		rts[i] = r.ResponseTimeMs
		confs[i] = r.Confidence
		if r.Correct {
			correct++
		}
		if r.PerceivedDifficulty > 0.6 {
			hard++
			if r.Correct {
				hardCorrect++
			}
		}
		if !r.Correct {
			misses++
			if i+1 < n {
				followUps++
				next := recs[i+1]
				if next.Correct && next.ResponseTimeMs <= recoveryLatencyMs {
					recovered++
				}
			}
		}
	}

	accuracy := float64(correct) / float64(n)
	speed := window.Lerp(window.Mean(rts), t.slowMs, t.fastMs, 0, 1)
	consistency := window.Clamp01(1 - 2*window.StdDev(confs))
	difficulty := 0.5
	if hard > 0 {
		difficulty = float64(hardCorrect) / float64(hard)
	}
	recovery := 1.0
	switch {
	case misses > 0 && followUps == 0:
		recovery = 0.5
	case followUps > 0:
		recovery = float64(recovered) / float64(followUps)
	}

	return window.Clamp01(accuracy*0.30 + speed*0.25 + consistency*0.20 + difficulty*0.15 + recovery*0.10)
}

func (t *Tracker) updateStreaks(rec, prev model.ResponseRecord, hasPrev bool, raw float64) {
	s := &t.streaks
	if rec.Correct && rec.Confidence >= 0.7 {
		s.Confidence.set(s.Confidence.Current + 1)
	} else {
		s.Confidence.set(0)
	}

	if !rec.Correct || rec.IsSlow {
		s.Struggle.set(s.Struggle.Current + 1)
	} else {
		s.Struggle.set(max(s.Struggle.Current-1, 0))
	}

	if t.hasRaw {
		switch {
		case raw > t.lastRaw:
			s.Improvement.set(s.Improvement.Current + 1)
		case raw < t.lastRaw:
			s.Improvement.set(0)
		}
	}

	if hasPrev && math.Abs(rec.Confidence-prev.Confidence) <= 0.15 {
		s.Consistency.set(s.Consistency.Current + 1)
	} else {
		s.Consistency.set(0)
	}
}

func classify(score, trend float64) Type {
	switch {
	case score >= 0.85 && trend > 0.3:
		return PeakPerformance
	case score >= 0.70 && trend > 0.1:
		return ConfidenceBuilding
	case score <= 0.25 && trend < -0.3:
		return ConfidenceCrisis
	case score <= 0.25 && trend > 0.2:
		return RecoveryMode
	case score <= 0.40 && trend < -0.1:
		return MinorSetback
	default:
		return SteadyProgress
	}
}

// commit requires the same candidate on consecutive responses before the
// committed type changes.
func (t *Tracker) commit(candidate Type) bool {
	if candidate == t.typ {
		t.pendingCount = 0
		return false
	}
	if candidate == t.pending && t.pendingCount > 0 {
		t.pendingCount++
	} else {
		t.pending, t.pendingCount = candidate, 1
	}
	if t.pendingCount < changeConfirmations {
		return false
	}
	t.typ = candidate
	t.pendingCount = 0
	return true
}

var flowEngagement = map[flow.State]float64{
	flow.DeepFlow:   0.95,
	flow.LightFlow:  0.8,
	flow.Neutral:    0.6,
	flow.Struggling: 0.45,
	flow.Frustrated: 0.3,
}

func (t *Tracker) emotional(state flow.State, now time.Time) EmotionalState {
	flowBoost := 0.0
	switch state {
	case flow.Frustrated:
		flowBoost = 0.3
	case flow.Struggling:
		flowBoost = 0.15
	}

	recs := t.responses.Last(t.mediumWindow)
	slow := 0
	for _, r := range recs {
		if r.IsSlow {
			slow++
		}
	}
	slowShare := 0.0
	if len(recs) > 0 {
		slowShare = float64(slow) / float64(len(recs))
	}
	minutes := now.Sub(t.sessionStart).Minutes()
	if minutes < 0 {
		minutes = 0
	}

	return EmotionalState{
		Confidence:  window.Clamp01(0.7*t.score + 0.03*float64(min(t.streaks.Confidence.Current, 10))),
		Frustration: window.Clamp01(0.08*float64(min(t.streaks.Struggle.Current, 10)) + 0.3*(1-t.score) + flowBoost),
		Engagement:  window.Clamp01(flowEngagement[state] + 0.1*(t.score-0.5)),
		Fatigue:     window.Clamp01(0.6*minutes/60 + 0.4*slowShare),
	}
}

func (t *Tracker) horizonWindow(h Horizon) int {
	switch h {
	case Short:
		return t.shortWindow
	case Long:
		return t.longWindow
	default:
		return t.mediumWindow
	}
}

// Trend returns the confidence regression slope over the horizon, scaled
// by the number of samples and clamped to [-1, 1].
func (t *Tracker) Trend(h Horizon) float64 {
	recs := t.responses.Last(t.horizonWindow(h))
	if len(recs) < 2 {
		return 0
	}
	confs := make([]float64, len(recs))
	for i, r := range recs {
		confs[i] = r.Confidence
	}
	return window.Clamp(window.Slope(confs)*float64(len(confs)), -1, 1)
}

// Trends returns the short, medium and long trends.
func (t *Tracker) Trends() Trends {
	return Trends{Short: t.Trend(Short), Medium: t.Trend(Medium), Long: t.Trend(Long)}
}

var comparativeSpan = map[Horizon]int{Short: 3, Medium: 10, Long: 15}

// ComparativeTrend compares mean confidence of the most recent responses
// with the same number of responses before them and returns a value in
// [0, 1]; 0.5 is neutral and is also returned when the older window is
// empty.
func (t *Tracker) ComparativeTrend(h Horizon) float64 {
	span, ok := comparativeSpan[h]
	if !ok {
		span = comparativeSpan[Medium]
	}
	recs := t.responses.Items()
	if len(recs) <= span {
		return 0.5
	}
	recent := recs[len(recs)-span:]
	older := recs[max(0, len(recs)-2*span) : len(recs)-span]

	mean := func(rs []model.ResponseRecord) float64 {
		xs := make([]float64, len(rs))
		for i, r := range rs {
			xs[i] = r.Confidence
		}
		return window.Mean(xs)
	}
	return window.Clamp01(0.5 + (mean(recent)-mean(older))/2)
}

// Score returns the current momentum score.
func (t *Tracker) Score() float64 { return t.score }

// Type returns the committed momentum type.
func (t *Tracker) Type() Type { return t.typ }

// Last returns the result of the most recent Process call.
func (t *Tracker) Last() Result { return t.last }

// Len returns the number of buffered responses.
func (t *Tracker) Len() int { return t.responses.Len() }

// StartSession begins a new practice session. Current streaks and any
// pending type change are cleared; the score, the response window and the
// best streaks carry over.
func (t *Tracker) StartSession() {
	t.streaks.Confidence.Current = 0
	t.streaks.Struggle.Current = 0
	t.streaks.Improvement.Current = 0
	t.streaks.Consistency.Current = 0
	t.pending, t.pendingCount = t.typ, 0
	t.sessionStart = time.Time{}
}

// Reset clears all state and reseeds the score.
func (t *Tracker) Reset() {
	t.responses.Clear()
	t.raws.Clear()
	t.score = defaultSeedScore
	t.lastRaw, t.hasRaw = 0, false
	t.typ, t.pending, t.pendingCount = SteadyProgress, SteadyProgress, 0
	t.streaks = Streaks{}
	t.lastSeen, t.sessionStart = time.Time{}, time.Time{}
	t.last = Result{}
}
