package temporal

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/window"
)

// Learning rhythms.
const (
	RhythmMorning   = "morning"
	RhythmAfternoon = "afternoon"
	RhythmEvening   = "evening"
	RhythmNight     = "night"
	RhythmUnknown   = "unknown"
)

var typeWeights = map[string]float64{
	model.SessionReview:      0.3,
	model.SessionPractice:    0.5,
	model.SessionNewMaterial: 0.7,
	model.SessionTest:        0.8,
}

type hourRange struct{ Start, End int }

func (r hourRange) contains(h int) bool {
	if r.Start <= r.End {
		return h >= r.Start && h < r.End
	}
	return h >= r.Start || h < r.End
}

// HourStats aggregates the sessions that started in one hour of the day.
type HourStats struct {
	Sessions       int     `json:"sessions"`
	Performance    float64 `json:"performance"`
	CognitiveLoad  float64 `json:"cognitiveLoad"`
	ResponseTimeMs float64 `json:"responseTimeMs"`
}

// Circadian is the learner's time-of-day profile.
type Circadian struct {
	PeakHours                   []int   `json:"peakHours"`
	LowHours                    []int   `json:"lowHours"`
	OptimalSessionLengthMinutes float64 `json:"optimalSessionLengthMinutes"`
	LearningRhythm              string  `json:"learningRhythm"`
}

// LoadSample is one point of the cognitive load history.
type LoadSample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// LoadState is the cognitive load estimate.
type LoadState struct {
	Current               float64      `json:"current"`
	Threshold             float64      `json:"threshold"`
	RecoveryRatePerMinute float64      `json:"recoveryRatePerMinute"`
	History               []LoadSample `json:"history"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

// Recommendation advises when to schedule the next review.
type Recommendation struct {
	TimingMultiplier float64       `json:"timingMultiplier"`
	ShouldDelay      bool          `json:"shouldDelay"`
	Delay            time.Duration `json:"delay"`
	IsOptimalTime    bool          `json:"isOptimalTime"`
	Fatigue          float64       `json:"fatigue"`
	CognitiveLoad    float64       `json:"cognitiveLoad"`
	Reasons          []string      `json:"reasons"`
}

// Result is returned by ProcessSession.
type Result struct {
	Timing      Recommendation `json:"timing"`
	SessionLoad float64        `json:"sessionLoad"`
	Load        float64        `json:"cognitiveLoad"`
	Fatigue     float64        `json:"fatigue"`
	SessionType string         `json:"sessionTypeRecommendation"`
	Circadian   Circadian      `json:"circadian"`
}

// Model holds one learner's temporal state. It is not safe for concurrent
// use; callers serialize access per user.
type Model struct {
	alpha     float64
	loc       *time.Location
	morning   hourRange
	postLunch hourRange
	lateNight hourRange

	hours     [24]HourStats
	circadian Circadian
	load      LoadState
	sessions  int
}

// New creates a Model with no history.
func New(opts ...Option) *Model {
	m := &Model{
		alpha:     defaultAlpha,
		loc:       time.UTC,
		morning:   hourRange{defaultMorningStart, defaultMorningEnd},
		postLunch: hourRange{defaultPostLunchStart, defaultPostLunchEnd},
		lateNight: hourRange{defaultLateNightStart, defaultLateNightEnd},
		circadian: Circadian{OptimalSessionLengthMinutes: defaultOptimalMinutes, LearningRhythm: RhythmUnknown},
		load: LoadState{
			Threshold:             defaultLoadThreshold,
			RecoveryRatePerMinute: defaultRecoveryRate,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProcessSession folds a session summary into the profile and load.
func (m *Model) ProcessSession(s model.SessionSummary) Result {
	m.load.Current = m.LoadAt(s.Start)
	m.load.UpdatedAt = s.Start

	performance := m.sessionPerformance(s)
	sessionLoad := m.SessionLoad(s)

	h := s.Start.In(m.loc).Hour()
	hs := &m.hours[h]
	if hs.Sessions == 0 {
		hs.Performance, hs.CognitiveLoad, hs.ResponseTimeMs = performance, sessionLoad, s.AvgResponseTimeMs
	} else {
		hs.Performance = window.EMA(hs.Performance, performance, m.alpha)
		hs.CognitiveLoad = window.EMA(hs.CognitiveLoad, sessionLoad, m.alpha)
		hs.ResponseTimeMs = window.EMA(hs.ResponseTimeMs, s.AvgResponseTimeMs, m.alpha)
	}
	hs.Sessions++
	m.sessions++

	m.load.Current = window.Clamp01(m.load.Current + sessionLoad)
	m.load.UpdatedAt = s.End
	m.load.History = append(m.load.History, LoadSample{At: s.End, Value: m.load.Current})
	if len(m.load.History) > loadHistorySize {
		m.load.History = append(m.load.History[:0], m.load.History[len(m.load.History)-loadHistorySize:]...)
	}

	m.updateOptimalLength(s.Minutes(), performance)
	m.recomputeCircadian()

	timing := m.Recommend(s.End)
	return Result{
		Timing:      timing,
		SessionLoad: sessionLoad,
		Load:        timing.CognitiveLoad,
		Fatigue:     timing.Fatigue,
		SessionType: m.RecommendSessionType(s.End),
		Circadian:   m.Circadian(),
	}
}

func (m *Model) sessionPerformance(s model.SessionSummary) float64 {
	speed := window.Lerp(s.AvgResponseTimeMs, 8000, 3000, 0, 1)
	penalty := min(interruptionPenalty*float64(s.Interruptions), maxInterruptionPenalty)
	return window.Clamp01(0.7*s.Accuracy + 0.3*speed - penalty)
}

// SessionLoad returns the cognitive load a session adds: the type weight
// plus latency, error streak, interruption and self-reported fatigue terms,
// scaled by duration relative to the optimal length.
func (m *Model) SessionLoad(s model.SessionSummary) float64 {
	w, ok := typeWeights[s.SessionType]
	if !ok {
		w = typeWeights[model.SessionPractice]
	}
	latency := window.Lerp(s.AvgResponseTimeMs, 3000, 12000, 0, 0.3)
	streak := 0.05 * float64(min(s.LongestErrorStreak, 5))
	interrupts := 0.02 * float64(s.Interruptions)
	reported := reportedFatigueWeight * window.Clamp01(s.FatigueEstimate)
	factor := window.Clamp(s.Minutes()/m.circadian.OptimalSessionLengthMinutes, 0.5, 1.5)
	return window.Clamp01((w + latency + streak + interrupts + reported) * factor)
}

func (m *Model) updateOptimalLength(minutes, performance float64) {
	if minutes <= 0 {
		return
	}
	target := minutes
	if performance < 0.6 {
		target = 0.8 * minutes
	}
	next := window.EMA(m.circadian.OptimalSessionLengthMinutes, target, m.alpha)
	m.circadian.OptimalSessionLengthMinutes = window.Clamp(next, minOptimalMinutes, maxOptimalMinutes)
}

func (m *Model) recomputeCircadian() {
	var qualified []int
	for h := range m.hours {
		if m.hours[h].Sessions >= minHourSessions {
			qualified = append(qualified, h)
		}
	}
	m.circadian.PeakHours, m.circadian.LowHours = nil, nil

	switch len(qualified) {
	case 0:
	case 1:
		h := qualified[0]
		if p := m.hours[h].Performance; p >= singleHourPeakFloor {
			m.circadian.PeakHours = []int{h}
		} else if p <= singleHourLowCeiling {
			m.circadian.LowHours = []int{h}
		}
	default:
		perfs := make([]float64, len(qualified))
		for i, h := range qualified {
			perfs[i] = m.hours[h].Performance
		}
		mean := window.Mean(perfs)
		var peaks, lows []int
		for _, h := range qualified {
			switch p := m.hours[h].Performance; {
			case p >= mean+peakMargin:
				peaks = append(peaks, h)
			case p <= mean-peakMargin:
				lows = append(lows, h)
			}
		}
		sort.SliceStable(peaks, func(i, j int) bool { return m.hours[peaks[i]].Performance > m.hours[peaks[j]].Performance })
		sort.SliceStable(lows, func(i, j int) bool { return m.hours[lows[i]].Performance < m.hours[lows[j]].Performance })
		m.circadian.PeakHours = peaks[:min(len(peaks), maxPeakHours)]
		m.circadian.LowHours = lows[:min(len(lows), maxPeakHours)]
	}

	m.circadian.LearningRhythm = RhythmUnknown
	if len(m.circadian.PeakHours) > 0 {
		m.circadian.LearningRhythm = rhythmOf(m.circadian.PeakHours[0])
	}
}

func rhythmOf(h int) string {
	switch {
	case h >= 5 && h < 12:
		return RhythmMorning
	case h >= 12 && h < 17:
		return RhythmAfternoon
	case h >= 17 && h < 22:
		return RhythmEvening
	default:
		return RhythmNight
	}
}

// LoadAt returns the cognitive load at now after linear recovery.
func (m *Model) LoadAt(now time.Time) float64 {
	if m.load.UpdatedAt.IsZero() || !now.After(m.load.UpdatedAt) {
		return m.load.Current
	}
	minutes := now.Sub(m.load.UpdatedAt).Minutes()
	return window.Clamp01(m.load.Current - m.load.RecoveryRatePerMinute*minutes)
}

func (m *Model) baseFatigue(h int) float64 {
	switch {
	case m.morning.contains(h):
		return 0.2
	case m.postLunch.contains(h):
		return 0.6
	case m.lateNight.contains(h):
		return 0.8
	default:
		return 0.4
	}
}

// Fatigue blends the time-of-day curve (0.4), the personal hourly profile
// (0.3) and the current load (0.3).
func (m *Model) Fatigue(now time.Time) float64 {
	h := now.In(m.loc).Hour()
	personal := 0.5
	if hs := m.hours[h]; hs.Sessions >= minHourSessions {
		personal = 1 - hs.Performance
	}
	return window.Clamp01(0.4*m.baseFatigue(h) + 0.3*personal + 0.3*m.LoadAt(now))
}

func contains(hours []int, h int) bool {
	for _, x := range hours {
		if x == h {
			return true
		}
	}
	return false
}

// Recommend returns the timing advice for a review scheduled at now.
func (m *Model) Recommend(now time.Time) Recommendation {
	h := now.In(m.loc).Hour()
	r := Recommendation{TimingMultiplier: 1, Fatigue: m.Fatigue(now), CognitiveLoad: m.LoadAt(now)}

	peak := contains(m.circadian.PeakHours, h)
	if peak {
		r.TimingMultiplier *= 1.2
		r.Reasons = append(r.Reasons, "peak_hour")
	}
	if contains(m.circadian.LowHours, h) {
		r.TimingMultiplier *= 0.85
		r.Reasons = append(r.Reasons, "low_hour")
	}

	switch {
	case r.Fatigue > 0.7:
		r.TimingMultiplier *= 0.8
		r.ShouldDelay = true
		r.Delay = defaultDelay
		r.Reasons = append(r.Reasons, "high_fatigue")
	case r.Fatigue > 0.5:
		r.TimingMultiplier *= 0.9
		r.Reasons = append(r.Reasons, "moderate_fatigue")
	}

	if r.CognitiveLoad > m.load.Threshold {
		r.TimingMultiplier *= 0.75
		r.ShouldDelay = true
		// Time for the load to recover below the threshold.
		if d := time.Duration((r.CognitiveLoad - m.load.Threshold) / m.load.RecoveryRatePerMinute * float64(time.Minute)); d > r.Delay {
			r.Delay = d
		}
		if r.Delay < defaultDelay {
			r.Delay = defaultDelay
		}
		r.Reasons = append(r.Reasons, "cognitive_overload")
	}

	r.TimingMultiplier = window.Clamp(r.TimingMultiplier, minTimingMultiplier, maxTimingMultiplier)
	r.IsOptimalTime = peak && !r.ShouldDelay && r.Fatigue <= 0.5
	return r
}

// RecommendSessionType suggests rest, review, new_material or practice.
func (m *Model) RecommendSessionType(now time.Time) string {
	h := now.In(m.loc).Hour()
	load := m.LoadAt(now)
	fatigue := m.Fatigue(now)
	switch {
	case load > m.load.Threshold || fatigue > 0.7:
		return model.SessionRest
	case fatigue > 0.5 || contains(m.circadian.LowHours, h):
		return model.SessionReview
	case contains(m.circadian.PeakHours, h) && load < 0.5*m.load.Threshold:
		return model.SessionNewMaterial
	default:
		return model.SessionPractice
	}
}

// Circadian returns a copy of the circadian profile.
func (m *Model) Circadian() Circadian {
	c := m.circadian
	c.PeakHours = append([]int(nil), c.PeakHours...)
	c.LowHours = append([]int(nil), c.LowHours...)
	return c
}

// Load returns a copy of the load state.
func (m *Model) Load() LoadState {
	l := m.load
	l.History = append([]LoadSample(nil), l.History...)
	return l
}

// Hour returns the aggregates of one hour of the day.
func (m *Model) Hour(h int) HourStats {
	if h < 0 || h > 23 {
		return HourStats{}
	}
	return m.hours[h]
}

// Sessions returns the number of processed sessions.
func (m *Model) Sessions() int { return m.sessions }

type checkpoint struct {
	Hours     [24]HourStats `json:"hours"`
	Circadian Circadian     `json:"circadian"`
	Load      LoadState     `json:"load"`
	Sessions  int           `json:"sessions"`
}

// Export encodes the model state as JSON.
func (m *Model) Export() ([]byte, error) {
	return json.Marshal(checkpoint{Hours: m.hours, Circadian: m.circadian, Load: m.load, Sessions: m.sessions})
}

// Import replaces the model state with a blob produced by Export. The
// configured threshold and recovery rate are kept.
func (m *Model) Import(b []byte) error {
	var cp checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return fmt.Errorf("temporal: decode checkpoint: %w", err)
	}
	m.hours = cp.Hours
	m.circadian = cp.Circadian
	if m.circadian.OptimalSessionLengthMinutes <= 0 {
		m.circadian.OptimalSessionLengthMinutes = defaultOptimalMinutes
	}
	if m.circadian.LearningRhythm == "" {
		m.circadian.LearningRhythm = RhythmUnknown
	}
	m.load.Current = window.Clamp01(cp.Load.Current)
	m.load.History = cp.Load.History
	m.load.UpdatedAt = cp.Load.UpdatedAt
	m.sessions = cp.Sessions
	return nil
}
