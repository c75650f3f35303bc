package flow

import (
	"time"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/window"
)

// Metrics are computed over the flow sub-window.
type Metrics struct {
	Samples             int     `json:"samples"`
	Accuracy            float64 `json:"accuracy"`
	MeanResponseTimeMs  float64 `json:"meanResponseTimeMs"`
	MeanConfidence      float64 `json:"meanConfidence"`
	VelocityConsistency float64 `json:"velocityConsistency"`
	CorrectStreak       int     `json:"correctStreak"`
	ErrorStreak         int     `json:"errorStreak"`
	SlowStreak          int     `json:"slowStreak"`
}

// Transition records one committed state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Result is returned by Process.
type Result struct {
	State        State   `json:"state"`
	Previous     State   `json:"previous"`
	StateChanged bool    `json:"stateChanged"`
	Candidate    State   `json:"candidate"`
	Metrics      Metrics `json:"metrics"`
}

// Detector tracks one learner's flow state. It is not safe for concurrent
// use; callers serialize access per user.
type Detector struct {
	windowSize int
	flowWindow int
	minSamples int
	minDwell   time.Duration
	fastMs     float64
	slowMs     float64

	responses *window.Ring[model.ResponseRecord]
	history   *window.Ring[Transition]

	state         State
	stateSince    time.Time
	lastChange    time.Time
	hasChanged    bool
	correctStreak int
	errorStreak   int
	slowStreak    int
	metrics       Metrics
}

// New creates a Detector in the NEUTRAL state.
func New(opts ...Option) *Detector {
	d := &Detector{
		windowSize: defaultWindowSize,
		flowWindow: defaultFlowWindow,
		minSamples: defaultMinSamples,
		minDwell:   defaultMinDwell,
		fastMs:     defaultFastMs,
		slowMs:     defaultSlowMs,
		state:      Neutral,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.flowWindow > d.windowSize {
		d.flowWindow = d.windowSize
	}
	d.responses = window.New[model.ResponseRecord](d.windowSize)
	d.history = window.New[Transition](defaultHistorySize)
	return d
}

// Process adds a response and returns the (possibly unchanged) state.
func (d *Detector) Process(rec model.ResponseRecord) Result {
	if d.responses.Len() == 0 && d.stateSince.IsZero() {
		d.stateSince = rec.Timestamp
	}
	d.responses.Push(rec)
	d.updateStreaks(rec)
	d.metrics = d.computeMetrics()

	candidate := d.classify(d.metrics)
	res := Result{State: d.state, Previous: d.state, Candidate: candidate, Metrics: d.metrics}

	if candidate != d.state && d.canCommit(candidate, rec.Timestamp) {
		d.history.Push(Transition{From: d.state, To: candidate, At: rec.Timestamp})
		d.state = candidate
		d.stateSince = rec.Timestamp
		d.lastChange = rec.Timestamp
		d.hasChanged = true
		res.State = candidate
		res.StateChanged = true
	}
	return res
}

func (d *Detector) updateStreaks(rec model.ResponseRecord) {
	if rec.Correct {
		d.correctStreak++
		d.errorStreak = 0
	} else {
		d.errorStreak++
		d.correctStreak = 0
	}
	if rec.IsSlow {
		d.slowStreak++
	} else {
		d.slowStreak = 0
	}
}

func (d *Detector) computeMetrics() Metrics {
	recent := d.responses.Last(d.flowWindow)
	rts := make([]float64, len(recent))
	confs := make([]float64, len(recent))
	correct := 0
	for i, r := range recent {
		rts[i] = r.ResponseTimeMs
		confs[i] = r.Confidence
		if r.Correct {
			correct++
		}
	}

	m := Metrics{
		Samples:            len(recent),
		MeanResponseTimeMs: window.Mean(rts),
		MeanConfidence:     window.Mean(confs),
		CorrectStreak:      d.correctStreak,
		ErrorStreak:        d.errorStreak,
		SlowStreak:         d.slowStreak,
	}
	if len(recent) > 0 {
		m.Accuracy = float64(correct) / float64(len(recent))
	}
	if m.MeanResponseTimeMs > 0 {
		m.VelocityConsistency = window.StdDev(rts) / m.MeanResponseTimeMs
	}
	return m
}

func (d *Detector) classify(m Metrics) State {
	if m.Samples < d.minSamples {
		return Neutral
	}
	switch {
	case m.Accuracy >= 0.85 && m.MeanResponseTimeMs <= 1.2*d.fastMs &&
		m.VelocityConsistency < 0.3 && m.CorrectStreak >= 5:
		return DeepFlow
	case m.Accuracy >= 0.75 && m.MeanResponseTimeMs <= 1.5*d.fastMs &&
		m.MeanConfidence > 0.6 && m.CorrectStreak >= 3:
		return LightFlow
	case m.Accuracy < 0.60 || m.ErrorStreak >= 3 || d.verySlowCount(5) >= 3:
		return Frustrated
	case m.Accuracy < 0.70 || m.MeanResponseTimeMs > d.slowMs || m.SlowStreak >= 3:
		return Struggling
	default:
		return Neutral
	}
}

func (d *Detector) verySlowCount(n int) int {
	count := 0
	for _, r := range d.responses.Last(n) {
		if r.ResponseTimeMs > 1.5*d.slowMs {
			count++
		}
	}
	return count
}

// canCommit applies the dwell and corroboration rules. The first change of a
// session is not subject to the dwell.
func (d *Detector) canCommit(candidate State, at time.Time) bool {
	if d.hasChanged && at.Sub(d.lastChange) < d.minDwell {
		return false
	}
	var support func(model.ResponseRecord) bool
	switch candidate {
	case DeepFlow:
		support = func(r model.ResponseRecord) bool {
			return r.Correct && r.HintsUsed == 0 && r.ResponseTimeMs <= 1.2*d.fastMs
		}
	case Frustrated:
		support = func(r model.ResponseRecord) bool {
			return !r.Correct || r.ResponseTimeMs > 1.5*d.slowMs
		}
	default:
		return true
	}
	n := 0
	for _, r := range d.responses.Last(3) {
		if support(r) {
			n++
		}
	}
	return n >= 2
}

// State returns the committed state.
func (d *Detector) State() State { return d.state }

// Metrics returns the metrics computed on the last Process call.
func (d *Detector) Metrics() Metrics { return d.metrics }

// TimeInState returns how long the committed state has held at now.
func (d *Detector) TimeInState(now time.Time) time.Duration {
	if d.stateSince.IsZero() || now.Before(d.stateSince) {
		return 0
	}
	return now.Sub(d.stateSince)
}

// History returns the most recent committed transitions, oldest first.
func (d *Detector) History() []Transition { return d.history.Items() }

// Reset starts a new session: the window, streaks and state are cleared and
// the next change may commit immediately. Transition history is kept.
func (d *Detector) Reset() {
	d.responses.Clear()
	d.state = Neutral
	d.stateSince = time.Time{}
	d.lastChange = time.Time{}
	d.hasChanged = false
	d.correctStreak, d.errorStreak, d.slowStreak = 0, 0, 0
	d.metrics = Metrics{}
}
