package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/cadence/internal/domain/confidence"
	"github.com/okian/cadence/internal/domain/flow"
	"github.com/okian/cadence/internal/domain/momentum"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/pkg/logger"
)

// Snapshot reasons.
const (
	ReasonAttempt            = "attempt"
	ReasonFlowTransition     = "flow_transition"
	ReasonMomentumTransition = "momentum_transition"
	ReasonSession            = "session"
	ReasonSchedule           = "schedule"
	ReasonRestore            = "restore"
)

// FlowView is the flow part of a snapshot.
type FlowView struct {
	State         flow.State        `json:"state"`
	TimeInStateMs int64             `json:"timeInStateMs"`
	Metrics       flow.Metrics      `json:"metrics"`
	History       []flow.Transition `json:"history"`
}

// MomentumView is the momentum part of a snapshot.
type MomentumView struct {
	momentum.Result
	Comparative momentum.Trends `json:"comparative"`
}

// ConfidenceView is the confidence part of a snapshot.
type ConfidenceView struct {
	Overall         float64                     `json:"overall"`
	Category        float64                     `json:"category"`
	Level           confidence.Level            `json:"level"`
	Trend           confidence.Trend            `json:"trend"`
	Calibration     confidence.Calibration      `json:"calibration"`
	Recommendations []confidence.Recommendation `json:"recommendations"`
	Insights        []confidence.Insight        `json:"insights"`
}

// TemporalView is the temporal part of a snapshot.
type TemporalView struct {
	Timing      temporal.Recommendation `json:"timing"`
	Circadian   temporal.Circadian      `json:"circadian"`
	Load        temporal.LoadState      `json:"load"`
	Fatigue     float64                 `json:"fatigue"`
	SessionType string                  `json:"sessionTypeRecommendation"`
	Sessions    int                     `json:"sessions"`
}

// SchedulingView summarizes the learner's cards.
type SchedulingView struct {
	Stats   srs.Stats   `json:"stats"`
	Cards   int         `json:"cards"`
	Due     int         `json:"due"`
	Leeches int         `json:"leeches"`
	Last    *srs.Result `json:"last,omitempty"`
}

// Snapshot is the merged read-only state of one learner.
type Snapshot struct {
	UserID     string         `json:"userId"`
	Sequence   uint64         `json:"sequence"`
	Reason     string         `json:"reason"`
	At         time.Time      `json:"at"`
	Attempts   int            `json:"attempts"`
	Flow       FlowView       `json:"flow"`
	Momentum   MomentumView   `json:"momentum"`
	Confidence ConfidenceView `json:"confidence"`
	Temporal   TemporalView   `json:"temporal"`
	Scheduling SchedulingView `json:"scheduling"`
}

// Observer receives snapshots. Observers run on the publishing goroutine
// and must not block.
type Observer func(Snapshot)

// observers is a typed observer list keyed by subscription id.
type observers struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Observer
}

func (o *observers) add(fn Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[uint64]Observer)
	}
	o.nextID++
	id := o.nextID
	o.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// list returns the observers in subscription order.
func (o *observers) list() []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]uint64, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = o.subs[id]
	}
	return out
}

func (o *observers) len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

// notify delivers s to every observer. A panicking observer is logged and
// skipped.
func (e *Engine) notify(ctx context.Context, snaps []Snapshot) {
	subs := e.observers.list()
	if len(subs) == 0 {
		return
	}
	for _, s := range snaps {
		for _, fn := range subs {
			e.deliver(ctx, fn, s)
		}
	}
}

func (e *Engine) deliver(ctx context.Context, fn Observer, s Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "observer panicked",
				logger.String("user", s.UserID),
				logger.String("reason", s.Reason),
				logger.Any("panic", r),
			)
		}
	}()
	fn(s)
	e.metrics.RecordObserverNotification()
}
