package engine

import (
	"context"
	"sync"
	"time"

	"github.com/okian/cadence/internal/domain/confidence"
	"github.com/okian/cadence/internal/domain/flow"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/momentum"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/pkg/logger"
)

// AttemptResult is returned by ProcessAttempt.
type AttemptResult struct {
	AttemptID          string           `json:"attemptId"`
	FlowState          flow.State       `json:"flowState"`
	FlowChanged        bool             `json:"flowChanged"`
	MomentumType       momentum.Type    `json:"momentumType"`
	MomentumChanged    bool             `json:"momentumChanged"`
	MomentumScore      float64          `json:"momentumScore"`
	ConfidenceOverall  float64          `json:"confidenceOverall"`
	ConfidenceCategory float64          `json:"confidenceCategory"`
	ConfidenceLevel    confidence.Level `json:"confidenceLevel"`
	Scheduled          *srs.Result      `json:"scheduled,omitempty"`
}

// ScheduleRequest asks for the next interval of one item outside the
// attempt stream.
type ScheduleRequest struct {
	Item           model.Item `json:"item"`
	Correct        bool       `json:"correct"`
	HintsUsed      int        `json:"hintsUsed"`
	ResponseTimeMs float64    `json:"responseTimeMs"`
	ErrorTypes     []string   `json:"errorTypes"`
	At             time.Time  `json:"at"`
}

// Engine is the composition root for one learner. Its methods are safe for
// concurrent use; observers are notified after the state lock is released.
type Engine struct {
	userID string

	mu         sync.Mutex
	flow       *flow.Detector
	momentum   *momentum.Tracker
	confidence *confidence.Engine
	temporal   *temporal.Model
	scheduler  *srs.Scheduler
	cards      map[string]srs.Card

	thresholds     model.Thresholds
	lastConfidence confidence.Result
	lastSchedule   *srs.Result
	attempts       int
	sequence       uint64
	sessionGap     time.Duration
	lastAttempt    time.Time
	sessionEnd     time.Time
	dirty          dirtySet

	observers observers

	flowOpts       []flow.Option
	momentumOpts   []momentum.Option
	confidenceOpts []confidence.Option
	temporalOpts   []temporal.Option
	schedulerOpts  []srs.Option

	now     func() time.Time
	logger  logger.Logger
	metrics Metrics
}

// New creates an Engine for userID with fresh components.
func New(userID string, opts ...Option) *Engine {
	e := &Engine{
		userID:     userID,
		cards:      make(map[string]srs.Card),
		thresholds: model.DefaultThresholds(),
		dirty:      newDirtySet(),
		sessionGap: defaultSessionGap,
		now:        time.Now,
		logger:     logger.Discard(),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.flow = flow.New(append([]flow.Option{flow.WithThresholds(e.thresholds.FastMs, e.thresholds.SlowMs)}, e.flowOpts...)...)
	e.momentum = momentum.New(append([]momentum.Option{momentum.WithThresholds(e.thresholds.FastMs, e.thresholds.SlowMs)}, e.momentumOpts...)...)
	e.confidence = confidence.New(e.confidenceOpts...)
	e.temporal = temporal.New(e.temporalOpts...)
	e.scheduler = srs.New(e.schedulerOpts...)
	e.lastConfidence = confidence.Result{Level: confidence.Uncertain}
	return e
}

// UserID returns the learner this engine belongs to.
func (e *Engine) UserID() string { return e.userID }

// ProcessAttempt runs one attempt through flow, momentum and confidence and,
// when the item is due, reschedules its card. Malformed fields are
// defaulted; the call never fails.
func (e *Engine) ProcessAttempt(ctx context.Context, a model.AttemptEvent) AttemptResult {
	start := time.Now()
	e.mu.Lock()

	a = a.Normalize(e.now())
	rec := model.NewRecord(a, e.thresholds)
	if e.sessionBoundary(a.Timestamp) {
		e.flow.Reset()
		e.momentum.StartSession()
		e.logger.Debug(ctx, "new session",
			logger.String("user", e.userID),
			logger.Time("at", a.Timestamp),
		)
	}
	if a.Timestamp.After(e.lastAttempt) {
		e.lastAttempt = a.Timestamp
	}

	fr := e.flow.Process(rec)
	mr := e.momentum.Process(rec, fr.State)
	cr := e.confidence.Process(rec, a.SelfReportedConfidence)
	e.lastConfidence = cr
	e.attempts++
	e.dirty.confidence = true

	res := AttemptResult{
		AttemptID:          a.ID,
		FlowState:          fr.State,
		FlowChanged:        fr.StateChanged,
		MomentumType:       mr.Type,
		MomentumChanged:    mr.TypeChanged,
		MomentumScore:      mr.Score,
		ConfidenceOverall:  cr.Overall,
		ConfidenceCategory: cr.Category,
		ConfidenceLevel:    cr.Level,
	}

	key := model.CardKey(e.userID, a.Item)
	card, ok := e.cards[key]
	if !ok {
		card = srs.NewCard(key, a.Timestamp)
	}
	if card.IsDue(a.Timestamp) {
		sr := e.schedule(ctx, card, a.Correct, a.HintsUsed, e.meta(a.Item, a.ResponseTimeMs, a.ErrorTypes, a.Timestamp, &fr, &mr))
		res.Scheduled = &sr
	}

	var snaps []Snapshot
	if fr.StateChanged {
		e.metrics.RecordFlowTransition(fr.Previous.String(), fr.State.String())
		e.logger.Debug(ctx, "flow transition",
			logger.String("user", e.userID),
			logger.String("from", fr.Previous.String()),
			logger.String("to", fr.State.String()),
		)
		snaps = append(snaps, e.snapshotLocked(ReasonFlowTransition, a.Timestamp))
	}
	if mr.TypeChanged {
		e.metrics.RecordMomentumTransition(mr.Previous.String(), mr.Type.String())
		snaps = append(snaps, e.snapshotLocked(ReasonMomentumTransition, a.Timestamp))
	}
	snaps = append(snaps, e.snapshotLocked(ReasonAttempt, a.Timestamp))
	e.mu.Unlock()

	e.metrics.RecordAttemptProcessed(float64(time.Since(start).Microseconds()) / 1000)
	e.notify(ctx, snaps)
	return res
}

// sessionBoundary reports whether an attempt at t opens a new session: the
// learner paused longer than the session gap, or a session summary closed
// the previous session after the last attempt. Must be called with e.mu held.
func (e *Engine) sessionBoundary(t time.Time) bool {
	if e.lastAttempt.IsZero() {
		return false
	}
	if t.Sub(e.lastAttempt) > e.sessionGap {
		return true
	}
	return !e.sessionEnd.IsZero() && !e.lastAttempt.After(e.sessionEnd) && t.After(e.sessionEnd)
}

// ProcessSession folds a session summary into the temporal model.
func (e *Engine) ProcessSession(ctx context.Context, s model.SessionSummary) temporal.Result {
	e.mu.Lock()
	s = s.Normalize(e.now())
	res := e.temporal.ProcessSession(s)
	if s.End.After(e.sessionEnd) {
		e.sessionEnd = s.End
	}
	e.dirty.temporal = true
	snap := e.snapshotLocked(ReasonSession, s.End)
	e.mu.Unlock()

	e.metrics.RecordSessionProcessed()
	e.logger.Debug(ctx, "session processed",
		logger.String("user", e.userID),
		logger.Float64("load", res.Load),
		logger.Float64("fatigue", res.Fatigue),
		logger.String("next", res.SessionType),
	)
	e.notify(ctx, []Snapshot{snap})
	return res
}

// CalculateNextInterval reschedules the item's card with the learner's
// current signals regardless of whether it is due.
func (e *Engine) CalculateNextInterval(ctx context.Context, req ScheduleRequest) srs.Result {
	e.mu.Lock()
	at := req.At
	if at.IsZero() {
		at = e.now()
	}
	rt := req.ResponseTimeMs
	if !(rt > 0) {
		rt = model.DefaultResponseTimeMs
	}
	key := model.CardKey(e.userID, req.Item)
	card, ok := e.cards[key]
	if !ok {
		card = srs.NewCard(key, at)
	}
	fr := flow.Result{State: e.flow.State()}
	mr := e.momentum.Last()
	res := e.schedule(ctx, card, req.Correct, req.HintsUsed, e.meta(req.Item, rt, req.ErrorTypes, at, &fr, &mr))
	snap := e.snapshotLocked(ReasonSchedule, at)
	e.mu.Unlock()

	e.notify(ctx, []Snapshot{snap})
	return res
}

// meta assembles the read-only signals for one scheduling call.
func (e *Engine) meta(item model.Item, rtMs float64, errorTypes []string, at time.Time, fr *flow.Result, mr *momentum.Result) srs.Meta {
	return srs.Meta{
		ResponseTimeMs: rtMs,
		ErrorTypes:     errorTypes,
		Flow:           fr.State,
		Confidence:     e.confidence.LevelForItem(item, at),
		Frustrated:     fr.State == flow.Frustrated || mr.Emotional.Frustration >= frustrationThreshold,
		Timing:         e.temporal.Recommend(at),
		Now:            at,
	}
}

// schedule must be called with e.mu held.
func (e *Engine) schedule(ctx context.Context, card srs.Card, correct bool, hints int, meta srs.Meta) srs.Result {
	res := e.scheduler.CalculateNextInterval(card, correct, hints, meta)
	if res.UsedFallback {
		e.metrics.RecordSchedulingDecision("fallback")
		if res.FallbackReason != srs.ReasonDisabled {
			e.metrics.RecordSchedulingError(res.FallbackReason)
			e.logger.Warn(ctx, "adaptive scheduling failed, used fallback",
				logger.String("user", e.userID),
				logger.String("card", card.Key),
				logger.String("reason", res.FallbackReason),
			)
		}
	} else {
		e.metrics.RecordSchedulingDecision("adaptive")
	}
	e.cards[res.Card.Key] = res.Card
	e.dirty.cards[res.Card.Key] = struct{}{}
	e.lastSchedule = &res
	return res
}

// Subscribe registers fn for every published snapshot and returns a func
// that removes it.
func (e *Engine) Subscribe(fn Observer) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return e.observers.add(fn)
}

// Observers returns the number of active subscriptions.
func (e *Engine) Observers() int { return e.observers.len() }

// Snapshot returns the current merged state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildLocked("", e.now())
}

// Card returns the learner's card for item.
func (e *Engine) Card(item model.Item) (srs.Card, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cards[model.CardKey(e.userID, item)]
	return c, ok
}

// DueCards returns the cards due at now, earliest first.
func (e *Engine) DueCards(now time.Time) []srs.Card {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []srs.Card
	for _, c := range e.cards {
		if c.IsDue(now) {
			out = append(out, c)
		}
	}
	sortCards(out)
	return out
}

// SchedulerStats returns the adaptive and fallback counters.
func (e *Engine) SchedulerStats() srs.Stats { return e.scheduler.Stats() }

// snapshotLocked builds a published snapshot and advances the sequence.
func (e *Engine) snapshotLocked(reason string, at time.Time) Snapshot {
	e.sequence++
	return e.buildLocked(reason, at)
}

func (e *Engine) buildLocked(reason string, at time.Time) Snapshot {
	due, leeches := 0, 0
	for _, c := range e.cards {
		if c.IsDue(at) {
			due++
		}
		if c.Leech {
			leeches++
		}
	}
	timing := e.temporal.Recommend(at)
	cr := e.lastConfidence

	return Snapshot{
		UserID:   e.userID,
		Sequence: e.sequence,
		Reason:   reason,
		At:       at,
		Attempts: e.attempts,
		Flow: FlowView{
			State:         e.flow.State(),
			TimeInStateMs: e.flow.TimeInState(at).Milliseconds(),
			Metrics:       e.flow.Metrics(),
			History:       e.flow.History(),
		},
		Momentum: MomentumView{
			Result: e.momentum.Last(),
			Comparative: momentum.Trends{
				Short:  e.momentum.ComparativeTrend(momentum.Short),
				Medium: e.momentum.ComparativeTrend(momentum.Medium),
				Long:   e.momentum.ComparativeTrend(momentum.Long),
			},
		},
		Confidence: ConfidenceView{
			Overall:         e.confidence.Overall(at),
			Category:        cr.Category,
			Level:           cr.Level,
			Trend:           cr.Trend,
			Calibration:     e.confidence.Calibration(),
			Recommendations: cr.Recommendations,
			Insights:        e.confidence.Insights(at),
		},
		Temporal: TemporalView{
			Timing:      timing,
			Circadian:   e.temporal.Circadian(),
			Load:        e.temporal.Load(),
			Fatigue:     timing.Fatigue,
			SessionType: e.temporal.RecommendSessionType(at),
			Sessions:    e.temporal.Sessions(),
		},
		Scheduling: SchedulingView{
			Stats:   e.scheduler.Stats(),
			Cards:   len(e.cards),
			Due:     due,
			Leeches: leeches,
			Last:    e.lastSchedule,
		},
	}
}
