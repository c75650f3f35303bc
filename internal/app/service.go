package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/okian/cadence/internal/adapters/mq/queue"
	workerpool "github.com/okian/cadence/internal/adapters/mq/worker"
	"github.com/okian/cadence/internal/adapters/repository"
	"github.com/okian/cadence/internal/domain/dedupe"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/internal/engine"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Task kinds, used for logging and worker metrics.
const (
	taskAttempt  = "attempt"
	taskSession  = "session"
	taskSchedule = "schedule"
)

// Task lifecycle for abandon-before-run.
const (
	taskPending int32 = iota
	taskRunning
	taskAbandoned
)

// userEntry hydrates a learner's engine exactly once.
type userEntry struct {
	once sync.Once
	eng  *engine.Engine
	err  error
}

// Service implements the API dependencies for the adaptive scheduler.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ownsStore bool
	deduper   *dedupe.InMemoryDeduper
	pool      *workerpool.Pool
	cron      *gocron.Scheduler

	// Learners
	users   map[string]*userEntry
	engines map[string]*engine.Engine

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	timeout       time.Duration
	intervals     map[engine.Kind]time.Duration
	engineOpts    []engine.Option
	engineMetrics engine.Metrics

	// State
	started bool
	stopped bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		store:       repository.NewMemoryStore(),
		ownsStore:   true,
		users:       make(map[string]*userEntry),
		engines:     make(map[string]*engine.Engine),
		workerCount: defaultWorkerCount(),
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		timeout:     defaultTimeout,
		intervals: map[engine.Kind]time.Duration{
			engine.KindConfidence: defaultConfidenceSave,
			engine.KindTemporal:   defaultTemporalSave,
			engine.KindCards:      defaultCardSave,
		},
		engineMetrics: metrics.Global(),
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the worker pool and the checkpoint timers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting cadence service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.pool = workerpool.NewPool(s.workerCount,
		workerpool.WithQueueCapacity(s.queueSize),
		workerpool.WithPoolLogger(s.logger.Named("worker")),
	)
	s.pool.Start(runCtx)

	s.cron = gocron.NewScheduler(time.UTC)
	for _, kind := range []engine.Kind{engine.KindConfidence, engine.KindTemporal, engine.KindCards} {
		kind := kind
		_, err := s.cron.Every(s.intervals[kind]).WaitForSchedule().SingletonMode().Do(func() {
			if err := s.checkpoint(runCtx, kind); err != nil {
				s.logger.Warn(runCtx, "checkpoint incomplete",
					logger.String("kind", string(kind)),
					logger.Error(err),
				)
			}
		})
		if err != nil {
			cancel()
			_ = s.pool.Shutdown(ctx)
			return fmt.Errorf("schedule %s checkpoints: %w", kind, err)
		}
	}
	s.cron.StartAsync()

	s.started = true
	s.logger.Info(ctx, "cadence service started",
		logger.Int("workers", s.pool.Shards()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("timeout", s.timeout),
	)
	return nil
}

// Stop drains the workers, writes a final checkpoint and releases the
// store. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultStopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping cadence service...")

	s.cron.Stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	if err := s.Flush(ctx); err != nil {
		s.logger.Error(ctx, "final checkpoint incomplete", logger.Error(err))
	}
	s.cancel()

	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "error closing store", logger.Error(err))
		}
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.logger.Info(ctx, "cadence service stopped")
}

// ProcessAttempt runs one attempt on the learner's worker. Attempt ids are
// deduplicated; an attempt that was not processed is forgotten so a retry
// is accepted.
func (s *Service) ProcessAttempt(ctx context.Context, a model.AttemptEvent) (engine.AttemptResult, error) {
	if a.UserID == "" {
		return engine.AttemptResult{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if err := s.ready(); err != nil {
		return engine.AttemptResult{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if s.deduper.SeenAndRecord(ctx, a.ID) {
		metrics.RecordAttemptDuplicate()
		s.logger.Debug(ctx, "duplicate attempt detected, skipping",
			logger.String("attemptID", a.ID),
			logger.String("userID", a.UserID),
		)
		return engine.AttemptResult{AttemptID: a.ID}, ErrDuplicate
	}

	res, err := call(ctx, s, a.UserID, taskAttempt, func(ctx context.Context, eng *engine.Engine) engine.AttemptResult {
		return eng.ProcessAttempt(ctx, a)
	})
	if err != nil {
		s.deduper.Unrecord(ctx, a.ID)
		return engine.AttemptResult{}, err
	}
	return res, nil
}

// ProcessSession folds one session summary into the learner's temporal model.
func (s *Service) ProcessSession(ctx context.Context, sum model.SessionSummary) (temporal.Result, error) {
	if sum.UserID == "" {
		return temporal.Result{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return call(ctx, s, sum.UserID, taskSession, func(ctx context.Context, eng *engine.Engine) temporal.Result {
		return eng.ProcessSession(ctx, sum)
	})
}

// CalculateNextInterval schedules one item for userID outside the attempt
// stream.
func (s *Service) CalculateNextInterval(ctx context.Context, userID string, req engine.ScheduleRequest) (srs.Result, error) {
	if userID == "" {
		return srs.Result{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return call(ctx, s, userID, taskSchedule, func(ctx context.Context, eng *engine.Engine) srs.Result {
		return eng.CalculateNextInterval(ctx, req)
	})
}

// Snapshot returns the learner's current snapshot, loading their state on
// first use.
func (s *Service) Snapshot(ctx context.Context, userID string) (engine.Snapshot, error) {
	if userID == "" {
		return engine.Snapshot{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if err := s.ready(); err != nil {
		return engine.Snapshot{}, err
	}
	eng, err := s.engineFor(ctx, userID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return eng.Snapshot(), nil
}

// Subscribe registers fn for the learner's snapshots.
func (s *Service) Subscribe(ctx context.Context, userID string, fn engine.Observer) (unsubscribe func(), err error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	eng, err := s.engineFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return eng.Subscribe(fn), nil
}

// Flush checkpoints every kind for every loaded learner now.
func (s *Service) Flush(ctx context.Context) error {
	var errs []error
	for _, kind := range []engine.Kind{engine.KindConfidence, engine.KindTemporal, engine.KindCards} {
		if err := s.checkpoint(ctx, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"timeoutMs":   s.timeout.Milliseconds(),
		"activeUsers": len(s.engines),
	}

	if s.started {
		queueLen := s.pool.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()

		var sched srs.Stats
		for _, eng := range s.engines {
			st := eng.SchedulerStats()
			sched.Adaptive += st.Adaptive
			sched.Fallback += st.Fallback
			sched.Errors += st.Errors
		}
		stats["scheduler"] = sched

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateActiveUsers(len(s.engines))
		metrics.UpdateWorkerCount(s.pool.Shards())
	}

	return stats
}

// ActiveUsers returns the ids of learners with a loaded engine, sorted.
func (s *Service) ActiveUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.engines))
	for id := range s.engines {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// call runs fn on the worker that owns userID and waits for its reply. When
// the deadline passes before the worker picks the task up, the task is
// abandoned and ErrTimeout is returned; once running it is always awaited.
func call[T any](ctx context.Context, s *Service, userID, kind string, fn func(context.Context, *engine.Engine) T) (T, error) {
	var zero T
	if err := s.ready(); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	type reply struct {
		v   T
		err error
	}
	out := make(chan reply, 1)
	var state atomic.Int32

	task := queue.Task{
		UserID:   userID,
		Kind:     kind,
		Deadline: deadline,
		Run: func(context.Context) {
			if !state.CompareAndSwap(taskPending, taskRunning) {
				return
			}
			r := reply{err: errTaskPanicked}
			defer func() { out <- r }()

			eng, err := s.engineFor(ctx, userID)
			if err != nil {
				r.err = err
				return
			}
			r = reply{v: fn(ctx, eng)}
		},
	}

	if err := s.pool.Submit(ctx, task); err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			return zero, ErrQueueFull
		case errors.Is(err, queue.ErrQueueClosed):
			return zero, ErrStopped
		default:
			return zero, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
	}

	select {
	case r := <-out:
		return r.v, r.err
	case <-ctx.Done():
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			metrics.RecordErrorByComponent("service", "timeout")
			return zero, ErrTimeout
		}
		r := <-out
		return r.v, r.err
	}
}

// engineFor returns the learner's engine, hydrating it from the store on
// first use. A failed hydration is not cached.
func (s *Service) engineFor(ctx context.Context, userID string) (*engine.Engine, error) {
	s.mu.Lock()
	ent, ok := s.users[userID]
	if !ok {
		ent = &userEntry{}
		s.users[userID] = ent
	}
	s.mu.Unlock()

	ent.once.Do(func() {
		ent.eng, ent.err = s.hydrate(ctx, userID)
		s.mu.Lock()
		if ent.err != nil {
			if s.users[userID] == ent {
				delete(s.users, userID)
			}
		} else {
			s.engines[userID] = ent.eng
			metrics.UpdateActiveUsers(len(s.engines))
		}
		s.mu.Unlock()
	})
	return ent.eng, ent.err
}

// hydrate builds an engine and restores every stored checkpoint. Store
// failures abort; undecodable blobs are logged and the part starts fresh.
func (s *Service) hydrate(ctx context.Context, userID string) (*engine.Engine, error) {
	opts := append([]engine.Option{
		engine.WithLogger(s.logger.Named("engine")),
		engine.WithMetrics(s.engineMetrics),
	}, s.engineOpts...)
	eng := engine.New(userID, opts...)

	restore := func(kind engine.Kind, key string) ([]byte, error) {
		blob, err := s.load(ctx, kind, key)
		if err != nil {
			return nil, err
		}
		if kind == engine.KindCards && key == model.CardIndexKey(userID) {
			return blob, nil
		}
		if err := eng.Restore(kind, blob); err != nil {
			metrics.RecordCheckpointLoad(string(kind), "corrupt")
			s.logger.Warn(ctx, "discarding unreadable checkpoint",
				logger.String("key", key),
				logger.Error(err),
			)
		}
		return blob, nil
	}

	if _, err := restore(engine.KindConfidence, model.ConfidenceKey(userID)); err != nil {
		return nil, err
	}
	if _, err := restore(engine.KindTemporal, model.TemporalKey(userID)); err != nil {
		return nil, err
	}
	idx, err := restore(engine.KindCards, model.CardIndexKey(userID))
	if err != nil {
		return nil, err
	}
	keys, err := engine.DecodeCardIndex(idx)
	if err != nil {
		metrics.RecordCheckpointLoad(string(engine.KindCards), "corrupt")
		s.logger.Warn(ctx, "discarding unreadable card index",
			logger.String("userID", userID),
			logger.Error(err),
		)
	}
	for _, key := range keys {
		if _, err := restore(engine.KindCards, key); err != nil {
			return nil, err
		}
	}

	s.logger.Debug(ctx, "learner loaded",
		logger.String("userID", userID),
		logger.Int("cards", len(keys)),
	)
	return eng, nil
}

func (s *Service) load(ctx context.Context, kind engine.Kind, key string) ([]byte, error) {
	start := time.Now()
	blob, err := s.store.Load(ctx, key)
	metrics.RecordCheckpointLatency(string(kind), "load", float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordCheckpointLoad(string(kind), "error")
		metrics.RecordErrorByComponent("repository", "load")
		s.logger.Error(ctx, "checkpoint load failed",
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, err
	}
	if blob == nil {
		metrics.RecordCheckpointLoad(string(kind), "miss")
	} else {
		metrics.RecordCheckpointLoad(string(kind), "hit")
	}
	return blob, nil
}

// checkpoint saves the dirty entries of kind for every loaded learner.
// Entries that fail to save are flagged again for the next round.
func (s *Service) checkpoint(ctx context.Context, kind engine.Kind) error {
	s.mu.RLock()
	engines := make([]*engine.Engine, 0, len(s.engines))
	for _, eng := range s.engines {
		engines = append(engines, eng)
	}
	s.mu.RUnlock()

	var errs []error
	for _, eng := range engines {
		entries, err := eng.Checkpoint(kind)
		if err != nil {
			metrics.RecordCheckpointSave(string(kind), "error")
			errs = append(errs, fmt.Errorf("%s: %w", eng.UserID(), err))
			continue
		}

		failed := false
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key)
			start := time.Now()
			err := s.store.Save(ctx, e.Key, e.Value)
			metrics.RecordCheckpointLatency(string(kind), "save", float64(time.Since(start).Microseconds())/1000)
			if err != nil {
				failed = true
				metrics.RecordCheckpointSave(string(kind), "error")
				metrics.RecordErrorByComponent("repository", "save")
				errs = append(errs, err)
				continue
			}
			metrics.RecordCheckpointSave(string(kind), "ok")
		}
		if failed {
			// The whole batch is re-flagged so the card index is rewritten too.
			eng.MarkDirty(kind, keys...)
		}
	}
	return errors.Join(errs...)
}
