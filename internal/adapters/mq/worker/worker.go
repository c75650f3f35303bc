package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/cadence/internal/adapters/mq/queue"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Worker executes tasks from its queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown waits for the worker to finish.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker executes tasks sequentially.
type InMemoryWorker struct {
	queue Queue
	name  string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop. When the queue is closed, remaining tasks
// are drained before Run returns.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.process(ctx, t); err != nil {
				w.logger.Error(ctx, "task failed",
					logger.String("user", t.UserID),
					logger.String("kind", t.Kind),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker without draining and waits for it to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one task, converting a panic into an error.
func (w *InMemoryWorker) process(ctx context.Context, t queue.Task) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if t.Expired(start) {
		metrics.RecordWorkerTimeout()
		w.logger.Debug(ctx, "skipping expired task",
			logger.String("user", t.UserID),
			logger.String("kind", t.Kind),
		)
		return nil
	}
	if t.Run == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "panic")
			err = fmt.Errorf("task %s for %s panicked: %v", t.Kind, t.UserID, r)
		}
	}()
	t.Run(ctx)
	return nil
}

// Pool owns one queue and one worker per shard.
type Pool struct {
	queues  []*queue.InMemoryQueue
	workers []*InMemoryWorker

	queueCapacity int

	mu       sync.RWMutex
	started  bool
	stopped  bool
	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a pool with shards workers. Fewer than one shard means
// twice the number of CPUs.
func NewPool(shards int, opts ...PoolOption) *Pool {
	if shards < 1 {
		shards = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		queues:        make([]*queue.InMemoryQueue, shards),
		workers:       make([]*InMemoryWorker, shards),
		queueCapacity: 1024,
		shutdown:      make(chan struct{}),
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < shards; i++ {
		name := "worker-" + strconv.Itoa(i)
		p.queues[i] = queue.NewInMemoryQueue(
			queue.WithCapacity(p.queueCapacity),
			queue.WithName(name),
		)
		p.workers[i] = NewInMemoryWorker(p.queues[i], WithName(name), WithLogger(p.logger))
	}

	metrics.UpdateWorkerCount(shards)
	metrics.UpdateQueueCapacity(shards * p.queueCapacity)
	metrics.UpdateQueueSize(0)
	return p
}

// Shards returns the number of workers.
func (p *Pool) Shards() int { return len(p.workers) }

// ShardFor returns the worker index that owns userID.
func (p *Pool) ShardFor(userID string) int {
	return int(xxhash.Sum64String(userID) % uint64(len(p.workers)))
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// Submit enqueues t on the shard that owns t.UserID.
func (p *Pool) Submit(ctx context.Context, t queue.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return queue.ErrQueueClosed
	}
	return p.queues[p.ShardFor(t.UserID)].Enqueue(ctx, t)
}

// Len returns the number of tasks queued across shards.
func (p *Pool) Len(ctx context.Context) int {
	n := 0
	for _, q := range p.queues {
		n += q.Len(ctx)
	}
	return n
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(p.Len(ctx))
		}
	}
}

// Shutdown closes every queue, lets workers drain what was already
// accepted and waits for them up to the context deadline.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.shutdown)
	for _, q := range p.queues {
		if err := q.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.mu.Unlock()

	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
