// Package worker runs learner tasks on a fixed set of sharded workers. Each
// user id hashes to exactly one worker, so a learner's tasks never run
// concurrently and always run in submission order.
package worker

import (
	"github.com/okian/cadence/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithQueueCapacity sets the capacity of each shard queue.
func WithQueueCapacity(capacity int) PoolOption {
	return func(p *Pool) {
		if capacity > 0 {
			p.queueCapacity = capacity
		}
	}
}

// WithPoolLogger sets the pool logger; workers derive named loggers from it.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
