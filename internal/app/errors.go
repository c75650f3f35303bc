package service

import "errors"

var (
	// ErrNotStarted is returned when a call arrives before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned once Stop has begun.
	ErrStopped = errors.New("service stopped")
	// ErrQueueFull is returned when the learner's worker queue is at capacity.
	ErrQueueFull = errors.New("worker queue full")
	// ErrTimeout is returned when a call was not picked up before its deadline.
	// The work is guaranteed not to run.
	ErrTimeout = errors.New("timed out waiting for worker")
	// ErrDuplicate is returned for an attempt id that was already accepted.
	ErrDuplicate = errors.New("duplicate attempt")
	// ErrInvalidInput is returned for requests without a user id.
	ErrInvalidInput = errors.New("invalid input")
	// errTaskPanicked is returned when the worker recovered a panic.
	errTaskPanicked = errors.New("task panicked")
)
