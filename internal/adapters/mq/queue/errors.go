package queue

import "errors"

// Sentinel errors returned by Submit-style callers.
var (
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue closed")
)
