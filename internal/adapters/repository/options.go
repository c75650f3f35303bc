// Package repository implements the opaque key-value checkpoint store used
// to persist learner state, with memory, SQLite, Redis and PostgreSQL
// backends.
package repository

import "time"

// Default store configuration constants.
const (
	defaultTable     = "checkpoints"
	defaultKeyPrefix = "cadence:"
)

type options struct {
	table     string
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

func newOptions(opts []Option) options {
	o := options{table: defaultTable, keyPrefix: defaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithTable sets the table used by the SQL backends.
func WithTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.table = name
		}
	}
}

// WithKeyPrefix sets the key namespace used by the Redis backend.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithTTL expires Redis checkpoints after d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.ttl = d
		}
	}
}

// WithClock overrides the timestamp source of the SQL backends.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
