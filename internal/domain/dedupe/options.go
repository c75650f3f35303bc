// Package dedupe tracks attempt ids so that every attempt is applied to a
// learner's state at most once.
package dedupe

// Default deduper configuration constants.
const (
	defaultMaxSize = 50000
)

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*InMemoryDeduper)

// WithMaxSize sets the maximum number of ids to remember.
// If maxSize > 0 the oldest id is forgotten once the bound is reached.
// If maxSize <= 0 the deduper is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *InMemoryDeduper) {
		d.maxSize = maxSize
	}
}
