// Package window provides the bounded sliding windows and small numeric
// helpers shared by the behavioral detectors.
package window

// Ring is a fixed-capacity FIFO window. Pushing into a full ring evicts the
// oldest element. The zero value is not usable; call New.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// New returns a ring holding at most capacity elements. Non-positive
// capacities are raised to 1.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of elements held.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element, oldest first. It panics when out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("window: index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Newest returns the most recent element and whether one exists.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.At(r.size - 1), true
}

// Items returns a copy of all elements, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Last returns a copy of the newest n elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = r.At(r.size - n + i)
	}
	return out
}

// Clear drops every element and keeps the capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.size = 0, 0
}
