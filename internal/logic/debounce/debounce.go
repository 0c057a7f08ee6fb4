// Package debounce stabilizes noisy signals sampled once per polling cycle.
package debounce

import "time"

// Filter holds the debounce state of one monitored signal. The stable value
// only follows the raw signal once the raw value has held, without any
// further flip, for more than the window.
type Filter[T comparable] struct {
	window     time.Duration
	stable     T
	raw        T
	lastChange time.Duration
	lastUpdate time.Duration
	sampled    bool
}

// New returns a filter that starts stable at initial.
func New[T comparable](initial T, window time.Duration) *Filter[T] {
	return &Filter[T]{
		window: window,
		stable: initial,
		raw:    initial,
	}
}

// Update feeds one raw sample taken at now and returns the stable value and
// whether it changed on this call. A call at the same instant as the
// previous one is ignored.
func (f *Filter[T]) Update(raw T, now time.Duration) (T, bool) {
	if f.sampled && now == f.lastUpdate {
		return f.stable, false
	}
	f.sampled = true
	f.lastUpdate = now

	if raw != f.raw {
		f.raw = raw
		f.lastChange = now
	}
	if f.raw != f.stable && now-f.lastChange > f.window {
		f.stable = f.raw
		return f.stable, true
	}
	return f.stable, false
}

// Stable returns the current stable value.
func (f *Filter[T]) Stable() T {
	return f.stable
}

// LastChange returns the time of the last raw flip.
func (f *Filter[T]) LastChange() time.Duration {
	return f.lastChange
}

// Reset forces the stable value, e.g. after a hardware re-read.
func (f *Filter[T]) Reset(value T, now time.Duration) {
	f.stable = value
	f.raw = value
	f.lastChange = now
	f.lastUpdate = now
	f.sampled = true
}

// Edge tracks the previous stable value of a filter to report transitions.
type Edge[T comparable] struct {
	*Filter[T]
}

// NewEdge wraps a new filter for edge detection.
func NewEdge[T comparable](initial T, window time.Duration) Edge[T] {
	return Edge[T]{Filter: New(initial, window)}
}

// Transition feeds a sample and returns the (from, to) pair when the stable
// value changed.
func (e Edge[T]) Transition(raw T, now time.Duration) (from, to T, changed bool) {
	from = e.Stable()
	to, changed = e.Update(raw, now)
	return from, to, changed
}
