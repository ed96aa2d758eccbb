// Package monitor runs the supervising detect-respond-alert loop and
// serves read-only dashboard snapshots.
package monitor

import "sync"

// Window keeps a fixed-capacity ring of samples per named metric.
// After capacity is reached, recording evicts the oldest sample. Safe
// for one writer and many readers.
type Window struct {
	capacity int

	mu    sync.RWMutex
	rings map[string]*ring
}

type ring struct {
	buf   []float64
	start int
	size  int
}

// NewWindow creates a window keeping at most capacity samples per
// metric.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Record appends a sample, evicting the oldest when full.
func (w *Window) Record(metric string, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.rings[metric]
	if !ok {
		r = &ring{buf: make([]float64, w.capacity)}
		w.rings[metric] = r
	}

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = value
		r.size++
		return
	}
	r.buf[r.start] = value
	r.start = (r.start + 1) % len(r.buf)
}

// Samples returns the metric's samples in insertion order, oldest
// first.
func (w *Window) Samples(metric string) []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	r, ok := w.rings[metric]
	if !ok {
		return nil
	}
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Average returns the mean of the metric's samples, or fallback when
// none are recorded.
func (w *Window) Average(metric string, fallback float64) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	r, ok := w.rings[metric]
	if !ok || r.size == 0 {
		return fallback
	}
	var sum float64
	for i := 0; i < r.size; i++ {
		sum += r.buf[(r.start+i)%len(r.buf)]
	}
	return sum / float64(r.size)
}
