// Package timeline maintains the virtual playback timeline: per-chunk
// durations, cumulative start offsets and the total. Durations start as
// estimates and are upgraded to measured values as chunks are decoded,
// triggering a full recomputation so global positions stay consistent.
package timeline

import (
	"sync"
	"time"
)

type Timeline struct {
	mu        sync.RWMutex
	durations []time.Duration
	actual    []bool
	starts    []time.Duration
	total     time.Duration
}

// New builds a timeline from the initial per-chunk duration estimates.
func New(estimates []time.Duration) *Timeline {
	t := &Timeline{
		durations: append([]time.Duration(nil), estimates...),
		actual:    make([]bool, len(estimates)),
	}
	t.recompute()
	return t
}

func (t *Timeline) recompute() {
	t.starts = make([]time.Duration, len(t.durations))
	var cum time.Duration
	for i, d := range t.durations {
		t.starts[i] = cum
		cum += d
	}
	t.total = cum
}

// SetActual replaces the estimate for one chunk with its measured duration
// and shifts every later chunk's start accordingly.
func (t *Timeline) SetActual(index int, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.durations) {
		return
	}
	t.durations[index] = d
	t.actual[index] = true
	t.recompute()
}

// Len returns the chunk count.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.durations)
}

// Duration returns the current duration for one chunk.
func (t *Timeline) Duration(index int) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 0 || index >= len(t.durations) {
		return 0
	}
	return t.durations[index]
}

// Start returns the cumulative offset at which a chunk begins.
func (t *Timeline) Start(index int) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 0 || index >= len(t.starts) {
		return 0
	}
	return t.starts[index]
}

// Total returns the full timeline duration.
func (t *Timeline) Total() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// Global converts a chunk-local position to a global timeline position.
func (t *Timeline) Global(index int, offset time.Duration) time.Duration {
	return t.Start(index) + offset
}

// Locate maps a global position to the chunk containing it and the offset
// within that chunk. Positions are clamped to the timeline bounds; the end
// maps to the last rune of the last chunk.
func (t *Timeline) Locate(position time.Duration) (int, time.Duration) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.durations) == 0 {
		return 0, 0
	}
	if position <= 0 {
		return 0, 0
	}
	if position >= t.total {
		last := len(t.durations) - 1
		return last, t.durations[last]
	}
	for i := len(t.starts) - 1; i >= 0; i-- {
		if position >= t.starts[i] {
			return i, position - t.starts[i]
		}
	}
	return 0, position
}
