// Package history keeps the bounded rolling window of hourly usage
// observations that lag and rolling-window features are computed from.
package history

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// DefaultCapacity is the number of observations retained by the forecaster.
const DefaultCapacity = 300

// Store is a bounded, append-only sequence of usage values with FIFO eviction.
// The most recent value is last. It is safe for concurrent use, but callers
// that need a consistent view across several calls must serialize themselves.
type Store struct {
	mu       sync.RWMutex
	values   []float64
	capacity int
}

// New creates an empty store holding at most capacity values.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		values:   make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Record appends v, evicting the oldest values once capacity is exceeded.
func (s *Store) Record(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = append(s.values, v)
	if over := len(s.values) - s.capacity; over > 0 {
		n := copy(s.values, s.values[over:])
		s.values = s.values[:n]
	}
}

// Lag returns the k-th most recent value, counting the newest as 1.
// With fewer than k values it returns the oldest one, or 0 when empty.
func (s *Store) Lag(k int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.values)
	switch {
	case n == 0:
		return 0
	case k >= 1 && n >= k:
		return s.values[n-k]
	default:
		return s.values[0]
	}
}

// RollingMean returns the mean of the last min(w, Len()) values.
func (s *Store) RollingMean(w int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	win := s.window(w)
	if len(win) == 0 {
		return 0
	}
	return stat.Mean(win, nil)
}

// RollingStd returns the population standard deviation of the last
// min(w, Len()) values.
func (s *Store) RollingStd(w int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	win := s.window(w)
	if len(win) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(win, nil)
	return std
}

// Len returns the number of stored values.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Capacity returns the maximum number of retained values.
func (s *Store) Capacity() int {
	return s.capacity
}

// Values returns a copy of the stored values, oldest first.
func (s *Store) Values() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// window must be called with mu held.
func (s *Store) window(w int) []float64 {
	if w <= 0 {
		return nil
	}
	if w > len(s.values) {
		w = len(s.values)
	}
	return s.values[len(s.values)-w:]
}
