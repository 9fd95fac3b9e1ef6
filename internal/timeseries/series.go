package timeseries

import (
	"sync"
	"time"
)

// Series is a bounded ring buffer of rows ordered by insertion time. The ring
// grows on demand up to its capacity and then overwrites the oldest row.
type Series[T Timestamped] struct {
	mu     sync.RWMutex
	health *HealthMetrics
	// window is the retention window. Overwriting a row younger than this
	// relative to the incoming row counts as an early eviction.
	window time.Duration

	ring     []T
	capacity int
	head     int
	full     bool
}

// NewSeries creates a new Series holding at most capacity rows
func NewSeries[T Timestamped](capacity int) *Series[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Series[T]{capacity: capacity}
}

// NewSeriesWithHealth creates a new Series with health metrics tracking
func NewSeriesWithHealth[T Timestamped](capacity int, health *HealthMetrics) *Series[T] {
	s := NewSeries[T](capacity)
	s.health = health
	return s
}

// Add appends rows, overwriting the oldest once the ring is full
func (s *Series[T]) Add(rows ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if s.health != nil {
			// Overwriting a full ring does not grow it, so only check the limit while filling
			if !s.full && !s.health.CheckPointsLimit(s.size()) {
				s.health.RecordDroppedPoint()
				continue
			}
			s.health.RecordPointAdded()
		}

		if !s.full {
			s.ring = append(s.ring, r)
			s.head = len(s.ring) % s.capacity
			s.full = len(s.ring) == s.capacity
			continue
		}

		if s.health != nil && s.window > 0 && r.Time().Sub(s.ring[s.head].Time()) < s.window {
			s.health.RecordEvictedPoint()
		}
		s.ring[s.head] = r
		s.head = (s.head + 1) % s.capacity
	}
}

// Since returns every row at or after since, oldest first
func (s *Series[T]) Since(since time.Time) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.size()
	if size == 0 {
		return nil
	}

	// For a full buffer the oldest row is at head
	start := 0
	if s.full {
		start = s.head
	}

	result := make([]T, 0, size)
	for i := 0; i < size; i++ {
		r := s.ring[(start+i)%size]
		if r.Time().Before(since) {
			continue
		}
		result = append(result, r)
	}
	return result
}

// Len returns the number of rows held
func (s *Series[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size()
}

// Prune drops rows older than cutoff, compacting the ring
func (s *Series[T]) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.size()
	if size == 0 {
		return 0
	}

	start := 0
	if s.full {
		start = s.head
	}

	kept := make([]T, 0, size)
	for i := 0; i < size; i++ {
		r := s.ring[(start+i)%size]
		if !r.Time().Before(cutoff) {
			kept = append(kept, r)
		}
	}

	pruned := size - len(kept)
	if pruned == 0 {
		return 0
	}

	s.ring = kept
	s.head = len(kept) % s.capacity
	s.full = len(kept) == s.capacity
	return pruned
}

func (s *Series[T]) size() int {
	return len(s.ring)
}
