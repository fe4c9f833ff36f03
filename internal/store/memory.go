package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/station-observations/internal/observation"
)

var (
	// ErrNotFound is returned when no data is available for a given series.
	ErrNotFound = errors.New("no observations collected for series")
)

// MemoryStore is a concurrency-safe in-memory record of collected series.
type MemoryStore struct {
	mu sync.RWMutex

	// key: series key, value: rows collected so far, oldest first
	data map[string]*observation.Table

	// retention configuration
	maxRows int           // max number of rows per series
	maxAge  time.Duration // optional max age for rows

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxRows is <= 0, it is treated as unlimited.
func NewMemoryStore(maxRows int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]*observation.Table),
		maxRows: maxRows,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Append adds the rows of t that are newer than anything already stored for
// key, enforces retention and returns the number of rows added.
func (s *MemoryStore) Append(key observation.SeriesKey, t *observation.Table) int {
	if t.Len() == 0 {
		return 0
	}
	k := key.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[k]
	if ok && history.Len() > 0 {
		times := history.Times()
		last := times[len(times)-1]
		newTimes := t.Times()
		t = t.Filter(func(i int) bool { return newTimes[i].After(last) })
	}
	added := t.Len()
	if added == 0 {
		return 0
	}

	history = observation.Concat(history, t)

	// Enforce retention by count.
	if s.maxRows > 0 && history.Len() > s.maxRows {
		over := history.Len() - s.maxRows
		history = history.Filter(func(i int) bool { return i >= over })
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		times := history.Times()
		history = history.Filter(func(i int) bool { return !times[i].Before(cutoff) })
	}

	s.data[k] = history
	return added
}

// Latest returns the most recent row for a series.
func (s *MemoryStore) Latest(key observation.SeriesKey) (observation.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key.Key()]
	if !ok || history.Len() == 0 {
		return observation.Row{}, ErrNotFound
	}
	return history.Row(history.Len() - 1), nil
}

// Range returns all rows for a series between from and to (inclusive).
func (s *MemoryStore) Range(key observation.SeriesKey, from, to time.Time) (*observation.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key.Key()]
	if !ok || history.Len() == 0 {
		return nil, ErrNotFound
	}

	result := history.Between(from, to)
	if result.Len() == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
