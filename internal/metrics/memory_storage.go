package metrics

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage keeps daily counters in process memory, pruning days beyond
// the retention window.
type MemoryStorage struct {
	mu        sync.Mutex
	days      map[string]map[string]int64
	retention int
}

// NewMemoryStorage creates in-memory storage keeping retentionDays days.
func NewMemoryStorage(retentionDays int) *MemoryStorage {
	if retentionDays < 1 {
		retentionDays = 1
	}
	return &MemoryStorage{
		days:      make(map[string]map[string]int64),
		retention: retentionDays,
	}
}

// Increment implements Storage.
func (s *MemoryStorage) Increment(_ context.Context, day string, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters, ok := s.days[day]
	if !ok {
		counters = make(map[string]int64)
		s.days[day] = counters
		s.prune()
	}
	for _, f := range fields {
		counters[f]++
	}
	return nil
}

// Load implements Storage.
func (s *MemoryStorage) Load(_ context.Context, day string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.days[day]))
	for k, v := range s.days[day] {
		out[k] = v
	}
	return out, nil
}

// prune drops the oldest days beyond retention. Day keys sort
// chronologically. Callers hold s.mu.
func (s *MemoryStorage) prune() {
	if len(s.days) <= s.retention {
		return
	}
	keys := make([]string, 0, len(s.days))
	for k := range s.days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-s.retention] {
		delete(s.days, k)
	}
}

// Close implements Storage.
func (s *MemoryStorage) Close() error {
	return nil
}
