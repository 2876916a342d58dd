package jobqueue

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node deployments
// running with USE_MEMORY_QUEUE.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Add(_ context.Context, job Job, keepEarliest bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Key]; exists && keepEarliest {
		return nil
	}
	s.jobs[job.Key] = job
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.jobs {
		if strings.HasPrefix(key, prefix) {
			delete(s.jobs, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Claim(_ context.Context, now time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Job
	for key := range s.jobs {
		job := s.jobs[key]
		if job.RunAt.After(now) {
			continue
		}
		if best == nil || job.RunAt.Before(best.RunAt) {
			best = &job
		}
	}
	if best == nil {
		return nil, nil
	}
	claimed := *best
	delete(s.jobs, claimed.Key)
	return &claimed, nil
}

// Pending returns the number of scheduled jobs, for tests and admin introspection.
func (s *MemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// PendingKeys returns the scheduled keys with the given prefix.
func (s *MemoryStore) PendingKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.jobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
