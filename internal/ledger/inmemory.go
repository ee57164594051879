package ledger

import (
	"context"
	"slices"
	"sync"
)

type inMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and development runs without Postgres.
func NewInMemory() Store {
	return &inMemoryStore{runs: make(map[string]Run)}
}

func (s *inMemoryStore) SaveRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return ErrDuplicateRun
	}
	run.Accounts = slices.Clone(run.Accounts)
	s.runs[run.ID] = run
	return nil
}

func (s *inMemoryStore) Run(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	run.Accounts = slices.Clone(run.Accounts)
	return run, nil
}
