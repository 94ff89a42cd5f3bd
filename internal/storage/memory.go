package storage

import (
	"context"
	"sync"
)

// InMemoryStore is a thread-safe store used when a database is not configured.
// Records live for the lifetime of the process.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string]Restoration
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[string]Restoration)}
}

// Put stores a finished restoration. Ids are write-once.
func (s *InMemoryStore) Put(_ context.Context, rec Restoration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[rec.ID]; exists {
		return ErrDuplicateID
	}
	s.results[rec.ID] = rec
	return nil
}

// Get returns a restoration by id.
func (s *InMemoryStore) Get(_ context.Context, id string) (Restoration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.results[id]
	return rec, ok, nil
}

// Len reports how many restorations are held.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Close satisfies the ResultStore interface.
func (s *InMemoryStore) Close() {}
