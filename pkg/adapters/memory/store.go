package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Checkpoint
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Checkpoint),
	}
}

// Save persists a copy of the checkpoint.
func (s *Store) Save(ctx context.Context, runID string, cp *domain.Checkpoint) error {
	copied := cp.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = copied
	return nil
}

// Load returns a copy of the stored checkpoint so callers can't mutate the store by pointer.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return cp.Clone(), nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns stored run IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.data))
	for id := range s.data {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}
