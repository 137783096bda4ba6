package profile

import (
	"context"
	"sync"
)

// MemoryBaselineStore is an in-memory BaselineStore for tests and demo mode.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	baselines map[string]*UserBaseline
}

// Compile-time check.
var _ BaselineStore = (*MemoryBaselineStore)(nil)

// NewMemoryBaselineStore creates an empty in-memory store.
func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{
		baselines: make(map[string]*UserBaseline),
	}
}

func (s *MemoryBaselineStore) SaveBaselineBatch(_ context.Context, baselines []*UserBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range baselines {
		cp := *b
		s.baselines[b.UserID] = &cp
	}
	return nil
}

func (s *MemoryBaselineStore) GetAllBaselines(_ context.Context) ([]*UserBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*UserBaseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}
