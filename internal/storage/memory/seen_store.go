package memory

import (
	"context"
	"sync"

	"solana-sniper/internal/storage"
)

// SeenStore is an in-memory implementation of storage.SeenStore.
type SeenStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSeenStore creates a new in-memory seen set.
func NewSeenStore() *SeenStore {
	return &SeenStore{seen: make(map[string]struct{})}
}

// MarkSeen records mint and reports whether it was new.
func (s *SeenStore) MarkSeen(_ context.Context, mint string) (bool, error) {
	if mint == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[mint]; exists {
		return false, nil
	}
	s.seen[mint] = struct{}{}
	return true, nil
}

// Len returns the number of remembered mints.
func (s *SeenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

var _ storage.SeenStore = (*SeenStore)(nil)
