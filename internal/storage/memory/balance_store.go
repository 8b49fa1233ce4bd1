package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// BalanceStore is an in-memory implementation of storage.BalanceStore.
type BalanceStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.BalancePoint // keyed by address
}

// NewBalanceStore creates a new in-memory balance store.
func NewBalanceStore() *BalanceStore {
	return &BalanceStore{
		data: make(map[string][]*domain.BalancePoint),
	}
}

// Insert records a balance observation.
func (s *BalanceStore) Insert(_ context.Context, p *domain.BalancePoint) error {
	if p == nil || p.Address == "" || p.FetchedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *p
	s.data[p.Address] = append(s.data[p.Address], &stored)
	return nil
}

// GetByTimeRange retrieves points for an address within [start, end] (inclusive).
func (s *BalanceStore) GetByTimeRange(_ context.Context, address string, start, end time.Time) ([]*domain.BalancePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalancePoint
	for _, p := range s.data[address] {
		if p.FetchedAt.Before(start) || p.FetchedAt.After(end) {
			continue
		}
		out := *p
		result = append(result, &out)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FetchedAt.Before(result[j].FetchedAt)
	})
	return result, nil
}

var _ storage.BalanceStore = (*BalanceStore)(nil)
