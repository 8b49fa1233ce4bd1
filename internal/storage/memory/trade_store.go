// Package memory provides in-process implementations of the storage interfaces.
package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeResult // keyed by attempt_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.TradeResult),
	}
}

// Insert adds a trade result. Returns ErrDuplicateKey if attempt_id exists.
func (s *TradeStore) Insert(_ context.Context, r *domain.TradeResult) error {
	if r == nil || r.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.AttemptID]; exists {
		return storage.ErrDuplicateKey
	}

	stored := *r
	s.data[r.AttemptID] = &stored
	return nil
}

// GetByID retrieves a result by attempt ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, attemptID string) (*domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[attemptID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	out := *r
	return &out, nil
}

// GetByAddress retrieves all attempts against a token address, ordered by submitted_at ASC.
func (s *TradeStore) GetByAddress(_ context.Context, address string) ([]*domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeResult
	for _, r := range s.data {
		if r.Candidate.Address == address {
			out := *r
			result = append(result, &out)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.Before(result[j].SubmittedAt)
	})
	return result, nil
}

// Recent retrieves up to limit results, newest first.
func (s *TradeStore) Recent(_ context.Context, limit int) ([]*domain.TradeResult, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	result := make([]*domain.TradeResult, 0, len(s.data))
	for _, r := range s.data {
		out := *r
		result = append(result, &out)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
