package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// EventLogStore is an in-memory implementation of storage.EventLogStore.
// Unlike eventlog.Log it has no retention cap.
type EventLogStore struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
	seqs    map[uint64]struct{}
}

// NewEventLogStore creates a new in-memory event log store.
func NewEventLogStore() *EventLogStore {
	return &EventLogStore{seqs: make(map[uint64]struct{})}
}

// Append adds an entry. Returns ErrDuplicateKey if seq exists.
func (s *EventLogStore) Append(_ context.Context, e domain.LogEntry) error {
	if e.Seq == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seqs[e.Seq]; exists {
		return storage.ErrDuplicateKey
	}
	s.seqs[e.Seq] = struct{}{}
	s.entries = append(s.entries, e)
	return nil
}

// Recent retrieves up to limit entries, oldest first.
func (s *EventLogStore) Recent(_ context.Context, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	sorted := append([]domain.LogEntry(nil), s.entries...)
	s.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	if len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted, nil
}

var _ storage.EventLogStore = (*EventLogStore)(nil)
