package postgres

import (
	"context"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// EventLogStore implements storage.EventLogStore using PostgreSQL.
type EventLogStore struct {
	pool *Pool
}

// NewEventLogStore creates a new EventLogStore.
func NewEventLogStore(pool *Pool) *EventLogStore {
	return &EventLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventLogStore = (*EventLogStore)(nil)

// Append adds an entry. Returns ErrDuplicateKey if seq exists.
func (s *EventLogStore) Append(ctx context.Context, e domain.LogEntry) error {
	if e.Seq == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO event_log (seq, logged_at, level, message)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.pool.Exec(ctx, query, int64(e.Seq), e.Timestamp, string(e.Level), e.Message)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event log entry: %w", err)
	}
	return nil
}

// Recent retrieves up to limit entries, oldest first.
func (s *EventLogStore) Recent(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT seq, logged_at, level, message FROM (
			SELECT seq, logged_at, level, message
			FROM event_log
			ORDER BY seq DESC
			LIMIT $1
		) recent
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent event log entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			e     domain.LogEntry
			seq   int64
			level string
		)
		if err := rows.Scan(&seq, &e.Timestamp, &level, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event log entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.Level = domain.LogLevel(level)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event log entries: %w", err)
	}
	return entries, nil
}
