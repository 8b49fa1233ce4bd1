package storage

import (
	"context"
	"time"

	"solana-sniper/internal/domain"
)

// TradeStore journals dispatch outcomes.
type TradeStore interface {
	// Insert adds a trade result. Returns ErrDuplicateKey if attempt_id exists.
	Insert(ctx context.Context, r *domain.TradeResult) error

	// GetByID retrieves a result by attempt ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, attemptID string) (*domain.TradeResult, error)

	// GetByAddress retrieves all attempts against a token address, ordered by submitted_at ASC.
	GetByAddress(ctx context.Context, address string) ([]*domain.TradeResult, error)

	// Recent retrieves up to limit results, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.TradeResult, error)
}

// EventLogStore archives event log entries beyond the in-memory retention window.
type EventLogStore interface {
	// Append adds an entry. Returns ErrDuplicateKey if seq exists.
	Append(ctx context.Context, e domain.LogEntry) error

	// Recent retrieves up to limit entries, oldest first.
	Recent(ctx context.Context, limit int) ([]domain.LogEntry, error)
}

// BalanceStore records balance history.
type BalanceStore interface {
	// Insert records a balance observation.
	Insert(ctx context.Context, p *domain.BalancePoint) error

	// GetByTimeRange retrieves points for an address within [start, end] (inclusive),
	// ordered by fetched_at ASC.
	GetByTimeRange(ctx context.Context, address string, start, end time.Time) ([]*domain.BalancePoint, error)
}

// SeenStore remembers which token mints were already surfaced.
type SeenStore interface {
	// MarkSeen records mint and reports whether it was new.
	MarkSeen(ctx context.Context, mint string) (fresh bool, err error)
}
