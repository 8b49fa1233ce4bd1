package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// BalanceStore implements storage.BalanceStore using ClickHouse.
type BalanceStore struct {
	conn *Conn
}

// NewBalanceStore creates a new BalanceStore.
func NewBalanceStore(conn *Conn) *BalanceStore {
	return &BalanceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BalanceStore = (*BalanceStore)(nil)

// Insert records a balance observation.
func (s *BalanceStore) Insert(ctx context.Context, p *domain.BalancePoint) error {
	if p == nil || p.Address == "" || p.FetchedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO balance_history (address, fetched_at, value)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(p.Address, p.FetchedAt.UTC(), p.Value); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves points for an address within [start, end] (inclusive).
func (s *BalanceStore) GetByTimeRange(ctx context.Context, address string, start, end time.Time) ([]*domain.BalancePoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT address, fetched_at, value
		FROM balance_history
		WHERE address = ? AND fetched_at >= ? AND fetched_at <= ?
		ORDER BY fetched_at ASC
	`, address, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query balance history: %w", err)
	}
	defer rows.Close()

	var points []*domain.BalancePoint
	for rows.Next() {
		var (
			p     domain.BalancePoint
			value decimal.Decimal
		)
		if err := rows.Scan(&p.Address, &p.FetchedAt, &value); err != nil {
			return nil, fmt.Errorf("scan balance point: %w", err)
		}
		p.Value = value
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance history: %w", err)
	}
	return points, nil
}
