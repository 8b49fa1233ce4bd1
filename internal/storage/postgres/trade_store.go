package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	attempt_id, address, symbol, source, discovery_signature, discovered_at,
	amount::text, success, transaction_id, error_kind, error,
	submitted_at, latency_ms
`

// Insert adds a trade result. Returns ErrDuplicateKey if attempt_id exists.
func (s *TradeStore) Insert(ctx context.Context, r *domain.TradeResult) error {
	if r == nil || r.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_results (
			attempt_id, address, symbol, source, discovery_signature, discovered_at,
			amount, success, transaction_id, error_kind, error,
			submitted_at, latency_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8, $9, $10, $11,
			$12, $13
		)
	`

	c := r.Candidate
	_, err := s.pool.Exec(ctx, query,
		r.AttemptID, c.Address, c.Symbol, string(c.Source), c.Signature, nullableTime(c.DiscoveredAt),
		r.Amount.String(), r.Success, r.TransactionID, string(r.ErrorKind), r.Error,
		r.SubmittedAt, r.Latency.Milliseconds(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade result: %w", err)
	}
	return nil
}

// GetByID retrieves a result by attempt ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, attemptID string) (*domain.TradeResult, error) {
	query := `SELECT ` + tradeColumns + ` FROM trade_results WHERE attempt_id = $1`

	r, err := scanTradeResult(s.pool.QueryRow(ctx, query, attemptID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade result by id: %w", err)
	}
	return r, nil
}

// GetByAddress retrieves all attempts against a token address, ordered by submitted_at ASC.
func (s *TradeStore) GetByAddress(ctx context.Context, address string) ([]*domain.TradeResult, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trade_results
		WHERE address = $1
		ORDER BY submitted_at ASC, attempt_id ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get trade results by address: %w", err)
	}
	defer rows.Close()

	return scanTradeResults(rows)
}

// Recent retrieves up to limit results, newest first.
func (s *TradeStore) Recent(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + tradeColumns + `
		FROM trade_results
		ORDER BY submitted_at DESC, attempt_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent trade results: %w", err)
	}
	defer rows.Close()

	return scanTradeResults(rows)
}

func scanTradeResult(row pgx.Row) (*domain.TradeResult, error) {
	var (
		r          domain.TradeResult
		source     string
		kind       string
		amount     string
		discovered *time.Time
		latencyMs  int64
	)

	err := row.Scan(
		&r.AttemptID, &r.Candidate.Address, &r.Candidate.Symbol, &source, &r.Candidate.Signature, &discovered,
		&amount, &r.Success, &r.TransactionID, &kind, &r.Error,
		&r.SubmittedAt, &latencyMs,
	)
	if err != nil {
		return nil, err
	}

	r.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	r.Candidate.Source = domain.Source(source)
	r.ErrorKind = domain.ErrorKind(kind)
	r.Latency = time.Duration(latencyMs) * time.Millisecond
	if discovered != nil {
		r.Candidate.DiscoveredAt = *discovered
	}
	return &r, nil
}

func scanTradeResults(rows pgx.Rows) ([]*domain.TradeResult, error) {
	var results []*domain.TradeResult
	for rows.Next() {
		r, err := scanTradeResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade results: %w", err)
	}
	return results, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
