// Package gateway adapts the chain to the two operations the engine needs:
// reading the operator balance and submitting a purchase.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
)

// Gateway is the chain adapter used by the balance cache and dispatcher.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// Balance returns the identity's holdings in SOL.
	// Returns ErrUnknownIdentity when the address has no on-chain record and
	// ErrNetworkUnavailable on transport failure or timeout.
	Balance(ctx context.Context, id *credential.Identity) (decimal.Decimal, error)

	// SubmitTrade submits a bounded purchase of candidate and returns the
	// transaction id. Returns ErrSubmissionRejected or ErrNetworkUnavailable.
	SubmitTrade(ctx context.Context, id *credential.Identity, candidate domain.Candidate, amount decimal.Decimal) (string, error)
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}

// SOLToLamports converts SOL to lamports, truncating sub-lamport precision.
func SOLToLamports(sol decimal.Decimal) uint64 {
	if !sol.IsPositive() {
		return 0
	}
	return uint64(sol.Shift(9).IntPart())
}
