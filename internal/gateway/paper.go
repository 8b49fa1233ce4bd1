package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
)

// DefaultFillDelay is how long a paper trade takes to "confirm".
const DefaultFillDelay = 1500 * time.Millisecond

// BalanceReader reads the operator balance.
type BalanceReader interface {
	Balance(ctx context.Context, id *credential.Identity) (decimal.Decimal, error)
}

// PaperGatewayOptions configures PaperGateway.
type PaperGatewayOptions struct {
	// Balances serves Balance calls; nil reports a zero balance.
	Balances  BalanceReader
	FillDelay time.Duration // defaults to DefaultFillDelay; negative disables the delay
	Logger    zerolog.Logger
}

// PaperGateway simulates fills without touching the chain.
// Balances are still read from Balances so the operator sees real funds.
type PaperGateway struct {
	balances BalanceReader
	delay    time.Duration
	log      zerolog.Logger
}

var _ Gateway = (*PaperGateway)(nil)

// NewPaperGateway creates a paper-trading gateway.
func NewPaperGateway(opts PaperGatewayOptions) *PaperGateway {
	if opts.FillDelay == 0 {
		opts.FillDelay = DefaultFillDelay
	}
	if opts.FillDelay < 0 {
		opts.FillDelay = 0
	}
	return &PaperGateway{
		balances: opts.Balances,
		delay:    opts.FillDelay,
		log:      opts.Logger.With().Str("component", "paper_gateway").Logger(),
	}
}

// Balance implements Gateway.
func (g *PaperGateway) Balance(ctx context.Context, id *credential.Identity) (decimal.Decimal, error) {
	if id == nil {
		return decimal.Zero, ErrUnknownIdentity
	}
	if g.balances == nil {
		return decimal.Zero, nil
	}
	return g.balances.Balance(ctx, id)
}

// SubmitTrade implements Gateway. It waits for the fill delay and returns a
// random signature-shaped transaction id.
func (g *PaperGateway) SubmitTrade(ctx context.Context, id *credential.Identity, candidate domain.Candidate, amount decimal.Decimal) (string, error) {
	if id == nil {
		return "", ErrUnknownIdentity
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: non-positive amount %s", ErrSubmissionRejected, amount)
	}

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("paper fill: %w: %w", ErrNetworkUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	var sig [64]byte
	if _, err := rand.Read(sig[:]); err != nil {
		return "", fmt.Errorf("paper fill: %w", err)
	}
	txID := base58.Encode(sig[:])

	g.log.Debug().Str("mint", candidate.Address).Str("amount", amount.String()).Str("signature", txID).Msg("paper fill")
	return txID, nil
}
