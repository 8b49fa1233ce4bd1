package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	solrpc "solana-sniper/internal/solana"
)

// DefaultCallTimeout bounds every chain call made by the gateway.
const DefaultCallTimeout = 30 * time.Second

// RPCGatewayOptions configures RPCGateway.
type RPCGatewayOptions struct {
	Client        solrpc.RPCClient
	Builder       PurchaseBuilder // defaults to TransferBuilder{}
	CallTimeout   time.Duration   // defaults to DefaultCallTimeout
	SkipPreflight bool
	Logger        zerolog.Logger
}

// RPCGateway submits real transactions through a JSON-RPC endpoint.
type RPCGateway struct {
	client        solrpc.RPCClient
	builder       PurchaseBuilder
	timeout       time.Duration
	skipPreflight bool
	log           zerolog.Logger
}

var _ Gateway = (*RPCGateway)(nil)

// NewRPCGateway creates a gateway over an RPC client.
func NewRPCGateway(opts RPCGatewayOptions) *RPCGateway {
	if opts.Builder == nil {
		opts.Builder = TransferBuilder{}
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &RPCGateway{
		client:        opts.Client,
		builder:       opts.Builder,
		timeout:       opts.CallTimeout,
		skipPreflight: opts.SkipPreflight,
		log:           opts.Logger.With().Str("component", "gateway").Logger(),
	}
}

// Balance implements Gateway.
func (g *RPCGateway) Balance(ctx context.Context, id *credential.Identity) (decimal.Decimal, error) {
	if id == nil {
		return decimal.Zero, ErrUnknownIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	lamports, err := g.client.GetBalance(ctx, id.Address())
	if err != nil {
		if rpcErr, ok := solrpc.IsRPCError(err); ok && rpcErr.Code == solrpc.CodeInvalidParams {
			return decimal.Zero, fmt.Errorf("get balance: %w: %w", ErrUnknownIdentity, err)
		}
		return decimal.Zero, normalize("get balance", err)
	}
	return LamportsToSOL(lamports), nil
}

// SubmitTrade implements Gateway.
func (g *RPCGateway) SubmitTrade(ctx context.Context, id *credential.Identity, candidate domain.Candidate, amount decimal.Decimal) (string, error) {
	if id == nil {
		return "", ErrUnknownIdentity
	}
	lamports := SOLToLamports(amount)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	instructions, err := g.builder.Build(id.PublicKey(), candidate, lamports)
	if err != nil {
		return "", normalize("build", err)
	}

	bh, err := g.client.GetLatestBlockhash(ctx)
	if err != nil {
		return "", normalize("latest blockhash", err)
	}
	hash, err := solana.HashFromBase58(bh.Blockhash)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w: %v", ErrNetworkUnavailable, err)
	}

	tx, err := solana.NewTransaction(instructions, hash, solana.TransactionPayer(id.PublicKey()))
	if err != nil {
		return "", fmt.Errorf("new transaction: %w: %v", ErrSubmissionRejected, err)
	}
	if err := id.SignTransaction(tx); err != nil {
		return "", fmt.Errorf("sign: %w: %v", ErrSubmissionRejected, err)
	}

	encoded, err := tx.ToBase64()
	if err != nil {
		return "", fmt.Errorf("encode: %w: %v", ErrSubmissionRejected, err)
	}

	sig, err := g.client.SendTransaction(ctx, encoded, &solrpc.SendOpts{
		SkipPreflight:       g.skipPreflight,
		PreflightCommitment: solrpc.CommitmentProcessed,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.log.Warn().Str("mint", candidate.Address).Dur("timeout", g.timeout).Msg("submission timed out")
		}
		return "", normalize("send transaction", err)
	}

	g.log.Debug().Str("mint", candidate.Address).Str("signature", sig).Uint64("lamports", lamports).Msg("transaction sent")
	return sig, nil
}
