package gateway

import (
	"context"
	"errors"
	"fmt"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	solrpc "solana-sniper/internal/solana"
)

// Sentinel errors for gateway operations.
var (
	// ErrNetworkUnavailable is returned when the endpoint cannot be reached,
	// answers garbage, reports itself unhealthy or the call times out.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrUnknownIdentity is returned when the address has no on-chain record.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrSubmissionRejected is returned when the chain refuses a transaction.
	ErrSubmissionRejected = errors.New("submission rejected")
)

// Classify maps err to the engine's error taxonomy.
// Errors outside the taxonomy are reported as rejected submissions.
func Classify(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return domain.ErrorKindNone
	case errors.Is(err, credential.ErrInvalidCredentialFormat):
		return domain.ErrorKindInvalidCredentialFormat
	case errors.Is(err, ErrUnknownIdentity):
		return domain.ErrorKindUnknownIdentity
	case errors.Is(err, ErrSubmissionRejected):
		return domain.ErrorKindSubmissionRejected
	case errors.Is(err, ErrNetworkUnavailable),
		errors.Is(err, solrpc.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.ErrorKindNetworkUnavailable
	}

	if rpcErr, ok := solrpc.IsRPCError(err); ok && rpcErr.Code == solrpc.CodeNodeUnhealthy {
		return domain.ErrorKindNetworkUnavailable
	}
	return domain.ErrorKindSubmissionRejected
}

// normalize wraps a raw transport or RPC error with the matching sentinel,
// keeping the cause in the chain.
func normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch Classify(err) {
	case domain.ErrorKindNetworkUnavailable:
		sentinel = ErrNetworkUnavailable
	case domain.ErrorKindUnknownIdentity:
		sentinel = ErrUnknownIdentity
	default:
		sentinel = ErrSubmissionRejected
	}
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
