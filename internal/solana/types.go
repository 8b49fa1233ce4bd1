package solana

import (
	"errors"
	"fmt"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Commitment levels accepted by the RPC.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// ErrTransport marks failures to reach the endpoint or read a valid
// response from it (as opposed to an RPC-level error reply).
var ErrTransport = errors.New("rpc transport failure")

// Blockhash is the result of getLatestBlockhash.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SendOpts controls sendTransaction behavior.
type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *uint
}

// RPCError is a JSON-RPC 2.0 error reply.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Well-known JSON-RPC error codes returned by Solana validators.
const (
	CodeInvalidParams            = -32602
	CodeSendTxPreflightFailure   = -32002
	CodeNodeUnhealthy            = -32005
	CodeTransactionSignatureFail = -32003
)

// IsRPCError reports whether err is an RPC-level error reply and returns it.
func IsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}
