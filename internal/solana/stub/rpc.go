// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-sniper/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Err* fields, when set, are returned by the matching call.
type RPCClient struct {
	mu sync.Mutex

	Balances     map[string]uint64
	Transactions map[string]*solana.Transaction
	Blockhash    string

	BalanceErr   error
	BlockhashErr error
	SendErr      error

	// Sent records every encoded transaction passed to SendTransaction.
	Sent []string
	// BalanceCalls counts GetBalance invocations.
	BalanceCalls int

	nextSig int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:     make(map[string]uint64),
		Transactions: make(map[string]*solana.Transaction),
		Blockhash:    "11111111111111111111111111111111",
	}
}

// GetBalance returns the configured balance, zero for unknown accounts.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BalanceCalls++
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.Balances[pubkey], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BlockhashErr != nil {
		return nil, c.BlockhashErr
	}
	return &solana.Blockhash{Blockhash: c.Blockhash, LastValidBlockHeight: 1}, nil
}

// SendTransaction records the payload and returns a sequential signature.
func (c *RPCClient) SendTransaction(_ context.Context, encoded string, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, encoded)
	c.nextSig++
	return fmt.Sprintf("stubsig%d", c.nextSig), nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetBalance sets the lamport balance for pubkey.
func (c *RPCClient) SetBalance(pubkey string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = lamports
}

// SentCount returns the number of submitted transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// BalanceCallCount returns the number of GetBalance calls.
func (c *RPCClient) BalanceCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BalanceCalls
}

// SetBalanceErr sets the error returned by GetBalance.
func (c *RPCClient) SetBalanceErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BalanceErr = err
}
