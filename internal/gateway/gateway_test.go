package gateway

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	solrpc "solana-sniper/internal/solana"
	"solana-sniper/internal/solana/stub"
)

func testIdentity(t *testing.T) *credential.Identity {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 7)
	}
	id, err := credential.Resolve(base58.Encode(ed25519.NewKeyFromSeed(seed)))
	require.NoError(t, err)
	return id
}

func candidateAddress() string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(200 - i)
	}
	return base58.Encode(raw)
}

func TestLamportConversion(t *testing.T) {
	assert.True(t, LamportsToSOL(1_500_000_000).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, LamportsToSOL(0).IsZero())
	assert.Equal(t, uint64(10_000_000), SOLToLamports(decimal.RequireFromString("0.01")))
	assert.Equal(t, uint64(1), SOLToLamports(decimal.RequireFromString("0.0000000019")))
	assert.Equal(t, uint64(0), SOLToLamports(decimal.RequireFromString("-1")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"nil", nil, domain.ErrorKindNone},
		{"credential", fmt.Errorf("start: %w", credential.ErrInvalidCredentialFormat), domain.ErrorKindInvalidCredentialFormat},
		{"unknown identity", ErrUnknownIdentity, domain.ErrorKindUnknownIdentity},
		{"rejected", ErrSubmissionRejected, domain.ErrorKindSubmissionRejected},
		{"network", ErrNetworkUnavailable, domain.ErrorKindNetworkUnavailable},
		{"transport", fmt.Errorf("%w: dial", solrpc.ErrTransport), domain.ErrorKindNetworkUnavailable},
		{"deadline", context.DeadlineExceeded, domain.ErrorKindNetworkUnavailable},
		{"unhealthy node", &solrpc.RPCError{Code: solrpc.CodeNodeUnhealthy, Message: "Node is behind"}, domain.ErrorKindNetworkUnavailable},
		{"preflight", &solrpc.RPCError{Code: solrpc.CodeSendTxPreflightFailure, Message: "simulation failed"}, domain.ErrorKindSubmissionRejected},
		{"other", errors.New("boom"), domain.ErrorKindSubmissionRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRPCGateway_Balance(t *testing.T) {
	id := testIdentity(t)
	client := stub.NewRPCClient()
	client.SetBalance(id.Address(), 2_250_000_000)

	gw := NewRPCGateway(RPCGatewayOptions{Client: client})

	bal, err := gw.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "2.25", bal.String())
}

func TestRPCGateway_BalanceErrors(t *testing.T) {
	id := testIdentity(t)

	t.Run("transport", func(t *testing.T) {
		client := stub.NewRPCClient()
		client.SetBalanceErr(fmt.Errorf("%w: connection refused", solrpc.ErrTransport))
		gw := NewRPCGateway(RPCGatewayOptions{Client: client})

		_, err := gw.Balance(context.Background(), id)
		assert.ErrorIs(t, err, ErrNetworkUnavailable)
		assert.ErrorIs(t, err, solrpc.ErrTransport)
	})

	t.Run("invalid params", func(t *testing.T) {
		client := stub.NewRPCClient()
		client.SetBalanceErr(&solrpc.RPCError{Code: solrpc.CodeInvalidParams, Message: "Invalid param"})
		gw := NewRPCGateway(RPCGatewayOptions{Client: client})

		bal, err := gw.Balance(context.Background(), id)
		assert.ErrorIs(t, err, ErrUnknownIdentity)
		assert.True(t, bal.IsZero())
	})

	t.Run("nil identity", func(t *testing.T) {
		gw := NewRPCGateway(RPCGatewayOptions{Client: stub.NewRPCClient()})
		_, err := gw.Balance(context.Background(), nil)
		assert.ErrorIs(t, err, ErrUnknownIdentity)
	})
}

func TestRPCGateway_SubmitTrade(t *testing.T) {
	id := testIdentity(t)
	client := stub.NewRPCClient()
	gw := NewRPCGateway(RPCGatewayOptions{Client: client})

	cand := domain.Candidate{Address: candidateAddress(), Symbol: "PEPE"}
	sig, err := gw.SubmitTrade(context.Background(), id, cand, decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, "stubsig1", sig)
	require.Equal(t, 1, client.SentCount())

	raw, err := base64.StdEncoding.DecodeString(client.Sent[0])
	require.NoError(t, err)

	// Legacy wire format: compact-u16 signature count, signatures, message.
	require.Greater(t, len(raw), 65)
	assert.Equal(t, byte(1), raw[0])
	signature := raw[1:65]
	message := raw[65:]
	assert.True(t, ed25519.Verify(id.PublicKey().Bytes(), message, signature))

	// System transfer data is the u32 instruction index 2 followed by u64 lamports.
	transferData := make([]byte, 12)
	binary.LittleEndian.PutUint32(transferData, 2)
	binary.LittleEndian.PutUint64(transferData[4:], 10_000_000)
	assert.Contains(t, string(message), string(transferData))

	dest, err := solana.PublicKeyFromBase58(cand.Address)
	require.NoError(t, err)
	assert.Contains(t, string(message), string(dest.Bytes()))
}

func TestRPCGateway_SubmitTradeDestination(t *testing.T) {
	id := testIdentity(t)
	client := stub.NewRPCClient()
	dest := solana.NewWallet().PublicKey()
	gw := NewRPCGateway(RPCGatewayOptions{Client: client, Builder: TransferBuilder{Destination: dest}})

	// Candidate address is not a public key, the fixed destination is used.
	_, err := gw.SubmitTrade(context.Background(), id, domain.Candidate{Address: "Tok1"}, decimal.RequireFromString("0.5"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(client.Sent[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), string(dest.Bytes()))
}

func TestRPCGateway_SubmitTradeRejected(t *testing.T) {
	id := testIdentity(t)
	cand := domain.Candidate{Address: candidateAddress()}

	t.Run("preflight failure", func(t *testing.T) {
		client := stub.NewRPCClient()
		client.SendErr = &solrpc.RPCError{Code: solrpc.CodeSendTxPreflightFailure, Message: "insufficient funds"}
		gw := NewRPCGateway(RPCGatewayOptions{Client: client})

		_, err := gw.SubmitTrade(context.Background(), id, cand, decimal.RequireFromString("0.01"))
		assert.ErrorIs(t, err, ErrSubmissionRejected)
		assert.Equal(t, domain.ErrorKindSubmissionRejected, Classify(err))
		_, isRPC := solrpc.IsRPCError(err)
		assert.True(t, isRPC)
	})

	t.Run("invalid candidate address", func(t *testing.T) {
		client := stub.NewRPCClient()
		gw := NewRPCGateway(RPCGatewayOptions{Client: client})

		_, err := gw.SubmitTrade(context.Background(), id, domain.Candidate{Address: "Tok1"}, decimal.RequireFromString("0.01"))
		assert.ErrorIs(t, err, ErrSubmissionRejected)
		assert.Equal(t, 0, client.SentCount())
	})

	t.Run("zero amount", func(t *testing.T) {
		client := stub.NewRPCClient()
		gw := NewRPCGateway(RPCGatewayOptions{Client: client})

		_, err := gw.SubmitTrade(context.Background(), id, cand, decimal.Zero)
		assert.ErrorIs(t, err, ErrSubmissionRejected)
		assert.Equal(t, 0, client.SentCount())
	})

	t.Run("blockhash unavailable", func(t *testing.T) {
		client := stub.NewRPCClient()
		client.BlockhashErr = fmt.Errorf("%w: max retries exceeded", solrpc.ErrTransport)
		gw := NewRPCGateway(RPCGatewayOptions{Client: client})

		_, err := gw.SubmitTrade(context.Background(), id, cand, decimal.RequireFromString("0.01"))
		assert.ErrorIs(t, err, ErrNetworkUnavailable)
	})
}

// stallingClient blocks every call until its context ends.
type stallingClient struct{ stub.RPCClient }

func (c *stallingClient) GetBalance(ctx context.Context, _ string) (uint64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (c *stallingClient) GetLatestBlockhash(ctx context.Context) (*solrpc.Blockhash, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRPCGateway_CallTimeout(t *testing.T) {
	id := testIdentity(t)
	gw := NewRPCGateway(RPCGatewayOptions{Client: &stallingClient{}, CallTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := gw.Balance(context.Background(), id)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)

	_, err = gw.SubmitTrade(context.Background(), id, domain.Candidate{Address: candidateAddress()}, decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPaperGateway_SubmitTrade(t *testing.T) {
	id := testIdentity(t)
	gw := NewPaperGateway(PaperGatewayOptions{FillDelay: -1})

	txID, err := gw.SubmitTrade(context.Background(), id, domain.Candidate{Address: "Tok1", Symbol: "PEPE"}, decimal.RequireFromString("0.01"))
	require.NoError(t, err)

	raw, err := base58.Decode(txID)
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	other, err := gw.SubmitTrade(context.Background(), id, domain.Candidate{Address: "Tok1"}, decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.NotEqual(t, txID, other)
}

func TestPaperGateway_FillDelay(t *testing.T) {
	id := testIdentity(t)
	gw := NewPaperGateway(PaperGatewayOptions{FillDelay: 30 * time.Millisecond})

	start := time.Now()
	_, err := gw.SubmitTrade(context.Background(), id, domain.Candidate{Address: "Tok1"}, decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gw.SubmitTrade(ctx, id, domain.Candidate{Address: "Tok1"}, decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestPaperGateway_Balance(t *testing.T) {
	id := testIdentity(t)
	client := stub.NewRPCClient()
	client.SetBalance(id.Address(), 1_000_000_000)

	gw := NewPaperGateway(PaperGatewayOptions{Balances: NewRPCGateway(RPCGatewayOptions{Client: client})})
	bal, err := gw.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "1", bal.String())

	bare := NewPaperGateway(PaperGatewayOptions{})
	bal, err = bare.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	_, err = bare.SubmitTrade(context.Background(), id, domain.Candidate{Address: "Tok1"}, decimal.Zero)
	assert.ErrorIs(t, err, ErrSubmissionRejected)
}
