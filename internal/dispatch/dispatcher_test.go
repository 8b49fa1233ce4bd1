package dispatch

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/eventlog"
	"solana-sniper/internal/gateway"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage/memory"
)

func testIdentity(t *testing.T) *credential.Identity {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	id, err := credential.Resolve(base58.Encode(seed))
	require.NoError(t, err)
	return id
}

type call struct {
	id        *credential.Identity
	candidate domain.Candidate
	amount    decimal.Decimal
}

// fakeGateway records SubmitTrade calls and replies with txID or err.
type fakeGateway struct {
	mu       sync.Mutex
	calls    []call
	txID     string
	err      error
	panicMsg string
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (g *fakeGateway) Balance(context.Context, *credential.Identity) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (g *fakeGateway) SubmitTrade(_ context.Context, id *credential.Identity, c domain.Candidate, amount decimal.Decimal) (string, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.maxInFlight.Load()
		if n <= peak || g.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	g.mu.Lock()
	g.calls = append(g.calls, call{id: id, candidate: c, amount: amount})
	txID, err, panicMsg, delay := g.txID, g.err, g.panicMsg, g.delay
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if panicMsg != "" {
		panic(panicMsg)
	}
	return txID, err
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// liveState is a mutable StateReader.
type liveState struct {
	mu   sync.Mutex
	view View
}

func (s *liveState) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *liveState) set(v View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

func runningView(t *testing.T, amount string) View {
	return View{State: domain.StateRunning, Identity: testIdentity(t), Amount: decimal.RequireFromString(amount)}
}

func messages(l *eventlog.Log) []string {
	var out []string
	for _, e := range l.Entries() {
		out = append(out, e.Message)
	}
	return out
}

func TestDispatch_ExecutesAndLogs(t *testing.T) {
	gw := &fakeGateway{txID: "TX123"}
	events := eventlog.New(eventlog.Options{})
	view := runningView(t, "0.01")
	state := &liveState{view: view}

	d := New(Options{Gateway: gw, State: state, Reporter: events, NewID: func() string { return "attempt-1" }})
	candidate := domain.Candidate{Address: "Tok1", Symbol: "PEPE"}

	result, ok := d.Dispatch(context.Background(), candidate, view)
	require.True(t, ok)

	require.Equal(t, 1, gw.callCount())
	assert.Equal(t, view.Identity.Address(), gw.calls[0].id.Address())
	assert.Equal(t, candidate, gw.calls[0].candidate)
	assert.Equal(t, "0.01", gw.calls[0].amount.String())

	assert.True(t, result.Success)
	assert.Equal(t, "TX123", result.TransactionID)
	assert.Equal(t, "attempt-1", result.AttemptID)
	assert.Equal(t, domain.ErrorKindNone, result.ErrorKind)
	assert.Equal(t, candidate, result.Candidate)
	assert.False(t, result.SubmittedAt.IsZero())

	assert.Equal(t, []string{
		"Sniping token: PEPE (Tok1...)",
		"Transaction succeeded: TX123",
	}, messages(events))
}

func TestDispatch_SkipsWithoutTouchingGateway(t *testing.T) {
	id := testIdentity(t)
	cases := map[string]View{
		"stopped":     {State: domain.StateStopped, Identity: id, Amount: decimal.RequireFromString("0.01")},
		"no identity": {State: domain.StateRunning, Amount: decimal.RequireFromString("0.01")},
		"zero amount": {State: domain.StateRunning, Identity: id, Amount: decimal.Zero},
		"negative":    {State: domain.StateRunning, Identity: id, Amount: decimal.RequireFromString("-1")},
	}

	for name, view := range cases {
		t.Run(name, func(t *testing.T) {
			gw := &fakeGateway{txID: "TX"}
			events := eventlog.New(eventlog.Options{})
			d := New(Options{Gateway: gw, Reporter: events})

			result, ok := d.Dispatch(context.Background(), domain.Candidate{Address: "Tok1"}, view)
			assert.False(t, ok)
			assert.Equal(t, domain.TradeResult{}, result)
			assert.Equal(t, 0, gw.callCount())
			assert.Equal(t, 0, events.Len())
		})
	}
}

func TestDispatch_LiveStopWinsOverStaleView(t *testing.T) {
	gw := &fakeGateway{txID: "TX"}
	events := eventlog.New(eventlog.Options{})
	view := runningView(t, "0.01")
	state := &liveState{view: view}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("", reg)
	d := New(Options{Gateway: gw, State: state, Reporter: events, Metrics: metrics})

	// The loop captured a Running view, then the operator stopped the engine.
	state.set(View{State: domain.StateStopped, Identity: view.Identity, Amount: view.Amount})

	_, ok := d.Dispatch(context.Background(), domain.Candidate{Address: "Tok1", Symbol: "PEPE"}, view)
	assert.False(t, ok)
	assert.Equal(t, 0, gw.callCount())
	for _, m := range messages(events) {
		assert.NotContains(t, m, "Transaction succeeded")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DispatchSkipped.WithLabelValues(observability.SkipStopped)))
}

func TestDispatch_IdentityChangedSkips(t *testing.T) {
	gw := &fakeGateway{txID: "TX"}
	view := runningView(t, "0.01")

	seed := make([]byte, ed25519.SeedSize)
	other, err := credential.Resolve(base58.Encode(seed))
	require.NoError(t, err)
	state := &liveState{view: View{State: domain.StateRunning, Identity: other, Amount: view.Amount}}

	d := New(Options{Gateway: gw, State: state})
	_, ok := d.Dispatch(context.Background(), domain.Candidate{Address: "Tok1"}, view)
	assert.False(t, ok)
	assert.Equal(t, 0, gw.callCount())
}

func TestDispatch_FailureIsCaptured(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind domain.ErrorKind
	}{
		{"rejected", fmt.Errorf("send: %w", gateway.ErrSubmissionRejected), domain.ErrorKindSubmissionRejected},
		{"network", fmt.Errorf("send: %w", gateway.ErrNetworkUnavailable), domain.ErrorKindNetworkUnavailable},
		{"timeout", context.DeadlineExceeded, domain.ErrorKindNetworkUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{err: tc.err}
			events := eventlog.New(eventlog.Options{})
			view := runningView(t, "0.5")
			d := New(Options{Gateway: gw, Reporter: events})

			result, ok := d.Dispatch(context.Background(), domain.Candidate{Address: "Tok1", Symbol: "CAT"}, view)
			require.True(t, ok)
			assert.False(t, result.Success)
			assert.Empty(t, result.TransactionID)
			assert.Equal(t, tc.kind, result.ErrorKind)
			assert.Equal(t, tc.err.Error(), result.Error)

			entries := events.Entries()
			require.Len(t, entries, 2)
			assert.Equal(t, domain.LevelError, entries[1].Level)
			assert.True(t, strings.HasPrefix(entries[1].Message, "Snipe failed: "+string(tc.kind)))
		})
	}
}

func TestDispatch_GatewayPanicBecomesRejection(t *testing.T) {
	gw := &fakeGateway{panicMsg: "nil builder"}
	d := New(Options{Gateway: gw})

	var result domain.TradeResult
	var ok bool
	assert.NotPanics(t, func() {
		result, ok = d.Dispatch(context.Background(), domain.Candidate{Address: "Tok1"}, runningView(t, "1"))
	})
	require.True(t, ok)
	assert.Equal(t, domain.ErrorKindSubmissionRejected, result.ErrorKind)
	assert.Contains(t, result.Error, "nil builder")
}

func TestDispatch_JournalsAndNotifies(t *testing.T) {
	gw := &fakeGateway{txID: "TXJ"}
	trades := memory.NewTradeStore()
	var notified []domain.TradeResult
	d := New(Options{
		Gateway:  gw,
		Trades:   trades,
		OnResult: func(r domain.TradeResult) { notified = append(notified, r) },
	})

	result, ok := d.Dispatch(context.Background(), domain.Candidate{Address: "Tok1"}, runningView(t, "0.2"))
	require.True(t, ok)

	stored, err := trades.GetByID(context.Background(), result.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, "TXJ", stored.TransactionID)
	assert.Len(t, result.AttemptID, 36, "uuid attempt id")

	require.Len(t, notified, 1)
	assert.Equal(t, result, notified[0])
}

func TestDispatch_SerializesSubmissions(t *testing.T) {
	gw := &fakeGateway{txID: "TX", delay: 5 * time.Millisecond}
	d := New(Options{Gateway: gw})
	view := runningView(t, "0.1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Dispatch(context.Background(), domain.Candidate{Address: fmt.Sprintf("Tok%d", i)}, view)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, gw.callCount())
	assert.Equal(t, int32(1), gw.maxInFlight.Load())
}

func TestView_Approved(t *testing.T) {
	ok, reason := View{}.Approved()
	assert.False(t, ok)
	assert.Equal(t, observability.SkipStopped, reason)

	ok, reason = runningView(t, "0.01").Approved()
	assert.True(t, ok)
	assert.Empty(t, reason)
}
