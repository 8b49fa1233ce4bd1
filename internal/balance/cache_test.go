package balance

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/eventlog"
	"solana-sniper/internal/gateway"
)

func testIdentity(t *testing.T, b byte) *credential.Identity {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	id, err := credential.Resolve(base58.Encode(seed))
	require.NoError(t, err)
	return id
}

// fakeReader returns value until err is set.
type fakeReader struct {
	mu    sync.Mutex
	value decimal.Decimal
	err   error
	calls int
	block chan struct{}
}

func (r *fakeReader) Balance(ctx context.Context, _ *credential.Identity) (decimal.Decimal, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	value, err := r.value, r.err
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return value, err
}

func (r *fakeReader) set(value string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value != "" {
		r.value = decimal.RequireFromString(value)
	}
	r.err = err
}

func (r *fakeReader) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestCache_RefreshesImmediately(t *testing.T) {
	reader := &fakeReader{}
	reader.set("1.25", nil)

	c := New(Options{Reader: reader, StoppedInterval: time.Hour})
	_, ok := c.Current()
	assert.False(t, ok)

	c.Start(context.Background(), testIdentity(t, 1))
	defer c.Stop()

	require.Eventually(t, func() bool {
		_, ok := c.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	snap, _ := c.Current()
	assert.Equal(t, "1.25", snap.Value.String())
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestCache_KeepsSnapshotOnFailure(t *testing.T) {
	reader := &fakeReader{}
	reader.set("3", nil)
	events := eventlog.New(eventlog.Options{})

	c := New(Options{Reader: reader, Reporter: events, StoppedInterval: time.Hour})
	c.Start(context.Background(), testIdentity(t, 1))
	defer c.Stop()

	require.Eventually(t, func() bool {
		_, ok := c.Current()
		return ok
	}, time.Second, 5*time.Millisecond)
	before, _ := c.Current()

	reader.set("", fmt.Errorf("get balance: %w", gateway.ErrNetworkUnavailable))
	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, gateway.ErrNetworkUnavailable)

	after, ok := c.Current()
	require.True(t, ok)
	assert.True(t, before.Value.Equal(after.Value))
	assert.Equal(t, before.FetchedAt, after.FetchedAt)

	entries := events.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Balance refresh failed: NETWORK_UNAVAILABLE", entries[0].Message)
	assert.Equal(t, domain.LevelWarn, entries[0].Level)
}

func TestCache_FailureLogIsRateLimited(t *testing.T) {
	reader := &fakeReader{}
	reader.set("", gateway.ErrNetworkUnavailable)
	events := eventlog.New(eventlog.Options{})

	var failures []domain.ErrorKind
	var mu sync.Mutex
	c := New(Options{
		Reader:          reader,
		Reporter:        events,
		StoppedInterval: time.Hour,
		OnFailure: func(kind domain.ErrorKind) {
			mu.Lock()
			failures = append(failures, kind)
			mu.Unlock()
		},
	})
	c.mu.Lock()
	c.id = testIdentity(t, 1)
	c.mu.Unlock()

	for i := 0; i < 5; i++ {
		c.Refresh(context.Background())
	}

	assert.Equal(t, 1, events.Len(), "retries within one tick produce one entry")
	mu.Lock()
	assert.Len(t, failures, 5)
	mu.Unlock()

	// Recovery re-arms the limiter.
	reader.set("1", nil)
	require.NoError(t, c.Refresh(context.Background()))
	reader.set("", gateway.ErrNetworkUnavailable)
	c.Refresh(context.Background())
	assert.Equal(t, 2, events.Len())
}

func TestCache_UnknownIdentityIsZero(t *testing.T) {
	reader := &fakeReader{}
	reader.set("", gateway.ErrUnknownIdentity)
	events := eventlog.New(eventlog.Options{})

	c := New(Options{Reader: reader, Reporter: events, StoppedInterval: time.Hour})
	c.Start(context.Background(), testIdentity(t, 1))
	defer c.Stop()

	require.Eventually(t, func() bool {
		_, ok := c.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	snap, _ := c.Current()
	assert.True(t, snap.Value.IsZero())
	assert.Equal(t, 0, events.Len())
}

func TestCache_SwitchesCadenceWithoutRestart(t *testing.T) {
	reader := &fakeReader{}
	reader.set("1", nil)

	c := New(Options{
		Reader:          reader,
		RunningInterval: 10 * time.Millisecond,
		StoppedInterval: time.Hour,
	})
	c.Start(context.Background(), testIdentity(t, 1))
	defer c.Stop()

	require.Eventually(t, func() bool { return reader.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, reader.callCount(), "stopped cadence must not poll again yet")

	c.SetRunning(true)
	assert.True(t, c.Running())
	assert.Equal(t, 10*time.Millisecond, c.Interval())
	require.Eventually(t, func() bool { return reader.callCount() >= 4 }, time.Second, 5*time.Millisecond)

	c.SetRunning(false)
	time.Sleep(30 * time.Millisecond)
	settled := reader.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, reader.callCount())
}

func TestCache_StopEndsPolling(t *testing.T) {
	reader := &fakeReader{}
	reader.set("1", nil)

	c := New(Options{Reader: reader, RunningInterval: 5 * time.Millisecond})
	c.SetRunning(true)
	c.Start(context.Background(), testIdentity(t, 1))

	require.Eventually(t, func() bool { return reader.callCount() >= 3 }, time.Second, time.Millisecond)
	c.Stop()
	stopped := reader.callCount()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, reader.callCount())

	_, ok := c.Current()
	assert.True(t, ok, "snapshot stays readable after Stop")

	c.Stop() // idempotent
}

func TestCache_ReadsDoNotBlockOnFetch(t *testing.T) {
	reader := &fakeReader{block: make(chan struct{})}
	reader.set("1", nil)

	c := New(Options{Reader: reader, StoppedInterval: time.Hour})
	c.Start(context.Background(), testIdentity(t, 1))
	defer c.Stop()

	require.Eventually(t, func() bool { return reader.callCount() == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Current()
		c.Identity()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Current blocked on an in-flight fetch")
	}
	close(reader.block)
}

func TestCache_NewIdentityClearsSnapshot(t *testing.T) {
	reader := &fakeReader{}
	reader.set("7", nil)

	var refreshed []string
	var mu sync.Mutex
	c := New(Options{
		Reader:          reader,
		StoppedInterval: time.Hour,
		OnRefresh: func(_ context.Context, id *credential.Identity, _ domain.BalanceSnapshot) {
			mu.Lock()
			refreshed = append(refreshed, id.Address())
			mu.Unlock()
		},
	})

	first := testIdentity(t, 1)
	c.Start(context.Background(), first)
	require.Eventually(t, func() bool { _, ok := c.Current(); return ok }, time.Second, time.Millisecond)
	c.Stop()

	reader.set("", gateway.ErrNetworkUnavailable)
	second := testIdentity(t, 2)
	c.Start(context.Background(), second)
	defer c.Stop()

	_, ok := c.Current()
	assert.False(t, ok)
	assert.Equal(t, second.Address(), c.Identity().Address())

	mu.Lock()
	assert.Equal(t, []string{first.Address()}, refreshed)
	mu.Unlock()
}

func TestCache_StopCancelsRefreshCallback(t *testing.T) {
	reader := &fakeReader{}
	reader.set("1", nil)

	entered := make(chan struct{})
	var once sync.Once
	c := New(Options{
		Reader:          reader,
		StoppedInterval: time.Hour,
		OnRefresh: func(ctx context.Context, _ *credential.Identity, _ domain.BalanceSnapshot) {
			once.Do(func() { close(entered) })
			<-ctx.Done()
		},
	})
	c.Start(context.Background(), testIdentity(t, 1))

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("refresh callback not called")
	}

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop waited on a callback that ignored cancellation")
	}
}
