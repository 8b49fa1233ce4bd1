// Package balance keeps the last known balance of the active identity fresh.
package balance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/gateway"
)

// Default poll cadences.
const (
	DefaultRunningInterval = 5 * time.Second
	DefaultStoppedInterval = 10 * time.Second
)

const failureLimitKey = "balance.refresh"

// Reader fetches the balance of an identity.
type Reader interface {
	Balance(ctx context.Context, id *credential.Identity) (decimal.Decimal, error)
}

// Reporter receives rate-limited failure entries.
type Reporter interface {
	AppendLimited(key string, every time.Duration, level domain.LogLevel, message string) bool
	ResetLimit(key string)
}

// Options configures Cache.
type Options struct {
	Reader          Reader
	Reporter        Reporter      // optional
	RunningInterval time.Duration // defaults to DefaultRunningInterval
	StoppedInterval time.Duration // defaults to DefaultStoppedInterval
	Logger          zerolog.Logger

	// OnRefresh is called after every successful refresh, outside any lock.
	// ctx is the refresh context and ends when the cache stops.
	OnRefresh func(ctx context.Context, id *credential.Identity, snap domain.BalanceSnapshot)
	// OnFailure is called after every failed refresh.
	OnFailure func(kind domain.ErrorKind)
}

// Cache polls the balance of one identity and serves the last snapshot.
type Cache struct {
	opts Options
	log  zerolog.Logger

	running atomic.Bool
	wake    chan struct{}

	mu       sync.RWMutex
	id       *credential.Identity
	snapshot domain.BalanceSnapshot
	hasValue bool

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cache. It does nothing until Start.
func New(opts Options) *Cache {
	if opts.RunningInterval <= 0 {
		opts.RunningInterval = DefaultRunningInterval
	}
	if opts.StoppedInterval <= 0 {
		opts.StoppedInterval = DefaultStoppedInterval
	}
	return &Cache{
		opts: opts,
		log:  opts.Logger.With().Str("component", "balance").Logger(),
		wake: make(chan struct{}, 1),
	}
}

// Start begins polling for id. A refresh runs immediately.
// Calling Start on a started cache is a no-op.
func (c *Cache) Start(ctx context.Context, id *credential.Identity) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.cancel != nil {
		return
	}

	c.mu.Lock()
	if c.id != id {
		c.snapshot, c.hasValue = domain.BalanceSnapshot{}, false
	}
	c.id = id
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Stop ends polling and waits for the poller to exit. The last snapshot stays readable.
func (c *Cache) Stop() {
	c.lifeMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetRunning switches between the running and stopped cadence without
// restarting the poller. A change triggers an immediate refresh.
func (c *Cache) SetRunning(running bool) {
	if c.running.Swap(running) == running {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Running reports which cadence is active.
func (c *Cache) Running() bool {
	return c.running.Load()
}

// Identity returns the identity being polled.
func (c *Cache) Identity() *credential.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Current returns the last successful snapshot. The bool is false until the
// first refresh succeeds.
func (c *Cache) Current() (domain.BalanceSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasValue
}

// Interval returns the cadence currently in effect.
func (c *Cache) Interval() time.Duration {
	if c.running.Load() {
		return c.opts.RunningInterval
	}
	return c.opts.StoppedInterval
}

// Refresh fetches the balance once. On failure the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	id := c.Identity()
	if id == nil {
		return gateway.ErrUnknownIdentity
	}

	value, err := c.opts.Reader.Balance(ctx, id)
	if err != nil && errors.Is(err, gateway.ErrUnknownIdentity) {
		// No on-chain record yet: a normal zero balance.
		value, err = decimal.Zero, nil
	}
	if err != nil {
		if ctx.Err() == nil {
			c.reportFailure(err)
		}
		return err
	}

	snap := domain.BalanceSnapshot{Value: value, FetchedAt: time.Now()}
	c.mu.Lock()
	if c.id != id {
		// Identity changed while the fetch was in flight.
		c.mu.Unlock()
		return nil
	}
	c.snapshot = snap
	c.hasValue = true
	c.mu.Unlock()

	if c.opts.Reporter != nil {
		c.opts.Reporter.ResetLimit(failureLimitKey)
	}
	if c.opts.OnRefresh != nil {
		c.opts.OnRefresh(ctx, id, snap)
	}
	return nil
}

func (c *Cache) reportFailure(err error) {
	kind := gateway.Classify(err)
	c.log.Debug().Err(err).Str("kind", string(kind)).Msg("balance refresh failed")
	if c.opts.OnFailure != nil {
		c.opts.OnFailure(kind)
	}
	if c.opts.Reporter != nil {
		// At most one entry per tick of the current cadence.
		c.opts.Reporter.AppendLimited(failureLimitKey, c.Interval()/2, domain.LevelWarn,
			"Balance refresh failed: "+string(kind))
	}
}

func (c *Cache) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.Refresh(ctx)

	timer := time.NewTimer(c.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			c.Refresh(ctx)
			timer.Reset(c.Interval())
		case <-timer.C:
			c.Refresh(ctx)
			timer.Reset(c.Interval())
		}
	}
}
