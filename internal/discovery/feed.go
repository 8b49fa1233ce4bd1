package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/memory"
)

// DefaultFeedBuffer is the number of undelivered launches the feed retains.
const DefaultFeedBuffer = 64

// LaunchFeedOptions configures LaunchFeed.
type LaunchFeedOptions struct {
	WS solana.WSClient
	// RPC resolves Raydium pool mints; nil skips Raydium launches.
	RPC solana.RPCClient
	// Seen deduplicates mints; defaults to an in-memory set.
	Seen storage.SeenStore
	// Programs to subscribe to; defaults to pump.fun and Raydium AMM v4.
	Programs   []string
	BufferSize int           // defaults to DefaultFeedBuffer
	RPCTimeout time.Duration // defaults to 10s
	Logger     zerolog.Logger
	Now        func() time.Time
	// OnDrop is called when the buffer evicts an undelivered launch.
	OnDrop func(c domain.Candidate)
}

// LaunchFeed turns live program logs into candidates.
// Run fills a bounded buffer; Next takes one candidate per discovery tick.
type LaunchFeed struct {
	ws       solana.WSClient
	rpc      solana.RPCClient
	seen     storage.SeenStore
	programs []string
	capacity int
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
	onDrop   func(domain.Candidate)

	mu      sync.Mutex
	queue   []domain.Candidate
	dropped uint64
}

var _ CandidateSource = (*LaunchFeed)(nil)

// NewLaunchFeed creates a launch feed.
func NewLaunchFeed(opts LaunchFeedOptions) *LaunchFeed {
	if opts.Seen == nil {
		opts.Seen = memory.NewSeenStore()
	}
	if len(opts.Programs) == 0 {
		opts.Programs = []string{PumpFun, RaydiumAMMV4}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultFeedBuffer
	}
	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LaunchFeed{
		ws:       opts.WS,
		rpc:      opts.RPC,
		seen:     opts.Seen,
		programs: opts.Programs,
		capacity: opts.BufferSize,
		timeout:  opts.RPCTimeout,
		log:      opts.Logger.With().Str("component", "launch_feed").Logger(),
		now:      opts.Now,
		onDrop:   opts.OnDrop,
	}
}

// Run subscribes to every program and consumes notifications until ctx is
// done or the WebSocket client closes.
func (f *LaunchFeed) Run(ctx context.Context) error {
	if f.ws == nil {
		return errors.New("launch feed: no websocket client")
	}

	merged := make(chan solana.LogNotification)
	var wg sync.WaitGroup

	for _, program := range f.programs {
		ch, err := f.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", program, err)
		}
		f.log.Info().Str("program", program).Msg("subscribed to program logs")

		wg.Add(1)
		go func(ch <-chan solana.LogNotification) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- n:
					case <-ctx.Done():
						return
					}
				}
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	for n := range merged {
		f.handle(ctx, n)
	}
	return ctx.Err()
}

// Next implements CandidateSource. It never blocks.
func (f *LaunchFeed) Next(ctx context.Context) (domain.Candidate, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Candidate{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return domain.Candidate{}, false, nil
	}
	c := f.queue[0]
	f.queue = f.queue[1:]
	return c, true, nil
}

// Pending returns the number of buffered candidates.
func (f *LaunchFeed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Dropped returns how many launches were evicted before delivery.
func (f *LaunchFeed) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *LaunchFeed) handle(ctx context.Context, n solana.LogNotification) {
	for _, ev := range ParseLaunches(n) {
		if ev.NeedsMint {
			mint, ok := f.resolveMint(ctx, ev.Signature)
			if !ok {
				continue
			}
			ev.Mint = mint
		}

		fresh, err := f.seen.MarkSeen(ctx, ev.Mint)
		if err != nil {
			// Skipping keeps a store outage from causing duplicate buys.
			f.log.Warn().Err(err).Str("mint", ev.Mint).Msg("seen store failed, skipping launch")
			continue
		}
		if !fresh {
			continue
		}

		c := ev.Candidate()
		c.DiscoveredAt = f.now()
		f.push(c)
		f.log.Debug().Str("mint", c.Address).Str("symbol", c.Symbol).Str("source", c.Source.String()).Msg("launch detected")
	}
}

func (f *LaunchFeed) resolveMint(ctx context.Context, signature string) (string, bool) {
	if f.rpc == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tx, err := f.rpc.GetTransaction(ctx, signature)
	if err != nil {
		f.log.Warn().Err(err).Str("signature", signature).Msg("resolve pool mint")
		return "", false
	}
	return ResolveRaydiumMint(tx)
}

// push appends c, evicting the oldest entry when the buffer is full.
func (f *LaunchFeed) push(c domain.Candidate) {
	f.mu.Lock()
	var evicted *domain.Candidate
	if len(f.queue) >= f.capacity {
		old := f.queue[0]
		evicted = &old
		f.queue = f.queue[1:]
		f.dropped++
	}
	f.queue = append(f.queue, c)
	f.mu.Unlock()

	if evicted != nil && f.onDrop != nil {
		f.onDrop(*evicted)
	}
}
