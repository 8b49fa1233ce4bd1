// Package engine is the run/stop state machine that owns the discovery loop,
// the balance cache and the dispatcher for one operator identity.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/balance"
	"solana-sniper/internal/credential"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/dispatch"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/eventlog"
	"solana-sniper/internal/gateway"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

// Errors returned by control calls.
var (
	ErrInvalidConfig = errors.New("invalid engine config")
	ErrClosed        = errors.New("engine closed")
)

// Options configures Engine.
type Options struct {
	// Gateways builds the chain gateway for the configured endpoint.
	Gateways GatewayFactory
	// Source feeds the discovery loop; defaults to a simulated source.
	Source discovery.CandidateSource
	// Log is the operational timeline; one is created when nil.
	Log *eventlog.Log

	Trades   storage.TradeStore   // optional trade journal
	Balances storage.BalanceStore // optional balance history
	Metrics  *observability.Metrics
	Logger   zerolog.Logger

	// Discovery cadence; zero values use the discovery defaults.
	MinInterval time.Duration
	Jitter      time.Duration
	Delay       func() time.Duration

	// Balance cadence; zero values use the balance defaults.
	RunningInterval time.Duration
	StoppedInterval time.Duration

	// HistoryTimeout bounds one balance history write.
	HistoryTimeout time.Duration
}

// Snapshot is a point-in-time read of the engine for rendering.
type Snapshot struct {
	State   domain.EngineState
	Address string // empty until a credential was accepted
	Config  domain.EngineConfig
	Balance *domain.BalanceSnapshot // nil until the first refresh succeeds
	Logs    []domain.LogEntry
}

// Engine is safe for concurrent use. Control calls never wait on the network.
type Engine struct {
	opts    Options
	log     zerolog.Logger
	events  *eventlog.Log
	ownsLog bool

	mu         sync.RWMutex
	state      domain.EngineState
	identity   *credential.Identity
	cfg        domain.EngineConfig
	source     discovery.CandidateSource
	gateways   map[string]gateway.Gateway
	cache      *balance.Cache
	cacheKey   string
	dispatcher *dispatch.Dispatcher
	gen        uint64 // incremented by every Start
	loop       *discovery.Handle
	retired    []*discovery.Handle
	closed     bool
}

var _ dispatch.StateReader = (*Engine)(nil)

// New creates a stopped engine.
func New(opts Options) *Engine {
	if opts.Gateways == nil {
		opts.Gateways = RPCGateways(FactoryOptions{Metrics: opts.Metrics, Logger: opts.Logger})
	}
	if opts.Source == nil {
		opts.Source = discovery.NewSimulatedSource(nil)
	}
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = 5 * time.Second
	}

	e := &Engine{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "engine").Logger(),
		events:   opts.Log,
		source:   opts.Source,
		gateways: make(map[string]gateway.Gateway),
	}
	if e.events == nil {
		e.events = eventlog.New(eventlog.Options{Logger: opts.Logger})
		e.ownsLog = true
	}
	opts.Metrics.SetRunning(false)
	return e
}

// Events returns the engine's event log.
func (e *Engine) Events() *eventlog.Log {
	return e.events
}

// Start resolves secret and begins discovery against cfg. It is a no-op
// while already running, whatever the arguments. A malformed secret leaves
// the engine stopped and returns an error matching
// credential.ErrInvalidCredentialFormat.
func (e *Engine) Start(secret string, cfg domain.EngineConfig) error {
	id, resolveErr := credential.Resolve(secret)

	// The replaced cache is stopped after e.mu is released.
	var retiredCache *balance.Cache
	defer func() {
		if retiredCache != nil {
			retiredCache.Stop()
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.state == domain.StateRunning {
		return nil
	}
	if resolveErr != nil {
		e.events.Error("Bot start failed: %s", gateway.Classify(resolveErr))
		return resolveErr
	}
	if cfg.NetworkEndpoint == "" {
		return fmt.Errorf("%w: network endpoint is required", ErrInvalidConfig)
	}
	if cfg.SnipeAmount.IsNegative() {
		return fmt.Errorf("%w: snipe amount must not be negative", ErrInvalidConfig)
	}

	gw, err := e.gatewayFor(cfg.NetworkEndpoint)
	if err != nil {
		e.events.Error("Bot start failed: %v", err)
		return fmt.Errorf("build gateway: %w", err)
	}

	// Same key again keeps the cache and its snapshot.
	if e.identity != nil && e.identity.Address() == id.Address() {
		id = e.identity
	}
	e.identity = id
	e.cfg = cfg
	retiredCache = e.ensureCache(gw, cfg.NetworkEndpoint)

	e.gen++
	view := runView{e: e, gen: e.gen}
	d := dispatch.New(dispatch.Options{
		Gateway:  gw,
		State:    view,
		Reporter: e.events,
		Trades:   e.opts.Trades,
		Metrics:  e.opts.Metrics,
		Logger:   e.opts.Logger,
	})
	e.dispatcher = d

	e.state = domain.StateRunning
	e.opts.Metrics.SetRunning(true)
	e.cache.SetRunning(true)

	e.events.Info("Bot started")
	e.events.Info("Network: %s", cfg.NetworkEndpoint)
	e.events.Info("Snipe amount: %s SOL", cfg.SnipeAmount.String())
	if cfg.SnipeAmount.IsZero() {
		e.events.Warn("Snipe amount is zero, trades will be skipped")
	}
	e.log.Info().Str("address", id.Address()).Str("endpoint", cfg.NetworkEndpoint).Msg("engine started")

	e.pruneRetired()
	loop := discovery.NewLoop(discovery.LoopOptions{
		Source: discovery.SourceFunc(e.nextCandidate),
		// Bound to this run: after a Stop the view reads stopped even if
		// the engine was started again.
		Handler: discovery.HandlerFunc(func(ctx context.Context, c domain.Candidate) {
			d.Dispatch(ctx, c, view.View())
		}),
		Reporter:     e.events,
		MinInterval:  e.opts.MinInterval,
		Jitter:       e.opts.Jitter,
		Delay:        e.opts.Delay,
		Logger:       e.opts.Logger,
		OnDiscovered: func(c domain.Candidate) { e.opts.Metrics.RecordCandidate(c.Source) },
	})
	e.loop = loop.Start(context.Background())
	return nil
}

// Stop halts discovery. It is a no-op while stopped. Trades already past the
// dispatcher's live state check complete and report their outcome.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.state != domain.StateRunning {
		return
	}
	e.state = domain.StateStopped
	if e.loop != nil {
		e.loop.Stop()
		e.retired = append(e.retired, e.loop)
		e.loop = nil
	}
	if e.cache != nil {
		e.cache.SetRunning(false)
	}
	e.opts.Metrics.SetRunning(false)
	e.events.Info("Bot stopped")
	e.log.Info().Msg("engine stopped")
}

// Close stops the engine, the balance cache and waits for in-flight trades.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.stopLocked()
	e.closed = true
	cache, retired := e.cache, e.retired
	e.retired = nil
	e.mu.Unlock()

	if cache != nil {
		cache.Stop()
	}
	for _, h := range retired {
		<-h.Done()
	}
	if e.ownsLog {
		e.events.Close()
	}
}

// SetCandidateSource swaps the discovery source; the next tick uses it.
func (e *Engine) SetCandidateSource(src discovery.CandidateSource) {
	if src == nil {
		return
	}
	e.mu.Lock()
	e.source = src
	e.mu.Unlock()
}

// View implements dispatch.StateReader.
func (e *Engine) View() dispatch.View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewLocked()
}

func (e *Engine) viewLocked() dispatch.View {
	return dispatch.View{State: e.state, Identity: e.identity, Amount: e.cfg.SnipeAmount}
}

// runView is the engine state as seen from one Running period. Once that
// period ends it always reads stopped.
type runView struct {
	e   *Engine
	gen uint64
}

func (v runView) View() dispatch.View {
	v.e.mu.RLock()
	defer v.e.mu.RUnlock()
	if v.e.gen != v.gen {
		return dispatch.View{State: domain.StateStopped}
	}
	return v.e.viewLocked()
}

// State returns the current run state.
func (e *Engine) State() domain.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Snapshot returns the current state, address, balance and log.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	s := Snapshot{State: e.state, Config: e.cfg}
	if e.identity != nil {
		s.Address = e.identity.Address()
	}
	cache := e.cache
	e.mu.RUnlock()

	if cache != nil {
		if snap, ok := cache.Current(); ok {
			s.Balance = &snap
		}
	}
	s.Logs = e.events.Entries()
	return s
}

// Snipe dispatches a trade for address on operator request, under the same
// rule as discovered candidates. ok is false when the engine is not in a
// state to trade.
func (e *Engine) Snipe(ctx context.Context, address string) (result domain.TradeResult, ok bool, err error) {
	if err := credential.ValidateAddress(address); err != nil {
		return domain.TradeResult{}, false, err
	}

	e.mu.RLock()
	d, view := e.dispatcher, runView{e: e, gen: e.gen}
	e.mu.RUnlock()
	if d == nil {
		return domain.TradeResult{}, false, nil
	}

	c := domain.Candidate{
		Address:      address,
		Symbol:       domain.UnknownSymbol,
		Source:       domain.SourceManual,
		DiscoveredAt: time.Now(),
	}
	result, ok = d.Dispatch(ctx, c, view.View())
	return result, ok, nil
}

func (e *Engine) nextCandidate(ctx context.Context) (domain.Candidate, bool, error) {
	e.mu.RLock()
	src := e.source
	e.mu.RUnlock()
	return src.Next(ctx)
}

// gatewayFor returns the cached gateway for endpoint. Must hold e.mu.
func (e *Engine) gatewayFor(endpoint string) (gateway.Gateway, error) {
	if gw, ok := e.gateways[endpoint]; ok {
		return gw, nil
	}
	gw, err := e.opts.Gateways(endpoint)
	if err != nil {
		return nil, err
	}
	e.gateways[endpoint] = gw
	return gw, nil
}

// ensureCache keeps the balance cache when identity and endpoint are
// unchanged and replaces it otherwise. The replaced cache is returned still
// running; the caller stops it after releasing e.mu. Must hold e.mu.
func (e *Engine) ensureCache(gw gateway.Gateway, endpoint string) (replaced *balance.Cache) {
	key := e.identity.Address() + "@" + endpoint
	if e.cache != nil && e.cacheKey == key {
		return nil
	}
	replaced = e.cache

	e.cache = balance.New(balance.Options{
		Reader:          gw,
		Reporter:        e.events,
		RunningInterval: e.opts.RunningInterval,
		StoppedInterval: e.opts.StoppedInterval,
		Logger:          e.opts.Logger,
		OnRefresh:       e.recordBalance,
		OnFailure:       e.opts.Metrics.RecordBalanceFailure,
	})
	e.cacheKey = key
	e.cache.Start(context.Background(), e.identity)
	return replaced
}

func (e *Engine) recordBalance(ctx context.Context, id *credential.Identity, snap domain.BalanceSnapshot) {
	e.opts.Metrics.RecordBalance(snap)
	if e.opts.Balances == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.HistoryTimeout)
	defer cancel()
	p := &domain.BalancePoint{Address: id.Address(), Value: snap.Value, FetchedAt: snap.FetchedAt}
	if err := e.opts.Balances.Insert(ctx, p); err != nil {
		e.log.Warn().Err(err).Msg("record balance history")
	}
}

// pruneRetired forgets stopped loops that have fully drained. Must hold e.mu.
func (e *Engine) pruneRetired() {
	kept := e.retired[:0]
	for _, h := range e.retired {
		if h.Active() {
			kept = append(kept, h)
		}
	}
	e.retired = kept
}

// ParseAmount parses a SOL amount, rejecting negatives.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrInvalidConfig, s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount must not be negative", ErrInvalidConfig)
	}
	return d, nil
}
