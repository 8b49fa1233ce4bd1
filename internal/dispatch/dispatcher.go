// Package dispatch decides whether a candidate is traded and executes the
// approved attempts.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/gateway"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

// View is the engine state a dispatch decision is made against.
type View struct {
	State    domain.EngineState
	Identity *credential.Identity
	Amount   decimal.Decimal // SOL per trade
}

// Approved reports whether a trade may execute under v, and the skip reason
// when it may not.
func (v View) Approved() (bool, string) {
	switch {
	case v.State != domain.StateRunning:
		return false, observability.SkipStopped
	case v.Identity == nil:
		return false, observability.SkipNoIdentity
	case !v.Amount.IsPositive():
		return false, observability.SkipZeroAmount
	}
	return true, ""
}

// StateReader exposes the live engine state.
type StateReader interface {
	View() View
}

// Reporter is where dispatch writes attempt and outcome entries.
type Reporter interface {
	Append(level domain.LogLevel, message string) domain.LogEntry
}

// Options configures Dispatcher.
type Options struct {
	Gateway gateway.Gateway
	// State is the live engine state, re-checked before submission.
	State    StateReader
	Reporter Reporter
	// Trades journals every executed attempt; optional.
	Trades  storage.TradeStore
	Metrics *observability.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
	// NewID generates attempt IDs; defaults to uuid v4.
	NewID func() string
	// OnResult receives every executed attempt's result.
	OnResult func(r domain.TradeResult)
}

// Dispatcher executes approved trade attempts one at a time.
type Dispatcher struct {
	gw       gateway.Gateway
	state    StateReader
	reporter Reporter
	trades   storage.TradeStore
	metrics  *observability.Metrics
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
	onResult func(domain.TradeResult)

	// mu serializes submissions for the single operator identity.
	mu sync.Mutex
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Dispatcher{
		gw:       opts.Gateway,
		state:    opts.State,
		reporter: opts.Reporter,
		trades:   opts.Trades,
		metrics:  opts.Metrics,
		log:      opts.Logger.With().Str("component", "dispatch").Logger(),
		now:      opts.Now,
		newID:    opts.NewID,
		onResult: opts.OnResult,
	}
}

// Dispatch trades c if view approves it. ok is false when the candidate was
// skipped; the gateway is not touched in that case. Failures are captured in
// the result, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Candidate, view View) (result domain.TradeResult, ok bool) {
	if approved, reason := view.Approved(); !approved {
		d.skip(c, reason)
		return domain.TradeResult{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// A Stop observed while waiting for the lock wins over the caller's view.
	if d.state != nil {
		live := d.state.View()
		if approved, reason := live.Approved(); !approved {
			d.skip(c, reason)
			return domain.TradeResult{}, false
		}
		if live.Identity.Address() != view.Identity.Address() {
			d.skip(c, observability.SkipStopped)
			return domain.TradeResult{}, false
		}
	}

	result = domain.TradeResult{
		AttemptID: d.newID(),
		Candidate: c,
		Amount:    view.Amount,
	}

	d.report(domain.LevelInfo, fmt.Sprintf("Sniping token: %s (%s...)", c.DisplaySymbol(), c.ShortAddress()))
	d.log.Info().
		Str("attempt", result.AttemptID).
		Str("mint", c.Address).
		Str("amount", view.Amount.String()).
		Msg("submitting trade")

	result.SubmittedAt = d.now()
	txID, err := d.submit(ctx, view, c)
	result.Latency = d.now().Sub(result.SubmittedAt)

	if err != nil {
		result.ErrorKind = gateway.Classify(err)
		result.Error = err.Error()
		d.report(domain.LevelError, fmt.Sprintf("Snipe failed: %s: %s", result.ErrorKind, result.Error))
		d.log.Warn().Err(err).Str("attempt", result.AttemptID).Str("kind", string(result.ErrorKind)).Msg("trade failed")
	} else {
		result.Success = true
		result.TransactionID = txID
		d.report(domain.LevelInfo, "Transaction succeeded: "+txID)
		d.log.Info().Str("attempt", result.AttemptID).Str("tx", txID).Dur("latency", result.Latency).Msg("trade confirmed")
	}

	d.record(ctx, result)
	return result, true
}

// submit calls the gateway, converting a panic into a rejected submission.
func (d *Dispatcher) submit(ctx context.Context, view View, c domain.Candidate) (txID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: gateway panic: %v", gateway.ErrSubmissionRejected, r)
		}
	}()
	return d.gw.SubmitTrade(ctx, view.Identity, c, view.Amount)
}

func (d *Dispatcher) record(ctx context.Context, r domain.TradeResult) {
	d.metrics.RecordTrade(r)
	if d.trades != nil {
		if err := d.trades.Insert(context.WithoutCancel(ctx), &r); err != nil {
			d.log.Error().Err(err).Str("attempt", r.AttemptID).Msg("journal trade result")
		}
	}
	if d.onResult != nil {
		d.onResult(r)
	}
}

func (d *Dispatcher) skip(c domain.Candidate, reason string) {
	d.metrics.RecordSkip(reason)
	d.log.Debug().Str("mint", c.Address).Str("reason", reason).Msg("dispatch skipped")
}

func (d *Dispatcher) report(level domain.LogLevel, msg string) {
	if d.reporter != nil {
		d.reporter.Append(level, msg)
	}
}
