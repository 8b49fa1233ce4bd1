// Package discovery schedules candidate discovery and the sources that feed it.
package discovery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper/internal/domain"
)

// Default wake cadence: uniform in [DefaultMinInterval, DefaultMinInterval+DefaultJitter].
const (
	DefaultMinInterval = 5 * time.Second
	DefaultJitter      = 10 * time.Second
)

// Handler receives each discovered candidate.
type Handler interface {
	Handle(ctx context.Context, c domain.Candidate)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c domain.Candidate)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, c domain.Candidate) {
	f(ctx, c)
}

// Reporter is where the loop writes discovery entries.
type Reporter interface {
	Append(level domain.LogLevel, message string) domain.LogEntry
	AppendLimited(key string, every time.Duration, level domain.LogLevel, message string) bool
}

// LoopOptions configures Loop.
type LoopOptions struct {
	Source      CandidateSource
	Handler     Handler
	Reporter    Reporter      // optional
	MinInterval time.Duration // defaults to DefaultMinInterval
	Jitter      time.Duration // defaults to DefaultJitter; negative means none
	// Delay overrides the randomized wait, mainly for tests.
	Delay  func() time.Duration
	Logger zerolog.Logger
	// OnDiscovered is called for every candidate before it is handled.
	OnDiscovered func(c domain.Candidate)
}

// Loop wakes at randomized intervals and hands one candidate per wake to
// its handler.
type Loop struct {
	source   CandidateSource
	handler  Handler
	reporter Reporter
	delay    func() time.Duration
	log      zerolog.Logger
	onFound  func(domain.Candidate)
}

// NewLoop creates a discovery loop.
func NewLoop(opts LoopOptions) *Loop {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Jitter == 0 {
		opts.Jitter = DefaultJitter
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	if opts.Delay == nil {
		opts.Delay = UniformDelay(opts.MinInterval, opts.Jitter)
	}
	return &Loop{
		source:   opts.Source,
		handler:  opts.Handler,
		reporter: opts.Reporter,
		delay:    opts.Delay,
		log:      opts.Logger.With().Str("component", "discovery").Logger(),
		onFound:  opts.OnDiscovered,
	}
}

// UniformDelay returns a delay function drawing from [base, base+jitter].
func UniformDelay(base, jitter time.Duration) func() time.Duration {
	return func() time.Duration {
		if jitter <= 0 {
			return base
		}
		return base + time.Duration(rand.Int64N(int64(jitter)+1))
	}
}

// Handle is the cancellable run of one Loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the pending wake. It does not wait; use Done for that.
// Handlers already running finish with their outcome reported.
func (h *Handle) Stop() {
	h.cancel()
}

// Done is closed once the loop and every handler it started have returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Active reports whether the loop is still scheduling wakes.
func (h *Handle) Active() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	return true
}

// Start launches the loop. Cancelling ctx is equivalent to Handle.Stop.
func (l *Loop) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go l.run(ctx, h.done)
	return h
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	var handlers sync.WaitGroup
	defer func() {
		handlers.Wait()
		close(done)
	}()

	for {
		timer := time.NewTimer(l.delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// Wake boundary: a stop that raced the timer wins.
		if ctx.Err() != nil {
			return
		}

		c, ok, err := l.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn().Err(err).Msg("candidate source failed")
			if l.reporter != nil {
				l.reporter.AppendLimited("discovery.source", time.Minute, domain.LevelWarn,
					"Discovery source error: "+err.Error())
			}
			continue
		}
		if !ok {
			continue
		}

		if l.reporter != nil {
			l.reporter.Append(domain.LevelInfo,
				fmt.Sprintf("Discovered new token: %s (%s...)", c.DisplaySymbol(), c.ShortAddress()))
		}
		if l.onFound != nil {
			l.onFound(c)
		}

		// The next wake is scheduled regardless of how the handler fares.
		// Handlers outlive Stop so an approved attempt still reports its outcome.
		handlers.Add(1)
		go func(c domain.Candidate) {
			defer handlers.Done()
			l.handler.Handle(context.WithoutCancel(ctx), c)
		}(c)
	}
}
