package discovery

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"solana-sniper/internal/domain"
)

// CandidateSource produces at most one candidate per call.
// ok is false when nothing is available this tick.
type CandidateSource interface {
	Next(ctx context.Context) (c domain.Candidate, ok bool, err error)
}

// SourceFunc adapts a function to CandidateSource.
type SourceFunc func(ctx context.Context) (domain.Candidate, bool, error)

// Next implements CandidateSource.
func (f SourceFunc) Next(ctx context.Context) (domain.Candidate, bool, error) {
	return f(ctx)
}

// DefaultSymbols are the tickers the simulated source draws from.
var DefaultSymbols = []string{"PEPE", "DOGE", "CAT", "MOON", "SUN", "STAR", "ROCKET"}

// SimulatedSource fabricates a fresh token on every call.
type SimulatedSource struct {
	mu      sync.Mutex
	symbols []string
	rng     *rand.Rand
	now     func() time.Time
}

var _ CandidateSource = (*SimulatedSource)(nil)

// NewSimulatedSource creates a simulated source. Empty symbols uses DefaultSymbols.
func NewSimulatedSource(symbols []string) *SimulatedSource {
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}
	return &SimulatedSource{
		symbols: append([]string(nil), symbols...),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:     time.Now,
	}
}

// Next implements CandidateSource. It always yields a candidate.
func (s *SimulatedSource) Next(ctx context.Context) (domain.Candidate, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Candidate{}, false, err
	}

	s.mu.Lock()
	symbol := s.symbols[s.rng.IntN(len(s.symbols))]
	s.mu.Unlock()

	return domain.Candidate{
		Address:      solana.NewWallet().PublicKey().String(),
		Symbol:       symbol,
		Source:       domain.SourceSimulated,
		DiscoveredAt: s.now(),
	}, true, nil
}
