package domain

import "time"

// Candidate is a discovered token eligible for a trade attempt.
// It is ephemeral and consumed once by the dispatcher.
type Candidate struct {
	Address      string    // token mint address (base58)
	Symbol       string    // ticker, "UNKNOWN" when not resolvable
	Source       Source    // where the candidate came from
	Signature    string    // discovery transaction signature (empty for simulated/manual)
	DiscoveredAt time.Time // wall clock at discovery
}

// ShortAddress returns the first 8 characters of the address for log lines.
func (c Candidate) ShortAddress() string {
	if len(c.Address) <= 8 {
		return c.Address
	}
	return c.Address[:8]
}

// DisplaySymbol returns the symbol, or "UNKNOWN" when empty.
func (c Candidate) DisplaySymbol() string {
	if c.Symbol == "" {
		return UnknownSymbol
	}
	return c.Symbol
}

// UnknownSymbol is used for candidates whose ticker cannot be resolved.
const UnknownSymbol = "UNKNOWN"
