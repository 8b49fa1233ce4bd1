package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EngineState is the run/stop flag of the engine.
type EngineState int

const (
	StateStopped EngineState = iota
	StateRunning
)

// String returns the string representation of EngineState.
func (s EngineState) String() string {
	if s == StateRunning {
		return "RUNNING"
	}
	return "STOPPED"
}

// MarshalText renders the state as its string form in JSON payloads.
func (s EngineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form produced by MarshalText.
func (s *EngineState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "RUNNING":
		*s = StateRunning
	case "STOPPED":
		*s = StateStopped
	default:
		return fmt.Errorf("unknown engine state %q", b)
	}
	return nil
}

// EngineConfig is the immutable configuration snapshot taken at start.
type EngineConfig struct {
	NetworkEndpoint string
	SnipeAmount     decimal.Decimal // SOL per trade
}

// BalanceSnapshot is the last known balance of the active identity.
type BalanceSnapshot struct {
	Value     decimal.Decimal // SOL
	FetchedAt time.Time
}

// BalancePoint is one recorded balance observation for an address.
type BalancePoint struct {
	Address   string
	Value     decimal.Decimal // SOL
	FetchedAt time.Time
}

// LogEntry is one line of the operational timeline.
type LogEntry struct {
	Seq       uint64 // monotonically increasing, survives eviction
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// LogLevel tags a log entry for rendering and filtering.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// String renders the entry the way the operator console shows it.
func (e LogEntry) String() string {
	return "[" + e.Timestamp.Format("15:04:05") + "] " + e.Message
}
