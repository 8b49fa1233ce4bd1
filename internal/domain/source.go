package domain

// Source identifies which producer surfaced a candidate.
type Source string

const (
	SourceSimulated Source = "SIMULATED"
	SourcePumpFun   Source = "PUMPFUN"
	SourceRaydium   Source = "RAYDIUM"
	SourceManual    Source = "MANUAL"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	switch s {
	case SourceSimulated, SourcePumpFun, SourceRaydium, SourceManual:
		return true
	}
	return false
}
