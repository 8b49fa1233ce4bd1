package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a failed chain operation.
type ErrorKind string

const (
	ErrorKindNone                    ErrorKind = ""
	ErrorKindInvalidCredentialFormat ErrorKind = "INVALID_CREDENTIAL_FORMAT"
	ErrorKindNetworkUnavailable      ErrorKind = "NETWORK_UNAVAILABLE"
	ErrorKindUnknownIdentity         ErrorKind = "UNKNOWN_IDENTITY"
	ErrorKindSubmissionRejected      ErrorKind = "SUBMISSION_REJECTED"
)

// TradeResult is the outcome of one dispatch attempt.
// Produced once per attempt and never mutated afterwards.
type TradeResult struct {
	AttemptID     string // uuid assigned before submission
	Candidate     Candidate
	Amount        decimal.Decimal // SOL
	Success       bool
	TransactionID string    // empty on failure
	ErrorKind     ErrorKind // ErrorKindNone on success
	Error         string    // human readable failure detail
	SubmittedAt   time.Time
	Latency       time.Duration
}

// ShortTransactionID returns the first 8 characters of the transaction id.
func (r TradeResult) ShortTransactionID() string {
	if len(r.TransactionID) <= 8 {
		return r.TransactionID
	}
	return r.TransactionID[:8]
}
