package integration

import (
	"fmt"

	"github.com/rawdatain/backoffice/internal/shared"
)

// FailureReason classifies why a posting could not be made.
type FailureReason string

const (
	ReasonInvalidRequest    FailureReason = "invalid_request"
	ReasonUnknownAccount    FailureReason = "unknown_account"
	ReasonNoOpenPeriod      FailureReason = "no_open_period"
	ReasonLedgerUnavailable FailureReason = "ledger_unavailable"
	ReasonRejected          FailureReason = "rejected"
)

// PostingError reports a failed posting. It matches shared.ErrPosting and unwraps to the
// ledger error that caused it.
type PostingError struct {
	Reason     FailureReason
	SourceType string
	SourceID   string
	Account    string
	Err        error
}

func (e *PostingError) Error() string {
	msg := fmt.Sprintf("posting %s %s: %s", e.SourceType, e.SourceID, e.Reason)
	if e.Account != "" {
		msg += " (" + e.Account + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PostingError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, shared.ErrPosting) match.
func (e *PostingError) Is(target error) bool {
	return target == shared.ErrPosting
}
