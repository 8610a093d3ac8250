package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/accounting/shared"
)

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	PeriodID     int64
	Date         time.Time
	Currency     string
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     string
	Lines        []PostingLineInput
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if in.PeriodID == 0 {
		return errors.New("accounting: period required")
	}
	if in.Currency == "" {
		return errors.New("accounting: currency required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("accounting: line %d cannot be both debit and credit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Round(2).Equal(credit.Round(2)) {
		return shared.ErrUnbalanced
	}
	if debit.Round(2).IsZero() {
		return errors.New("accounting: journal amount must be positive")
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("accounting: source id required")
	}
	return nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	EntryID int64
	ActorID string
	Reason  string
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID    int64
	ActorID    string
	Memo       string
	Override   bool
	TargetDate *time.Time
}
