package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64         `json:"id"`
	Number       int64         `json:"number"`
	PeriodID     int64         `json:"periodId"`
	Date         time.Time     `json:"date"`
	Currency     string        `json:"currency"`
	SourceModule string        `json:"sourceModule"`
	SourceID     uuid.UUID     `json:"sourceId"`
	Memo         string        `json:"memo"`
	PostedBy     string        `json:"postedBy,omitempty"`
	PostedAt     time.Time     `json:"postedAt"`
	Status       JournalStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Lines        []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID        int64           `json:"id"`
	JournalID int64           `json:"journalId"`
	AccountID int64           `json:"accountId"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ListFilters narrows journal listings.
type ListFilters struct {
	SourceModule string
	Status       JournalStatus
	Limit        int
}
