// Package segments builds, validates, saves and posts segment periods: per-company service
// profit for a date range and its split between the firm and revenue-share partners.
package segments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/integration"
	"github.com/rawdatain/backoffice/internal/shared"
)

// State is the lifecycle position of a period.
type State string

const (
	StateDraft     State = "draft"
	StateValidated State = "validated"
	StateSaved     State = "saved"
)

// ErrAlreadySaved is returned when saving over a period id that exists.
var ErrAlreadySaved = fmt.Errorf("%w: segment period already saved", shared.ErrDuplicate)

// Period is a set of company entries sharing one date range and one partner table.
type Period struct {
	ID                      string
	FromDate                time.Time
	ToDate                  time.Time
	EntryDate               time.Time
	Currency                apportion.Currency
	HasPartner              bool
	FirmRetentionPercentage decimal.Decimal
	Partners                []apportion.PartnerDeclaration
	Entries                 []apportion.CompanyEntry
	Totals                  apportion.PeriodTotals
	State                   State
	SupersedesID            string
	GrossVoucher            integration.VoucherID
	PoolVoucher             integration.VoucherID
	CreatedBy               string
	CreatedAt               time.Time
}

// Recompute applies the partner table to every entry and refreshes the totals.
func (p *Period) Recompute() {
	for i, entry := range p.Entries {
		p.Entries[i] = entry.Apply(p.HasPartner, p.FirmRetentionPercentage, p.Partners)
	}
	p.Totals = apportion.AggregatePeriod(p.Entries)
}

// ClientIDs returns the distinct clients of the period in entry order.
func (p Period) ClientIDs() []string {
	seen := make(map[string]struct{}, len(p.Entries))
	out := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		if _, ok := seen[e.ClientID]; ok {
			continue
		}
		seen[e.ClientID] = struct{}{}
		out = append(out, e.ClientID)
	}
	return out
}

// ListFilters selects periods whose range overlaps From..To. Zero bounds are open.
type ListFilters struct {
	From time.Time
	To   time.Time
}

// MonthlyTotal is the firm share of saved periods with an entry date in one month.
type MonthlyTotal struct {
	Currency  apportion.Currency
	FirmShare decimal.Decimal
	Periods   int
}
