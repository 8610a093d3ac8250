// Package profitsharing records finalized monthly profit and how it is shared between partners.
// System months are rolled up from saved segment periods; manual distributions cover an arbitrary
// date range and are posted to the ledger.
package profitsharing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/integration"
)

const monthLayout = "2006-01"

// MonthlyProfit is either a system month (ID "YYYY-MM", one record per currency) or a manual
// distribution (opaque ID with a date range and embedded partners).
type MonthlyProfit struct {
	ID           string                `json:"id"`
	TotalProfit  decimal.Decimal       `json:"totalProfit"`
	Currency     apportion.Currency    `json:"currency"`
	FromSystem   bool                  `json:"fromSystem"`
	Notes        string                `json:"notes,omitempty"`
	FromDate     string                `json:"fromDate,omitempty"`
	ToDate       string                `json:"toDate,omitempty"`
	Partners     []ProfitShare         `json:"partners,omitempty"`
	Revision     int                   `json:"revision,omitempty"`
	PostedAmount decimal.Decimal       `json:"postedAmount"`
	VoucherID    integration.VoucherID `json:"voucherId,omitempty"`
	CreatedBy    string                `json:"createdBy,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// sortKey orders system months by their first day and manual records by creation time.
func (m MonthlyProfit) sortKey() time.Time {
	if m.FromSystem {
		if month, err := time.Parse(monthLayout, m.ID); err == nil {
			return month
		}
	}
	return m.CreatedAt
}

// Distributed sums the partner amounts of a manual record.
func (m MonthlyProfit) Distributed() decimal.Decimal {
	total := decimal.Zero
	for _, p := range m.Partners {
		total = total.Add(p.Amount)
	}
	return total
}

// ProfitShare is one partner's share of a month.
type ProfitShare struct {
	ID            string             `json:"id"`
	ProfitMonthID string             `json:"profitMonthId"`
	Currency      apportion.Currency `json:"currency,omitempty"`
	PartnerID     string             `json:"partnerId"`
	PartnerName   string             `json:"partnerName"`
	Percentage    decimal.Decimal    `json:"percentage"`
	Amount        decimal.Decimal    `json:"amount"`
	Notes         string             `json:"notes,omitempty"`
	CreatedBy     string             `json:"createdBy,omitempty"`
	CreatedAt     time.Time          `json:"createdAt,omitempty"`
}

// ShareInput creates or updates a share of a system month.
type ShareInput struct {
	ProfitMonthID string           `json:"profitMonthId" validate:"required,datetime=2006-01"`
	Currency      string           `json:"currency" validate:"required,len=3"`
	PartnerID     string           `json:"partnerId" validate:"required,uuid"`
	Percentage    decimal.Decimal  `json:"percentage"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Notes         string           `json:"notes" validate:"max=500"`
}

// ManualPartnerInput is one partner row of a manual distribution.
type ManualPartnerInput struct {
	PartnerID  string          `json:"partnerId" validate:"required,uuid"`
	Percentage decimal.Decimal `json:"percentage"`
	Notes      string          `json:"notes" validate:"max=500"`
}

// ManualInput creates or replaces a manual distribution.
type ManualInput struct {
	FromDate string               `json:"fromDate" validate:"required,datetime=2006-01-02"`
	ToDate   string               `json:"toDate" validate:"required,datetime=2006-01-02"`
	Profit   decimal.Decimal      `json:"profit"`
	Currency string               `json:"currency" validate:"required,len=3"`
	Partners []ManualPartnerInput `json:"partners" validate:"required,min=1,dive"`
}
