package apportion

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrRemainder indicates the partner pool was not fully distributed.
var ErrRemainder = errors.New("apportion: partner pool not fully distributed")

// PeriodTotals summarises a set of company entries.
type PeriodTotals struct {
	GrandTotal       decimal.Decimal `json:"grandTotal"`
	FirmTotal        decimal.Decimal `json:"firmTotal"`
	PartnerPoolTotal decimal.Decimal `json:"partnerPoolTotal"`
	DistributedTotal decimal.Decimal `json:"distributedTotal"`
	Remainder        decimal.Decimal `json:"remainder"`
}

// AggregatePeriod sums the entries of a period.
func AggregatePeriod(entries []CompanyEntry) PeriodTotals {
	totals := PeriodTotals{
		GrandTotal:       decimal.Zero,
		FirmTotal:        decimal.Zero,
		PartnerPoolTotal: decimal.Zero,
		DistributedTotal: decimal.Zero,
	}
	for _, e := range entries {
		totals.GrandTotal = totals.GrandTotal.Add(e.Total)
		totals.FirmTotal = totals.FirmTotal.Add(e.FirmShare)
		totals.PartnerPoolTotal = totals.PartnerPoolTotal.Add(e.PartnerShare)
		for _, a := range e.PartnerShares {
			totals.DistributedTotal = totals.DistributedTotal.Add(a.Share)
		}
	}
	totals.Remainder = totals.PartnerPoolTotal.Sub(totals.DistributedTotal)
	return totals
}

// Balanced reports whether the remainder is within Tolerance of zero.
func (t PeriodTotals) Balanced() bool {
	return WithinTolerance(t.Remainder, decimal.Zero)
}

// CheckBalanced returns ErrRemainder when the totals are not balanced.
func (t PeriodTotals) CheckBalanced() error {
	if t.Balanced() {
		return nil
	}
	return fmt.Errorf("%w: remainder %s", ErrRemainder, t.Remainder.StringFixed(2))
}

// PartnerTotals groups the allocations of every entry by partner.
func PartnerTotals(entries []CompanyEntry) []PartnerAllocation {
	index := make(map[string]int)
	var out []PartnerAllocation
	for _, e := range entries {
		for _, a := range e.PartnerShares {
			pos, ok := index[a.PartnerID]
			if !ok {
				index[a.PartnerID] = len(out)
				out = append(out, PartnerAllocation{PartnerID: a.PartnerID, PartnerName: a.PartnerName, Share: decimal.Zero})
				pos = len(out) - 1
			}
			out[pos].Share = out[pos].Share.Add(a.Share)
		}
	}
	return out
}
