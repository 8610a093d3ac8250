package apportion

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrPartnerPercentage indicates a partner percentage outside (0, 100].
	ErrPartnerPercentage = errors.New("apportion: partner percentage must be greater than 0 and at most 100")
	// ErrPartnerOverflow indicates the running partner total would exceed 100%.
	ErrPartnerOverflow = errors.New("apportion: partner percentages exceed 100%")
	// ErrPartnerSum indicates partner percentages that do not add up to 100%.
	ErrPartnerSum = errors.New("apportion: partner percentages must sum to 100%")
)

// PartnerDeclaration is a row of the period partner table.
type PartnerDeclaration struct {
	ID          string          `json:"id"`
	PartnerID   string          `json:"partnerId"`
	PartnerName string          `json:"partnerName"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// PartnerAllocation is the computed share of one partner.
type PartnerAllocation struct {
	PartnerID   string          `json:"partnerId"`
	PartnerName string          `json:"partnerName"`
	Share       decimal.Decimal `json:"share"`
}

// Split is the firm/partner division of a single total.
type Split struct {
	FirmShare   decimal.Decimal
	PartnerPool decimal.Decimal
	Allocations []PartnerAllocation
}

// SplitProfit divides total between the firm and the partner pool, then distributes the pool
// across partners. Unbalanced partner percentages are not rejected here; any undistributed
// amount surfaces as the period remainder.
func SplitProfit(total decimal.Decimal, hasPartner bool, firmRetention decimal.Decimal, partners []PartnerDeclaration) Split {
	if !hasPartner {
		return Split{FirmShare: total, PartnerPool: decimal.Zero, Allocations: []PartnerAllocation{}}
	}
	pool := total.Mul(hundred.Sub(firmRetention)).Div(hundred)
	return Split{
		FirmShare:   total.Sub(pool),
		PartnerPool: pool,
		Allocations: Allocate(pool, partners),
	}
}

// Allocate distributes pool across partners by percentage.
func Allocate(pool decimal.Decimal, partners []PartnerDeclaration) []PartnerAllocation {
	out := make([]PartnerAllocation, 0, len(partners))
	for _, p := range partners {
		out = append(out, PartnerAllocation{
			PartnerID:   p.PartnerID,
			PartnerName: p.PartnerName,
			Share:       pool.Mul(p.Percentage).Div(hundred),
		})
	}
	return out
}

// PercentageSum adds up partner percentages.
func PercentageSum(partners []PartnerDeclaration) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range partners {
		sum = sum.Add(p.Percentage)
	}
	return sum
}

// CheckPartnerAddition validates adding (or, with skip >= 0, replacing the row at skip) a
// partner percentage against the existing table.
func CheckPartnerAddition(existing []PartnerDeclaration, pct decimal.Decimal, skip int) error {
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s", ErrPartnerPercentage, pct)
	}
	running := pct
	for i, p := range existing {
		if i == skip {
			continue
		}
		running = running.Add(p.Percentage)
	}
	if running.GreaterThan(hundred.Add(Tolerance)) {
		return fmt.Errorf("%w: %s", ErrPartnerOverflow, running)
	}
	return nil
}

// ValidatePartnerTable enforces the save-time invariant: with partners enabled, percentages sum
// to 100 within Tolerance.
func ValidatePartnerTable(hasPartner bool, partners []PartnerDeclaration) error {
	if !hasPartner {
		return nil
	}
	for _, p := range partners {
		if !p.Percentage.IsPositive() || p.Percentage.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s has %s", ErrPartnerPercentage, p.PartnerName, p.Percentage)
		}
	}
	sum := PercentageSum(partners)
	if !WithinTolerance(sum, hundred) {
		return fmt.Errorf("%w: got %s", ErrPartnerSum, sum)
	}
	return nil
}
