package apportion

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Service identifies one of the four revenue lines of a company entry.
type Service string

const (
	ServiceTickets Service = "tickets"
	ServiceVisas   Service = "visas"
	ServiceHotels  Service = "hotels"
	ServiceGroups  Service = "groups"
)

// Services lists the service lines in their fixed order.
var Services = [4]Service{ServiceTickets, ServiceVisas, ServiceHotels, ServiceGroups}

// Index returns the position of s within Services.
func (s Service) Index() (int, error) {
	for i, candidate := range Services {
		if candidate == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("apportion: unknown service %q", s)
}

// RateTable holds one rate per service line, indexed like Services.
type RateTable [4]RateSpec

// DefaultRates is used for companies without their own segment settings.
func DefaultRates() RateTable {
	return RateTable{
		Percentage(decimal.NewFromInt(50)),
		Percentage(decimal.NewFromInt(100)),
		Percentage(decimal.NewFromInt(100)),
		Percentage(decimal.NewFromInt(100)),
	}
}

// For returns the rate configured for s.
func (t RateTable) For(s Service) RateSpec {
	idx, err := s.Index()
	if err != nil {
		return nil
	}
	return t[idx]
}

// Merge fills nil slots of t from fallback.
func (t RateTable) Merge(fallback RateTable) RateTable {
	out := t
	for i := range out {
		if out[i] == nil {
			out[i] = fallback[i]
		}
	}
	return out
}

// ServiceLine is the count and rate for one service of a company entry.
type ServiceLine struct {
	Service Service
	Count   int
	Rate    RateSpec
}

// Amount resolves the line.
func (l ServiceLine) Amount() decimal.Decimal {
	return Resolve(l.Count, l.Rate)
}

// ServiceLines is the fixed set of four lines of a company entry.
type ServiceLines [4]ServiceLine

// NewServiceLines builds lines from counts and a rate table.
func NewServiceLines(counts [4]int, rates RateTable) ServiceLines {
	var lines ServiceLines
	for i, svc := range Services {
		lines[i] = ServiceLine{Service: svc, Count: counts[i], Rate: rates[i]}
	}
	return lines
}

// CompanyTotal sums the resolved amounts of the four lines.
func CompanyTotal(lines ServiceLines) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount())
	}
	return total
}

// CompanyEntry is one company's contribution to a period.
type CompanyEntry struct {
	ID            string
	ClientID      string
	ClientName    string
	Lines         ServiceLines
	Notes         string
	Total         decimal.Decimal
	FirmShare     decimal.Decimal
	PartnerShare  decimal.Decimal
	PartnerShares []PartnerAllocation
}

// Apply recomputes Total and the split fields of the entry.
func (e CompanyEntry) Apply(hasPartner bool, firmRetention decimal.Decimal, partners []PartnerDeclaration) CompanyEntry {
	e.Total = CompanyTotal(e.Lines)
	split := SplitProfit(e.Total, hasPartner, firmRetention, partners)
	e.FirmShare = split.FirmShare
	e.PartnerShare = split.PartnerPool
	e.PartnerShares = split.Allocations
	return e
}
