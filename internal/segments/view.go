package segments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
)

// ServiceView is one resolved service line.
type ServiceView struct {
	Count  int                 `json:"count"`
	Rate   apportion.RateValue `json:"rate"`
	Amount decimal.Decimal     `json:"amount"`
}

// EntryView is one computed company row.
type EntryView struct {
	ID            string                        `json:"id"`
	ClientID      string                        `json:"clientId"`
	ClientName    string                        `json:"clientName"`
	Notes         string                        `json:"notes"`
	Tickets       ServiceView                   `json:"tickets"`
	Visas         ServiceView                   `json:"visas"`
	Hotels        ServiceView                   `json:"hotels"`
	Groups        ServiceView                   `json:"groups"`
	Total         decimal.Decimal               `json:"total"`
	FirmShare     decimal.Decimal               `json:"firmShare"`
	PartnerShare  decimal.Decimal               `json:"partnerShare"`
	PartnerShares []apportion.PartnerAllocation `json:"partnerShares"`
}

// View is the response shape of a period or draft.
type View struct {
	ID                      string                         `json:"id,omitempty"`
	FromDate                string                         `json:"fromDate,omitempty"`
	ToDate                  string                         `json:"toDate,omitempty"`
	EntryDate               string                         `json:"entryDate,omitempty"`
	Currency                apportion.Currency             `json:"currency"`
	HasPartner              bool                           `json:"hasPartner"`
	FirmRetentionPercentage decimal.Decimal                `json:"firmRetentionPercentage"`
	Partners                []apportion.PartnerDeclaration `json:"partners"`
	Entries                 []EntryView                    `json:"entries,omitempty"`
	Totals                  apportion.PeriodTotals         `json:"totals"`
	PartnerTotals           []apportion.PartnerAllocation  `json:"partnerTotals,omitempty"`
	State                   State                          `json:"state"`
	SupersedesID            string                         `json:"supersedesId,omitempty"`
	GrossVoucherID          string                         `json:"grossVoucherId,omitempty"`
	PoolVoucherID           string                         `json:"poolVoucherId,omitempty"`
	CreatedBy               string                         `json:"createdBy,omitempty"`
	CreatedAt               *time.Time                     `json:"createdAt,omitempty"`
}

// ViewOf renders a period.
func ViewOf(p Period) View {
	v := View{
		ID:                      p.ID,
		FromDate:                formatDate(p.FromDate),
		ToDate:                  formatDate(p.ToDate),
		EntryDate:               formatDate(p.EntryDate),
		Currency:                p.Currency,
		HasPartner:              p.HasPartner,
		FirmRetentionPercentage: p.FirmRetentionPercentage,
		Partners:                p.Partners,
		Totals:                  p.Totals,
		State:                   p.State,
		SupersedesID:            p.SupersedesID,
		GrossVoucherID:          string(p.GrossVoucher),
		PoolVoucherID:           string(p.PoolVoucher),
		CreatedBy:               p.CreatedBy,
	}
	if v.Partners == nil {
		v.Partners = []apportion.PartnerDeclaration{}
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		v.CreatedAt = &created
	}
	if len(p.Entries) > 0 {
		v.Entries = make([]EntryView, 0, len(p.Entries))
		for _, e := range p.Entries {
			v.Entries = append(v.Entries, entryView(e))
		}
		v.PartnerTotals = apportion.PartnerTotals(p.Entries)
	}
	return v
}

// DraftOf turns a period back into an editable draft.
func DraftOf(p Period) DraftInput {
	retention := p.FirmRetentionPercentage
	draft := DraftInput{
		ID:                      p.ID,
		FromDate:                formatDate(p.FromDate),
		ToDate:                  formatDate(p.ToDate),
		EntryDate:               formatDate(p.EntryDate),
		Currency:                string(p.Currency),
		HasPartner:              p.HasPartner,
		FirmRetentionPercentage: &retention,
		Partners:                make([]PartnerInput, 0, len(p.Partners)),
		Entries:                 make([]EntryInput, 0, len(p.Entries)),
		SupersedesID:            p.SupersedesID,
	}
	for _, partner := range p.Partners {
		draft.Partners = append(draft.Partners, PartnerInput{ID: partner.ID, PartnerID: partner.PartnerID, Percentage: partner.Percentage})
	}
	for _, e := range p.Entries {
		in := EntryInput{ID: e.ID, ClientID: e.ClientID, Notes: e.Notes}
		services := [4]*ServiceInput{&in.Tickets, &in.Visas, &in.Hotels, &in.Groups}
		for i, line := range e.Lines {
			rate := apportion.RateValueOf(line.Rate)
			*services[i] = ServiceInput{Count: line.Count, Rate: &rate}
		}
		draft.Entries = append(draft.Entries, in)
	}
	return draft
}

func entryView(e apportion.CompanyEntry) EntryView {
	v := EntryView{
		ID:            e.ID,
		ClientID:      e.ClientID,
		ClientName:    e.ClientName,
		Notes:         e.Notes,
		Total:         e.Total,
		FirmShare:     e.FirmShare,
		PartnerShare:  e.PartnerShare,
		PartnerShares: e.PartnerShares,
	}
	if v.PartnerShares == nil {
		v.PartnerShares = []apportion.PartnerAllocation{}
	}
	services := [4]*ServiceView{&v.Tickets, &v.Visas, &v.Hotels, &v.Groups}
	for i, line := range e.Lines {
		*services[i] = ServiceView{Count: line.Count, Rate: apportion.RateValueOf(line.Rate), Amount: line.Amount()}
	}
	return v
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
