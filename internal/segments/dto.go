package segments

import (
	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
)

const dateLayout = "2006-01-02"

// ServiceInput is the count and optional rate override of one service line.
type ServiceInput struct {
	Count int                  `json:"count" validate:"min=0"`
	Rate  *apportion.RateValue `json:"rate,omitempty"`
}

// EntryInput is one company row of a draft.
type EntryInput struct {
	ID       string       `json:"id" validate:"omitempty,uuid"`
	ClientID string       `json:"clientId" validate:"required,uuid"`
	Notes    string       `json:"notes" validate:"max=500"`
	Tickets  ServiceInput `json:"tickets"`
	Visas    ServiceInput `json:"visas"`
	Hotels   ServiceInput `json:"hotels"`
	Groups   ServiceInput `json:"groups"`
}

func (in EntryInput) services() [4]ServiceInput {
	return [4]ServiceInput{in.Tickets, in.Visas, in.Hotels, in.Groups}
}

// PartnerInput is one row of the partner table.
type PartnerInput struct {
	ID         string          `json:"id" validate:"omitempty,uuid"`
	PartnerID  string          `json:"partnerId" validate:"required,uuid"`
	Percentage decimal.Decimal `json:"percentage"`
}

// DraftInput is the whole draft as held by the client. Drafts are never stored.
type DraftInput struct {
	ID                      string           `json:"id" validate:"omitempty,uuid"`
	FromDate                string           `json:"fromDate" validate:"omitempty,datetime=2006-01-02"`
	ToDate                  string           `json:"toDate" validate:"omitempty,datetime=2006-01-02"`
	EntryDate               string           `json:"entryDate" validate:"omitempty,datetime=2006-01-02"`
	Currency                string           `json:"currency" validate:"omitempty,len=3"`
	HasPartner              bool             `json:"hasPartner"`
	FirmRetentionPercentage *decimal.Decimal `json:"firmRetentionPercentage,omitempty"`
	Partners                []PartnerInput   `json:"partners" validate:"dive"`
	Entries                 []EntryInput     `json:"entries" validate:"max=500,dive"`
	SupersedesID            string           `json:"supersedesId" validate:"omitempty,uuid"`
}

// PartnerEdit adds a partner to a draft, or replaces the row at Index when Index is set.
type PartnerEdit struct {
	Draft   DraftInput   `json:"draft"`
	Partner PartnerInput `json:"partner"`
	Index   *int         `json:"index,omitempty" validate:"omitempty,min=0"`
}
