package relations

import (
	"time"

	"github.com/rawdatain/backoffice/internal/apportion"
)

// ClientType distinguishes people from companies.
type ClientType string

const (
	TypeIndividual ClientType = "individual"
	TypeCompany    ClientType = "company"
)

// RelationType tells whether the relation buys from us, sells to us, or both.
type RelationType string

const (
	RelationClient   RelationType = "client"
	RelationSupplier RelationType = "supplier"
	RelationBoth     RelationType = "both"
)

// PaymentType is the default settlement mode of the relation.
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
)

// Status toggles visibility in pickers.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Client is a client or supplier record.
type Client struct {
	ID              string                  `json:"id"`
	Code            string                  `json:"code"`
	Name            string                  `json:"name"`
	Type            ClientType              `json:"type"`
	RelationType    RelationType            `json:"relationType"`
	PaymentType     PaymentType             `json:"paymentType"`
	Status          Status                  `json:"status"`
	Phone           string                  `json:"phone"`
	Email           string                  `json:"email"`
	Country         string                  `json:"country"`
	Province        string                  `json:"province"`
	SegmentSettings apportion.RateOverrides `json:"segmentSettings,omitempty"`
	UseCount        int                     `json:"useCount"`
	CreatedBy       string                  `json:"createdBy"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// IsClient reports whether the relation may appear as a client.
func (c Client) IsClient() bool {
	return c.RelationType == RelationClient || c.RelationType == RelationBoth
}

// IsSupplier reports whether the relation may appear as a supplier.
func (c Client) IsSupplier() bool {
	return c.RelationType == RelationSupplier || c.RelationType == RelationBoth
}

// SegmentRates returns the company rate table merged over fallback.
func (c Client) SegmentRates(fallback apportion.RateTable) (apportion.RateTable, error) {
	table, err := c.SegmentSettings.Table()
	if err != nil {
		return apportion.RateTable{}, err
	}
	return table.Merge(fallback), nil
}

// ClientInput is the writable part of a Client.
type ClientInput struct {
	Code            string                  `json:"code" validate:"max=32"`
	Name            string                  `json:"name" validate:"required,max=200"`
	Type            ClientType              `json:"type" validate:"omitempty,oneof=individual company"`
	RelationType    RelationType            `json:"relationType" validate:"omitempty,oneof=client supplier both"`
	PaymentType     PaymentType             `json:"paymentType" validate:"omitempty,oneof=cash credit"`
	Status          Status                  `json:"status" validate:"omitempty,oneof=active inactive"`
	Phone           string                  `json:"phone" validate:"max=50"`
	Email           string                  `json:"email" validate:"omitempty,email"`
	Country         string                  `json:"country" validate:"max=100"`
	Province        string                  `json:"province" validate:"max=100"`
	SegmentSettings apportion.RateOverrides `json:"segmentSettings"`
}

// ListFilters narrows client listings. RelationType, PaymentType, Status, Country and Province are
// applied by the repository; Search, Sort and paging are applied over the filtered set.
type ListFilters struct {
	RelationType    RelationType
	PaymentType     PaymentType
	Status          Status
	IncludeInactive bool
	Country         string
	Province        string
	Search          string
	Sort            string
	Page            int
	PerPage         int
	All             bool
}

// Option is a picker entry.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
