package settings

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
)

// SegmentSettings are the firm-wide defaults of new segment periods.
type SegmentSettings struct {
	FirmRetentionPercentage decimal.Decimal         `json:"firmRetentionPercentage"`
	Rates                   apportion.RateOverrides `json:"rates,omitempty"`
}

// RateTable returns the configured rates with DefaultRates filling the gaps.
func (s SegmentSettings) RateTable() (apportion.RateTable, error) {
	table, err := s.Rates.Table()
	if err != nil {
		return apportion.RateTable{}, err
	}
	return table.Merge(apportion.DefaultRates()), nil
}

// FinanceAccounts holds the account keys used when posting. Each value is an account mapping key
// or a chart of accounts code.
type FinanceAccounts struct {
	DefaultReceivable  string            `json:"defaultReceivable"`
	DefaultPayable     string            `json:"defaultPayable"`
	DefaultRevenue     string            `json:"defaultRevenue"`
	DefaultExpense     string            `json:"defaultExpense"`
	DefaultCash        string            `json:"defaultCash"`
	PartnerPayable     string            `json:"partnerPayable"`
	ProfitDistribution string            `json:"profitDistribution"`
	RevenueMap         map[string]string `json:"revenueMap,omitempty"`
}

// Revenue returns the revenue account of category, falling back to DefaultRevenue.
func (f FinanceAccounts) Revenue(category string) string {
	if account, ok := f.RevenueMap[category]; ok && account != "" {
		return account
	}
	return f.DefaultRevenue
}

// AppSettings is the singleton configuration document.
type AppSettings struct {
	DefaultCurrency apportion.Currency   `json:"defaultCurrency"`
	Currencies      []apportion.Currency `json:"currencies"`
	Segment         SegmentSettings      `json:"segment"`
	FinanceAccounts FinanceAccounts      `json:"financeAccounts"`
	UpdatedBy       string               `json:"updatedBy,omitempty"`
	UpdatedAt       time.Time            `json:"updatedAt,omitempty"`
}

// Defaults is served until the settings document is first saved.
func Defaults() AppSettings {
	return AppSettings{
		DefaultCurrency: apportion.CurrencyUSD,
		Currencies:      []apportion.Currency{apportion.CurrencyUSD, apportion.CurrencyIQD},
		Segment: SegmentSettings{
			FirmRetentionPercentage: decimal.NewFromInt(100),
			Rates:                   apportion.OverridesOf(apportion.DefaultRates()),
		},
		FinanceAccounts: FinanceAccounts{
			DefaultReceivable:  "1200",
			DefaultPayable:     "2100",
			DefaultRevenue:     "4100",
			DefaultExpense:     "6100",
			DefaultCash:        "1100",
			PartnerPayable:     "2300",
			ProfitDistribution: "3200",
			RevenueMap:         map[string]string{"segments": "4100"},
		},
	}
}

// Supports reports whether currency is enabled.
func (s AppSettings) Supports(currency apportion.Currency) bool {
	for _, c := range s.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}
