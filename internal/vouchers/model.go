// Package vouchers records manual expense vouchers paid from a cash box.
package vouchers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/integration"
)

const dateLayout = "2006-01-02"

// ExpenseInput is a manual expense voucher request. BoxID is the account code of the cash box the
// expense is paid from.
type ExpenseInput struct {
	Date         string           `json:"date" validate:"required,datetime=2006-01-02"`
	ExpenseType  string           `json:"expenseType" validate:"required,max=64"`
	Amount       decimal.Decimal  `json:"amount"`
	Currency     string           `json:"currency" validate:"required,len=3"`
	Payee        string           `json:"payee" validate:"max=200"`
	BoxID        string           `json:"boxId" validate:"required"`
	Notes        string           `json:"notes" validate:"max=500"`
	ExchangeRate *decimal.Decimal `json:"exchangeRate,omitempty"`
}

// Voucher is the posted expense.
type Voucher struct {
	ID          integration.VoucherID `json:"voucherId"`
	Date        time.Time             `json:"date"`
	ExpenseType string                `json:"expenseType"`
	Amount      decimal.Decimal       `json:"amount"`
	Currency    apportion.Currency    `json:"currency"`
	BoxID       string                `json:"boxId"`
	Payee       string                `json:"payee,omitempty"`
	Replayed    bool                  `json:"replayed,omitempty"`
}

// ExpenseAccountKey is the account mapping key an expense type posts to.
func ExpenseAccountKey(expenseType string) string {
	return "expense_" + expenseType
}
