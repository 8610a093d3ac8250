// Package apportion computes per-company service profit and its split between the firm and
// revenue-share partners. Every function in this package is pure and never fails on well-formed
// input; validation lives at the data-entry boundary.
package apportion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an upper-case ISO 4217 code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyIQD Currency = "IQD"
)

var (
	// ErrCurrencyMismatch indicates arithmetic across two currencies.
	ErrCurrencyMismatch = errors.New("apportion: currency mismatch")
	// ErrCurrencyRequired indicates a missing currency tag.
	ErrCurrencyRequired = errors.New("apportion: currency required")
)

var hundred = decimal.NewFromInt(100)

// Tolerance is the absolute slack allowed when comparing percentage sums and remainders.
var Tolerance = decimal.RequireFromString("0.01")

// ParseCurrency normalises a currency code.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrCurrencyRequired, code)
	}
	return Currency(code), nil
}

// Money is an amount tagged with its currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// NewMoney builds a Money value.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns zero in the given currency.
func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Add sums two values of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub subtracts other from m.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Round returns the amount rounded half away from zero to two places.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(2), Currency: m.Currency}
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + string(m.Currency)
}

// WithinTolerance reports whether |a-b| <= Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
