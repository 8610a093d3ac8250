package apportion

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// RateKind names the variant of a RateSpec on the wire.
type RateKind string

const (
	RateKindFixed      RateKind = "fixed"
	RateKindPercentage RateKind = "percentage"
)

var (
	// ErrUnknownRateKind is returned for rate kinds outside fixed/percentage.
	ErrUnknownRateKind = errors.New("apportion: unknown rate kind")
	// ErrNegativeRate is returned for rate values below zero.
	ErrNegativeRate = errors.New("apportion: rate value must not be negative")
)

// RateSpec is either a FixedRate or a PercentageRate.
type RateSpec interface {
	Kind() RateKind
	Value() decimal.Decimal
	rateSpec()
}

// FixedRate is an amount per unit.
type FixedRate struct {
	Amount decimal.Decimal
}

func (FixedRate) Kind() RateKind           { return RateKindFixed }
func (r FixedRate) Value() decimal.Decimal { return r.Amount }
func (FixedRate) rateSpec()                {}

// PercentageRate is a percentage of an implicit unit value of 1.
type PercentageRate struct {
	Percent decimal.Decimal
}

func (PercentageRate) Kind() RateKind           { return RateKindPercentage }
func (r PercentageRate) Value() decimal.Decimal { return r.Percent }
func (PercentageRate) rateSpec()                {}

// Fixed is shorthand for FixedRate{Amount: amount}.
func Fixed(amount decimal.Decimal) RateSpec { return FixedRate{Amount: amount} }

// Percentage is shorthand for PercentageRate{Percent: pct}.
func Percentage(pct decimal.Decimal) RateSpec { return PercentageRate{Percent: pct} }

// ParseRateSpec validates a kind/value pair coming from a request or a stored row.
func ParseRateSpec(kind RateKind, value decimal.Decimal) (RateSpec, error) {
	if value.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeRate, value)
	}
	switch kind {
	case RateKindFixed:
		return FixedRate{Amount: value}, nil
	case RateKindPercentage:
		return PercentageRate{Percent: value}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRateKind, kind)
	}
}

// Resolve returns the amount earned on count units at the given rate. No rounding is applied.
func Resolve(count int, spec RateSpec) decimal.Decimal {
	if count <= 0 || spec == nil {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(count))
	switch r := spec.(type) {
	case FixedRate:
		if r.Amount.IsZero() {
			return decimal.Zero
		}
		return n.Mul(r.Amount)
	case PercentageRate:
		if r.Percent.IsZero() {
			return decimal.Zero
		}
		return n.Mul(r.Percent).Div(hundred)
	default:
		panic(fmt.Sprintf("apportion: unhandled rate spec %T", spec))
	}
}

// RateValue is the serialised form of a RateSpec.
type RateValue struct {
	Kind  RateKind        `json:"kind" validate:"required,oneof=fixed percentage"`
	Value decimal.Decimal `json:"value"`
}

// Spec converts the serialised form back into a RateSpec.
func (v RateValue) Spec() (RateSpec, error) {
	return ParseRateSpec(v.Kind, v.Value)
}

// RateValueOf serialises a RateSpec.
func RateValueOf(spec RateSpec) RateValue {
	if spec == nil {
		return RateValue{Kind: RateKindPercentage, Value: decimal.Zero}
	}
	return RateValue{Kind: spec.Kind(), Value: spec.Value()}
}

// RateOverrides holds serialised rates for some of the service lines.
type RateOverrides map[Service]RateValue

// Table converts the overrides into a RateTable. Lines without an override stay nil so the
// result can be merged over a fallback table.
func (o RateOverrides) Table() (RateTable, error) {
	var table RateTable
	for svc, value := range o {
		idx, err := svc.Index()
		if err != nil {
			return RateTable{}, err
		}
		spec, err := value.Spec()
		if err != nil {
			return RateTable{}, fmt.Errorf("%s: %w", svc, err)
		}
		table[idx] = spec
	}
	return table, nil
}

// OverridesOf serialises every slot of a rate table.
func OverridesOf(table RateTable) RateOverrides {
	out := make(RateOverrides, len(Services))
	for i, svc := range Services {
		if table[i] != nil {
			out[svc] = RateValueOf(table[i])
		}
	}
	return out
}
