package apportion

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format renders m for humans, e.g. in audit descriptions. Unknown currencies fall back to
// the plain "amount CODE" form.
func Format(m Money, tag language.Tag) string {
	unit, err := currency.ParseISO(string(m.Currency))
	if err != nil {
		return m.String()
	}
	f, _ := m.Amount.Round(2).Float64()
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(f)))
}
