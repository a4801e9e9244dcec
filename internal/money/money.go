package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are integer minor units (cents).

func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func FromDecimal(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// Format renders cents for humans, e.g. 5900 in eur becomes "59.00 EUR".
func Format(cents int64, currency string) string {
	return ToDecimal(cents).StringFixed(2) + " " + strings.ToUpper(currency)
}

// PercentOf returns floor(amount * pct / 100).
func PercentOf(amount, pct int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(pct)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}
