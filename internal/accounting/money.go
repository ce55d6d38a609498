package accounting

import "github.com/shopspring/decimal"

// Epsilon is the tolerance for debit/credit equality, one minor currency unit.
var Epsilon = decimal.New(1, -2)

// RoundAmount rounds to the currency minor unit.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Balanced reports |debit - credit| < Epsilon.
func Balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThan(Epsilon)
}
