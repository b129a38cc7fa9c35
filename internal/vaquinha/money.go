package vaquinha

import (
	"math"

	"github.com/shopspring/decimal"
)

// Minor units per currency unit (centavos).
const minorDigits = 2

// FromMinor converts minor units into a currency amount (1999 -> 19.99).
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorDigits)
}

// ToMinor converts a currency amount into minor units, rounding half away from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(minorDigits).Round(0).IntPart()
}

// AmountFromFloat validates a model-supplied amount and converts it to minor units.
// Non-finite values and amounts that round to zero or below are rejected.
func AmountFromFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	minor := ToMinor(decimal.NewFromFloat(f))
	if minor <= 0 {
		return 0, ErrInvalidAmount
	}
	return minor, nil
}
