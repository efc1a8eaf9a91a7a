// Package money provides fixed-point helpers for monetary amounts.
//
// All monetary arithmetic in the ledger is performed on integer minor units
// (cents for USD) to avoid floating-point drift. Conversion to and from
// display decimals happens only at the API boundary.
package money

import (
	"github.com/shopspring/decimal"
)

// DefaultPlaces is the number of decimal places for USD-denominated amounts.
const DefaultPlaces = 2

// ToMinor converts a decimal amount to integer minor units, rounding
// halves away from zero.
func ToMinor(amount float64, places int32) int64 {
	return decimal.NewFromFloat(amount).Shift(places).Round(0).IntPart()
}

// FromMinor renders integer minor units as a fixed-point decimal string.
func FromMinor(minor int64, places int32) string {
	return decimal.New(minor, -places).StringFixed(places)
}

// ToMinorDefault converts an amount using DefaultPlaces.
func ToMinorDefault(amount float64) int64 {
	return ToMinor(amount, DefaultPlaces)
}

// FromMinorDefault renders minor units using DefaultPlaces.
func FromMinorDefault(minor int64) string {
	return FromMinor(minor, DefaultPlaces)
}

// MulToMinor computes round(price * quantity * rate) in minor units.
// Used for notional-based fees where price is a unit price in major units.
func MulToMinor(price, quantity, rate float64, places int32) int64 {
	return decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(quantity)).
		Mul(decimal.NewFromFloat(rate)).
		Shift(places).
		Round(0).
		IntPart()
}

// ScaleMinor computes round(minor * quantity), keeping the result in minor
// units. Quantities may be fractional for crypto venues.
func ScaleMinor(minor int64, quantity float64) int64 {
	return decimal.NewFromInt(minor).
		Mul(decimal.NewFromFloat(quantity)).
		Round(0).
		IntPart()
}
