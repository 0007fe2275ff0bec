// Package money implements the fixed-precision price and pip arithmetic
// spec.md §9 requires: no binary floating point in comparisons or
// rounding, half-up quantization to instrument decimals.
package money

import (
	"github.com/shopspring/decimal"
)

// RoundHalfUp rounds v to places decimal digits using half-away-from-zero
// rounding (decimal.Decimal.Round's convention), the convention the
// broker itself uses for bracket order prices.
func RoundHalfUp(v decimal.Decimal, places int32) decimal.Decimal {
	return v.Round(places)
}

// DisplacePrice computes the bracket order price: the reference price
// (current ask for Buy entries, current bid for Sell entries) displaced
// by pips, rounded half-up to decimals. direction is +1 to move the
// price up (take-profit on a Buy, stop-loss on a Sell) or -1 to move it
// down.
func DisplacePrice(reference, pips decimal.Decimal, pipValue decimal.Decimal, direction int, decimals int32) decimal.Decimal {
	offset := pips.Mul(pipValue)
	if direction < 0 {
		offset = offset.Neg()
	}
	return RoundHalfUp(reference.Add(offset), decimals)
}

// PipsProfit computes (exit - entry) * sign(side) / pipValue, rounded
// half-up to 0.1 pip, per spec.md §4.4 step 6.
func PipsProfit(entry, exit decimal.Decimal, buy bool, pipValue decimal.Decimal) decimal.Decimal {
	diff := exit.Sub(entry)
	if !buy {
		diff = diff.Neg()
	}
	if pipValue.IsZero() {
		return decimal.Zero
	}
	pips := diff.Div(pipValue)
	return pips.Round(1)
}
