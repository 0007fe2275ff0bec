package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	v := decimal.RequireFromString("1.23455")
	assert.True(t, decimal.RequireFromString("1.2346").Equal(RoundHalfUp(v, 4)))
}

func TestDisplacePrice_Up(t *testing.T) {
	reference := decimal.RequireFromString("1.10000")
	pips := decimal.RequireFromString("10")
	pipValue := decimal.RequireFromString("0.0001")
	got := DisplacePrice(reference, pips, pipValue, 1, 5)
	assert.True(t, decimal.RequireFromString("1.10100").Equal(got))
}

func TestDisplacePrice_Down(t *testing.T) {
	reference := decimal.RequireFromString("1.10000")
	pips := decimal.RequireFromString("10")
	pipValue := decimal.RequireFromString("0.0001")
	got := DisplacePrice(reference, pips, pipValue, -1, 5)
	assert.True(t, decimal.RequireFromString("1.09900").Equal(got))
}

func TestPipsProfit_BuySide(t *testing.T) {
	entry := decimal.RequireFromString("1.10000")
	exit := decimal.RequireFromString("1.10050")
	pipValue := decimal.RequireFromString("0.0001")
	got := PipsProfit(entry, exit, true, pipValue)
	assert.True(t, decimal.RequireFromString("5.0").Equal(got))
}

func TestPipsProfit_SellSide(t *testing.T) {
	entry := decimal.RequireFromString("1.10000")
	exit := decimal.RequireFromString("1.10050")
	pipValue := decimal.RequireFromString("0.0001")
	got := PipsProfit(entry, exit, false, pipValue)
	assert.True(t, decimal.RequireFromString("-5.0").Equal(got))
}

func TestPipsProfit_RoundTripSymmetry(t *testing.T) {
	entry := decimal.RequireFromString("1.23456")
	exit := decimal.RequireFromString("1.23512")
	pipValue := decimal.RequireFromString("0.0001")

	forward := PipsProfit(entry, exit, true, pipValue)
	reverse := PipsProfit(exit, entry, true, pipValue)
	assert.True(t, forward.Equal(reverse.Neg()))
}

func TestPipsProfit_ZeroWhenFlat(t *testing.T) {
	p := decimal.RequireFromString("1.23456")
	pipValue := decimal.RequireFromString("0.0001")
	assert.True(t, PipsProfit(p, p, true, pipValue).IsZero())
}
