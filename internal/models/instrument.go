package models

import "github.com/shopspring/decimal"

// Instrument is a resolved broker instrument as described by
// GET /ref/v1/instruments. No instrument cache is built from it:
// cmd/trader resolves each plan trade with broker.Client.FetchInstrument.
type Instrument struct {
	UIC       int
	Symbol    string
	AssetType string
	Decimals  int
}

// PipValue returns the smallest conventional price increment for this
// instrument: 0.01 for JPY-quoted pairs, 0.0001 otherwise.
func (i Instrument) PipValue() decimal.Decimal {
	return PipValueForSymbol(i.Symbol)
}

// PipValueForSymbol applies the same JPY-quote rule without requiring a
// resolved Instrument, used by code that only has the pair string.
func PipValueForSymbol(symbol string) decimal.Decimal {
	if len(symbol) >= 3 && symbol[len(symbol)-3:] == "JPY" {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -4)
}
