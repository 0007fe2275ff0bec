package state

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fxtrader/internal/models"
)

// mergeRecord reifies rec's string-encoded prices back into t's
// decimal fields, per spec.md §4.6's "prices are reified to the
// domain's fixed-precision decimal type" requirement.
func mergeRecord(t *models.Trade, rec tradeRecord) error {
	entryFill, err := parseDecimal(rec.EntryFillPrice)
	if err != nil {
		return fmt.Errorf("entry_fill_price: %w", err)
	}
	exitFill, err := parseDecimal(rec.ExitFillPrice)
	if err != nil {
		return fmt.Errorf("exit_fill_price: %w", err)
	}
	entryFilledAmount, err := parseDecimal(rec.EntryFilledAmount)
	if err != nil {
		return fmt.Errorf("entry_filled_amount: %w", err)
	}
	pipsProfit, err := parseDecimal(rec.PipsProfit)
	if err != nil {
		return fmt.Errorf("pips_profit: %w", err)
	}

	t.Status = rec.Status
	t.EntryOrderID = rec.EntryOrderID
	t.ExitOrderID = rec.ExitOrderID
	t.PositionID = rec.PositionID
	t.EntryFillPrice = entryFill
	t.ExitFillPrice = exitFill
	t.EntryFilledAmount = entryFilledAmount
	t.EntryTimestampActual = rec.EntryTimestampActual
	t.ExitTimestampActual = rec.ExitTimestampActual
	t.PipsProfit = pipsProfit
	return nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
