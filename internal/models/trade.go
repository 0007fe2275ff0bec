// Package models defines the domain types shared across the broker,
// streaming, orchestrator and state-persistence layers: trades, the
// broker session, and the normalized ENS event form.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is a trade direction.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Status is a trade's position in the lifecycle state machine.
type Status string

const (
	StatusPending       Status = "pending"
	StatusEntrySubmitted Status = "entry-submitted"
	StatusEntered       Status = "entered"
	StatusExitSubmitted Status = "exit-submitted"
	StatusClosed        Status = "closed"

	StatusSkippedTimePast       Status = "skipped (time-past)"
	StatusSkippedUICMissing     Status = "skipped (uic-missing)"
	StatusSkippedSpread         Status = "skipped (spread)"
	StatusSkippedExisting       Status = "skipped (existing)"
	StatusSkippedPreCheckFailed Status = "skipped (pre-check-failed)"
	StatusEntryFailedOrderError Status = "entry-failed (order-error)"
	StatusEntryFailedUnknown    Status = "entry-failed (unknown)"
	StatusEntryFailedTimeExceeded Status = "entry-failed (time-exceeded)"
	StatusExitFailedOrderError  Status = "exit-failed (order-error)"
	StatusExitFailedUnconfirmed Status = "exit-failed (unconfirmed)"
	StatusClosedPriceUnknown    Status = "closed (price-unknown)"
	StatusClosedPreClosed       Status = "closed (pre-closed)"
)

// IsTerminal reports whether a trade in this status will never transition
// again without manual intervention.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusClosedPriceUnknown, StatusClosedPreClosed,
		StatusSkippedTimePast, StatusSkippedUICMissing, StatusSkippedSpread,
		StatusSkippedExisting, StatusSkippedPreCheckFailed,
		StatusEntryFailedOrderError, StatusEntryFailedUnknown, StatusEntryFailedTimeExceeded,
		StatusExitFailedOrderError, StatusExitFailedUnconfirmed:
		return true
	default:
		return false
	}
}

// HasOpenPosition reports whether the trade currently holds a broker
// position that the exit workflow still needs to manage.
func (s Status) HasOpenPosition() bool {
	return s == StatusEntered || s == StatusExitSubmitted
}

// Trade is one entry in the day's plan: the unit of scheduled work.
type Trade struct {
	ID       int
	Pair     string // e.g. "EUR/USD"
	Side     Side
	LotSize  decimal.Decimal
	EntryTime time.Duration // time-of-day offset, configured timezone
	ExitTime  time.Duration
	AllowedWeekdays []time.Weekday // nil means every day

	// Enriched at load time from the instrument cache.
	UIC      int
	AssetType string
	Decimals int

	// Runtime fields, persisted.
	Status              Status
	EntryOrderID        string
	ExitOrderID         string
	PositionID          string
	EntryFillPrice      decimal.Decimal
	ExitFillPrice       decimal.Decimal
	EntryFilledAmount   decimal.Decimal
	EntryTimestampActual time.Time
	ExitTimestampActual  time.Time
	PipsProfit           decimal.Decimal
}

// Amount converts LotSize into broker base units (lot_size * 10000).
func (t *Trade) Amount() decimal.Decimal {
	return t.LotSize.Mul(decimal.NewFromInt(10000))
}

// AllowedToday reports whether the trade's weekday restriction, if any,
// permits execution on day.
func (t *Trade) AllowedToday(day time.Weekday) bool {
	if len(t.AllowedWeekdays) == 0 {
		return true
	}
	for _, w := range t.AllowedWeekdays {
		if w == day {
			return true
		}
	}
	return false
}

// ExternalReference builds the idempotency key attached to an order for
// this trade, per the `{YYYYMMDD}_trade_{id}_{entry|exit}_v1` format.
func ExternalReference(date time.Time, tradeID int, leg string) string {
	return fmt.Sprintf("%s_trade_%d_%s_v1", date.Format("20060102"), tradeID, leg)
}

const (
	LegEntry = "entry"
	LegExit  = "exit"
)
