package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the normalized ENS event kind the orchestrator and the
// waiter registry deal in, independent of the wire Activity shape.
type EventType string

const (
	EventOrderFill          EventType = "order_fill"
	EventOrderStatusChange  EventType = "order_status_change"
	EventPositionClosed     EventType = "position_closed"
)

// Event is the internal normalized form of an ENS activity record.
type Event struct {
	Type            EventType
	OrderID         string
	UIC             int
	PositionID      string
	Status          string
	ExecutionPrice  decimal.Decimal
	ExecutionTime   time.Time
	FilledAmount    decimal.Decimal
	Amount          decimal.Decimal
}
