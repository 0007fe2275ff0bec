package ens

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"fxtrader/internal/models"
)

// controlReasons trigger a reconnect rather than producing a normalized
// event, per spec.md §4.2.
var controlReasons = map[string]bool{
	"SubscriptionPermanentlyDisabled": true,
	"SessionLimitExceeded":            true,
	"SubscriptionDisabled":            true,
}

var controlMessageTypes = map[string]bool{
	"disconnect":          true,
	"reset":               true,
	"reset-subscriptions": true,
}

// controlEnvelope is the subset of a control payload's shape this
// client inspects to decide whether to reconnect.
type controlEnvelope struct {
	Reason      string `json:"Reason"`
	MessageType string `json:"MessageType"`
}

// activityEnvelope is an Activity payload: a list of heterogeneous
// Orders/Positions records.
type activityEnvelope struct {
	Data []json.RawMessage `json:"Data"`
}

type activityRecord struct {
	ActivityType string `json:"ActivityType"`
}

type orderActivity struct {
	OrderID      string          `json:"OrderId"`
	UIC          int             `json:"Uic"`
	PositionID   string          `json:"PositionId"`
	Status       string          `json:"Status"`
	SubStatus    string          `json:"SubStatus"`
	AveragePrice decimal.Decimal `json:"AveragePrice"`
	FilledAmount decimal.Decimal `json:"FilledAmount"`
	Amount       decimal.Decimal `json:"Amount"`
}

type positionActivity struct {
	PositionID    string          `json:"PositionId"`
	UIC           int             `json:"Uic"`
	PositionEvent string          `json:"PositionEvent"`
	Amount        decimal.Decimal `json:"Amount"`
}

// IsControl reports whether payload is a control message that must
// trigger a reconnect instead of being classified as activity.
func IsControl(payload []byte) bool {
	var env controlEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	return controlReasons[env.Reason] || controlMessageTypes[env.MessageType]
}

// ClassifyActivity parses an Activity payload into zero or more
// normalized ENS events, per spec.md §4.2's Order/Position activity
// rules. Records with an unrecognized ActivityType are ignored.
func ClassifyActivity(payload []byte) ([]models.Event, error) {
	var env activityEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}

	var events []models.Event
	for _, raw := range env.Data {
		var rec activityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}

		switch rec.ActivityType {
		case "Orders":
			var oa orderActivity
			if err := json.Unmarshal(raw, &oa); err != nil {
				continue
			}
			if e, ok := orderEvent(oa); ok {
				events = append(events, e)
			}
		case "Positions":
			var pa positionActivity
			if err := json.Unmarshal(raw, &pa); err != nil {
				continue
			}
			if e, ok := positionEvent(pa); ok {
				events = append(events, e)
			}
		}
	}
	return events, nil
}

func orderEvent(oa orderActivity) (models.Event, bool) {
	switch oa.Status {
	case "Fill", "FinalFill":
		if oa.SubStatus != "Confirmed" {
			return models.Event{}, false
		}
		if oa.Status != "FinalFill" && oa.FilledAmount.LessThan(oa.Amount) {
			return models.Event{}, false
		}
		return models.Event{
			Type:           models.EventOrderFill,
			OrderID:        oa.OrderID,
			UIC:            oa.UIC,
			PositionID:     oa.PositionID,
			Status:         "finalfill",
			ExecutionPrice: oa.AveragePrice,
			FilledAmount:   oa.FilledAmount,
			Amount:         oa.Amount,
		}, true
	case "Canceled", "Cancelled", "Rejected", "Expired":
		return models.Event{
			Type:    models.EventOrderStatusChange,
			OrderID: oa.OrderID,
			UIC:     oa.UIC,
			Status:  oa.Status,
		}, true
	default:
		return models.Event{}, false
	}
}

func positionEvent(pa positionActivity) (models.Event, bool) {
	if pa.PositionEvent == "deleted" || pa.Amount.IsZero() {
		return models.Event{
			Type:       models.EventPositionClosed,
			UIC:        pa.UIC,
			PositionID: pa.PositionID,
		}, true
	}
	return models.Event{}, false
}
