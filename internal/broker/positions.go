package broker

import (
	"fmt"

	"context"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"fxtrader/internal/models"
)

// PositionSummary is the net position state spec.md §4.1's
// check_existing_positions_and_orders and close_position_market
// consult.
type PositionSummary struct {
	PositionID string
	UIC        int
	Amount     decimal.Decimal // signed: positive long, negative short
}

type positionsResponse struct {
	Data []positionRecord `json:"Data"`
}

type positionRecord struct {
	PositionID string `json:"PositionId"`
	PositionBase struct {
		UIC    int             `json:"Uic"`
		Amount decimal.Decimal `json:"Amount"`
	} `json:"PositionBase"`
}

func (c *Client) fetchPositions(ctx context.Context, uic int) ([]positionRecord, error) {
	var out positionsResponse
	_, err := c.doREST(ctx, func() (*resty.Response, error) {
		return c.authedRequest(ctx).
			SetQueryParams(map[string]string{
				"AccountKey": c.Session().AccountKey,
				"Uic":        fmt.Sprintf("%d", uic),
			}).
			SetResult(&out).
			Get("/port/v1/positions/me")
	})
	if err != nil {
		return nil, fmt.Errorf("broker: list positions: %w", err)
	}
	return out.Data, nil
}

// ResolvePositionID looks up the open position id for uic, for the
// case where the ENS fill event and the REST audit-trail fallback both
// leave a trade's PositionID unset (the audit endpoint never reports a
// position id at all). Returns "" if there is no open position.
func (c *Client) ResolvePositionID(ctx context.Context, uic int) (string, error) {
	positions, err := c.fetchPositions(ctx, uic)
	if err != nil {
		return "", err
	}
	for _, p := range positions {
		if !p.PositionBase.Amount.IsZero() {
			return p.PositionID, nil
		}
	}
	return "", nil
}

// CheckExistingPositionsAndOrders implements spec.md §4.1's pre-entry
// guard: true if a position or a working order exists for uic.
func (c *Client) CheckExistingPositionsAndOrders(ctx context.Context, uic int) (present bool, summary string, err error) {
	positions, err := c.fetchPositions(ctx, uic)
	if err != nil {
		return false, "", err
	}
	for _, p := range positions {
		if !p.PositionBase.Amount.IsZero() {
			return true, fmt.Sprintf("open position %s amount=%s", p.PositionID, p.PositionBase.Amount.String()), nil
		}
	}

	working, err := c.ListWorkingOrders(ctx, uic)
	if err != nil {
		return false, "", err
	}
	if len(working) > 0 {
		return true, fmt.Sprintf("%d working order(s)", len(working)), nil
	}
	return false, "", nil
}

// ClosePositionMarket implements spec.md §4.1's close_position_market:
// consults the current position; if already flat, returns
// "already closed"; otherwise issues a ToClose market order in the
// opposite direction for min(current, requested) amount.
//
// positionID may be empty or stale (the ENS fill event it came from can
// race the REST audit fallback, which never carries a position id at
// all). When it fails to match an open position, ClosePositionMarket
// falls back to the sole open position on uic — the pre-entry
// check_existing_positions_and_orders guard guarantees at most one.
func (c *Client) ClosePositionMarket(ctx context.Context, positionID string, uic int, amount decimal.Decimal, originalSide models.Side, externalRef string) (orderID string, alreadyClosed bool, err error) {
	positions, err := c.fetchPositions(ctx, uic)
	if err != nil {
		return "", false, err
	}

	var current decimal.Decimal
	matched := false
	if positionID != "" {
		for _, p := range positions {
			if p.PositionID == positionID {
				current = p.PositionBase.Amount
				matched = true
				break
			}
		}
	}
	if !matched {
		for _, p := range positions {
			if !p.PositionBase.Amount.IsZero() {
				current = p.PositionBase.Amount
				matched = true
				break
			}
		}
	}

	if !matched || current.IsZero() {
		return "", true, nil
	}

	closeAmount := current.Abs()
	if amount.LessThan(closeAmount) {
		closeAmount = amount
	}

	closeSide := models.SideSell
	if originalSide == models.SideSell {
		closeSide = models.SideBuy
	}

	req := orderRequest{
		UIC:               uic,
		AssetType:         "FxSpot",
		AccountKey:        c.Session().AccountKey,
		Amount:            closeAmount,
		BuySell:           sideString(closeSide),
		OrderType:         "Market",
		OrderDuration:     orderDuration{DurationType: "DayOrder"},
		ExternalReference: externalRef,
		ToOpenClose:       "ToClose",
	}

	id, _, err := c.submitOrder(ctx, req)
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}
