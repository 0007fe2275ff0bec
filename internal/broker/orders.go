package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"fxtrader/internal/models"
	"fxtrader/internal/money"
	"fxtrader/internal/retry"
)

// ErrAmbiguousOrder is returned by PlaceMarketOrderWithBrackets and
// PlaceMarketOrder when the request reached the broker but the response
// was lost (network error after send). The caller must not retry; it
// must probe FindOrderByExternalReference instead, per spec.md §4.1.
var ErrAmbiguousOrder = errors.New("broker: ambiguous order outcome")

type orderRequest struct {
	UIC              int              `json:"Uic"`
	AssetType        string           `json:"AssetType"`
	AccountKey       string           `json:"AccountKey"`
	Amount           decimal.Decimal  `json:"Amount"`
	BuySell          string           `json:"BuySell"`
	OrderType        string           `json:"OrderType"`
	OrderDuration    orderDuration    `json:"OrderDuration"`
	ExternalReference string          `json:"ExternalReference"`
	ToOpenClose      string           `json:"ToOpenClose,omitempty"`
	Orders           []relatedOrder   `json:"Orders,omitempty"`
}

type orderDuration struct {
	DurationType string `json:"DurationType"`
}

type relatedOrder struct {
	UIC               int             `json:"Uic"`
	AssetType         string          `json:"AssetType"`
	BuySell           string          `json:"BuySell"`
	Amount            decimal.Decimal `json:"Amount"`
	OrderType         string          `json:"OrderType"`
	OrderPrice        decimal.Decimal `json:"OrderPrice"`
	OrderDuration     orderDuration   `json:"OrderDuration"`
	ExternalReference string          `json:"ExternalReference"`
}

type orderResponse struct {
	OrderID        string           `json:"OrderId"`
	OrderIDs       []orderIDEntry   `json:"OrderIds,omitempty"`
}

type orderIDEntry struct {
	OrderID string `json:"OrderId"`
}

// PlaceMarketOrderWithBrackets implements spec.md §4.1's
// place_market_order_with_brackets: a market order with a related
// stop-loss and take-profit priced off the current ask (Buy) or bid
// (Sell), displaced by pips × pip value, rounded half-up to decimals.
// Related order ids are memoized so cancel_related_orders_for_uic can
// retire them at exit.
func (c *Client) PlaceMarketOrderWithBrackets(
	ctx context.Context,
	uic int,
	side models.Side,
	amount decimal.Decimal,
	reference decimal.Decimal,
	slPips, tpPips decimal.Decimal,
	pipValue decimal.Decimal,
	decimals int32,
	externalRef string,
) (orderID string, err error) {
	buySell := sideString(side)
	direction := 1
	if side == models.SideSell {
		direction = -1
	}

	slPrice := money.RoundHalfUp(money.DisplacePrice(reference, slPips, pipValue, -direction, decimals), decimals)
	tpPrice := money.RoundHalfUp(money.DisplacePrice(reference, tpPips, pipValue, direction, decimals), decimals)

	req := orderRequest{
		UIC:               uic,
		AssetType:         "FxSpot",
		AccountKey:        c.Session().AccountKey,
		Amount:            amount,
		BuySell:           buySell,
		OrderType:         "Market",
		OrderDuration:     orderDuration{DurationType: "DayOrder"},
		ExternalReference: externalRef,
		Orders: []relatedOrder{
			{
				UIC: uic, AssetType: "FxSpot", BuySell: oppositeSide(buySell),
				Amount: amount, OrderType: "Stop", OrderPrice: slPrice,
				OrderDuration: orderDuration{DurationType: "GoodTillCancel"},
				ExternalReference: externalRef + "_sl",
			},
			{
				UIC: uic, AssetType: "FxSpot", BuySell: oppositeSide(buySell),
				Amount: amount, OrderType: "Limit", OrderPrice: tpPrice,
				OrderDuration: orderDuration{DurationType: "GoodTillCancel"},
				ExternalReference: externalRef + "_tp",
			},
		},
	}

	id, relatedIDs, err := c.submitOrder(ctx, req)
	if err != nil {
		return "", err
	}

	if len(relatedIDs) > 0 {
		c.ordersMu.Lock()
		c.tpSLOrderIDsByUIC[uic] = append(c.tpSLOrderIDsByUIC[uic], relatedIDs...)
		c.ordersMu.Unlock()
	}

	return id, nil
}

// PlaceMarketOrder implements spec.md §4.1's place_market_order: a flat
// market order with no bracket legs, used when bracket submission
// fails and the trade falls back to an unprotected entry.
func (c *Client) PlaceMarketOrder(ctx context.Context, uic int, side models.Side, amount decimal.Decimal, externalRef string) (orderID string, err error) {
	req := orderRequest{
		UIC:               uic,
		AssetType:         "FxSpot",
		AccountKey:        c.Session().AccountKey,
		Amount:            amount,
		BuySell:           sideString(side),
		OrderType:         "Market",
		OrderDuration:     orderDuration{DurationType: "DayOrder"},
		ExternalReference: externalRef,
	}

	id, _, err := c.submitOrder(ctx, req)
	return id, err
}

func (c *Client) submitOrder(ctx context.Context, req orderRequest) (orderID string, relatedIDs []string, err error) {
	var out orderResponse
	resp, reqErr := c.authedRequest(ctx).SetBody(req).SetResult(&out).Post("/trade/v1/orders")
	if reqErr != nil {
		// retry_safe=false: the request may have reached the broker.
		// The caller must probe FindOrderByExternalReference, not retry.
		return "", nil, fmt.Errorf("%w: %v", ErrAmbiguousOrder, reqErr)
	}
	if resp.IsError() {
		return "", nil, &apiError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if out.OrderID == "" {
		return "", nil, ErrAmbiguousOrder
	}

	for _, e := range out.OrderIDs {
		relatedIDs = append(relatedIDs, e.OrderID)
	}
	return out.OrderID, relatedIDs, nil
}

type workingOrdersResponse struct {
	Data []workingOrderRecord `json:"Data"`
}

type workingOrderRecord struct {
	OrderID string `json:"OrderId"`
	UIC     int    `json:"Uic"`
}

// ListWorkingOrders implements spec.md §4.1's list_working_orders.
func (c *Client) ListWorkingOrders(ctx context.Context, uic int) ([]string, error) {
	var out workingOrdersResponse
	_, err := c.doREST(ctx, func() (*resty.Response, error) {
		return c.authedRequest(ctx).
			SetQueryParams(map[string]string{
				"AccountKey": c.Session().AccountKey,
				"Uic":        fmt.Sprintf("%d", uic),
			}).
			SetResult(&out).
			Get("/port/v1/orders/me")
	})
	if err != nil {
		return nil, fmt.Errorf("broker: list working orders: %w", err)
	}

	ids := make([]string, 0, len(out.Data))
	for _, rec := range out.Data {
		if rec.UIC == uic {
			ids = append(ids, rec.OrderID)
		}
	}
	return ids, nil
}

// CancelOrder implements spec.md §4.1's cancel_order. A 404 means the
// order is already gone and is treated as success.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	unauthorizedOnce := false
	_, err := retry.DoWithResult(ctx, func() (*resty.Response, error) {
		resp, reqErr := c.authedRequest(ctx).
			SetQueryParam("AccountKey", c.Session().AccountKey).
			Delete("/trade/v1/orders/" + orderID)
		if reqErr != nil {
			return nil, retry.Temporary(fmt.Errorf("broker: cancel order %s: %w", orderID, reqErr))
		}
		if resp.StatusCode() == 404 {
			return resp, nil
		}
		return c.classifyRESTOutcome(ctx, &unauthorizedOnce, resp)
	}, restRetryConfig())
	if err != nil {
		return fmt.Errorf("broker: cancel order %s: %w", orderID, err)
	}
	return nil
}

// ForgetOrder removes orderID from the memoized TP/SL set for uic, if
// present. Called when an ENS event reports the order canceled,
// rejected or expired so cancel_related_orders_for_uic never retries
// an id the broker has already retired, per spec.md §4.2.
func (c *Client) ForgetOrder(uic int, orderID string) {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()
	ids := c.tpSLOrderIDsByUIC[uic]
	for i, id := range ids {
		if id == orderID {
			c.tpSLOrderIDsByUIC[uic] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// CancelRelatedOrdersForUIC implements spec.md §4.1's two-phase cancel:
// first the memoized TP/SL ids, then re-list and retry any survivors,
// and finally cancel all working orders on the uic as a last resort.
func (c *Client) CancelRelatedOrdersForUIC(ctx context.Context, uic int) error {
	c.ordersMu.Lock()
	memoized := c.tpSLOrderIDsByUIC[uic]
	delete(c.tpSLOrderIDsByUIC, uic)
	c.ordersMu.Unlock()

	for _, id := range memoized {
		_ = c.CancelOrder(ctx, id)
	}

	remaining, err := c.ListWorkingOrders(ctx, uic)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}

	for _, id := range remaining {
		_ = c.CancelOrder(ctx, id)
	}

	stillThere, err := c.ListWorkingOrders(ctx, uic)
	if err != nil {
		return err
	}
	for _, id := range stillThere {
		if err := c.CancelOrder(ctx, id); err != nil {
			return fmt.Errorf("broker: last-resort cancel of order %s failed: %w", id, err)
		}
	}
	return nil
}

func sideString(side models.Side) string {
	if side == models.SideSell {
		return "Sell"
	}
	return "Buy"
}

func oppositeSide(buySell string) string {
	if buySell == "Sell" {
		return "Buy"
	}
	return "Sell"
}
