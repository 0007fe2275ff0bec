package broker

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// OrderLookup is the result of FindOrderByExternalReference: the
// order's id and its broker-reported status.
type OrderLookup struct {
	OrderID string
	Status  string
}

type orderDetailsResponse struct {
	Data []orderDetailsRecord `json:"Data"`
}

type orderDetailsRecord struct {
	OrderID           string `json:"OrderId"`
	Status            string `json:"Status"`
	ExternalReference string `json:"ExternalReference"`
}

// FindOrderByExternalReference implements spec.md §4.1's
// find_order_by_external_reference, used when PlaceMarketOrder(...)
// returns an ambiguous outcome. It never re-submits; it only reports
// whether an order carrying extRef actually exists.
func (c *Client) FindOrderByExternalReference(ctx context.Context, extRef string) (*OrderLookup, error) {
	var out orderDetailsResponse
	_, err := c.doREST(ctx, func() (*resty.Response, error) {
		return c.authedRequest(ctx).
			SetQueryParams(map[string]string{
				"AccountKey": c.Session().AccountKey,
			}).
			SetResult(&out).
			Get("/port/v1/orders/me")
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range out.Data {
		if rec.ExternalReference == extRef {
			return &OrderLookup{OrderID: rec.OrderID, Status: rec.Status}, nil
		}
	}
	return nil, nil
}

// AuditFillEvent is the subset of an audit-trail record relevant to
// confirming a fill: execution price and timestamp.
type AuditFillEvent struct {
	OrderID        string
	ExecutionPrice decimal.Decimal
	ExecutionTime  time.Time
}

type auditResponse struct {
	Data []auditRecord `json:"Data"`
}

type auditRecord struct {
	OrderID      string          `json:"OrderId"`
	Status       string          `json:"Status"`
	AveragePrice decimal.Decimal `json:"AveragePrice"`
	ActivityTime time.Time       `json:"ActivityTime"`
}

// CheckOrderStatusViaAudit implements spec.md §4.1's
// check_order_status_via_audit: up to 3 polls of
// /cs/v1/audit/orderactivities, 5 seconds apart, recognizing
// {Fill, FinalFill} statuses with a non-zero AveragePrice.
func (c *Client) CheckOrderStatusViaAudit(ctx context.Context, orderID string) (*AuditFillEvent, error) {
	const maxAttempts = 3
	const pollInterval = 5 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		event, err := c.pollAuditOnce(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if event != nil {
			return event, nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return nil, nil
}

func (c *Client) pollAuditOnce(ctx context.Context, orderID string) (*AuditFillEvent, error) {
	var out auditResponse
	_, err := c.doREST(ctx, func() (*resty.Response, error) {
		return c.authedRequest(ctx).
			SetQueryParams(map[string]string{
				"AccountKey": c.Session().AccountKey,
				"OrderId":    orderID,
			}).
			SetResult(&out).
			Get("/cs/v1/audit/orderactivities")
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range out.Data {
		if rec.OrderID != orderID {
			continue
		}
		if (rec.Status == "Fill" || rec.Status == "FinalFill") && !rec.AveragePrice.IsZero() {
			return &AuditFillEvent{
				OrderID:        rec.OrderID,
				ExecutionPrice: rec.AveragePrice,
				ExecutionTime:  rec.ActivityTime,
			}, nil
		}
	}
	return nil, nil
}
