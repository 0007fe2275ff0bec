package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceInfo is the bid/ask/decimals tuple spec.md §4.1's
// fetch_price_infos returns per uic.
type PriceInfo struct {
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	Decimals int
}

type priceInfoResponse struct {
	Data []priceInfoRecord `json:"Data"`
}

type priceInfoRecord struct {
	UIC   int `json:"Uic"`
	Quote struct {
		Bid decimal.Decimal `json:"Bid"`
		Ask decimal.Decimal `json:"Ask"`
	} `json:"Quote"`
	DisplayAndFormat struct {
		Decimals int `json:"Decimals"`
	} `json:"DisplayAndFormat"`
}

// FetchPriceInfos issues a single REST call with is_price_request=true,
// a short read timeout (<=10s, no extra backoff), per spec.md §4.1.
func (c *Client) FetchPriceInfos(ctx context.Context, uics []int) (map[int]PriceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	uicStrs := make([]string, len(uics))
	for i, u := range uics {
		uicStrs[i] = strconv.Itoa(u)
	}

	var out priceInfoResponse
	resp, err := c.authedRequest(ctx).
		SetQueryParams(map[string]string{
			"AccountKey":        c.Session().AccountKey,
			"Uics":              strings.Join(uicStrs, ","),
			"AssetType":         "FxSpot",
			"FieldGroups":       "Quote,DisplayAndFormat,PriceInfo",
			"is_price_request":  "true",
		}).
		SetResult(&out).
		Get("/trade/v1/infoprices/list")
	if err != nil {
		return nil, fmt.Errorf("broker: fetch price infos: %w", err)
	}
	if resp.IsError() {
		return nil, &apiError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	result := make(map[int]PriceInfo, len(out.Data))
	for _, rec := range out.Data {
		result[rec.UIC] = PriceInfo{
			Bid:      rec.Quote.Bid,
			Ask:      rec.Quote.Ask,
			Decimals: rec.DisplayAndFormat.Decimals,
		}
	}
	return result, nil
}

// SpreadPips computes the bid/ask spread of p in pips for an instrument
// whose pip value is pipValue.
func (p PriceInfo) SpreadPips(pipValue decimal.Decimal) decimal.Decimal {
	if pipValue.IsZero() {
		return decimal.Zero
	}
	return p.Ask.Sub(p.Bid).Div(pipValue)
}
