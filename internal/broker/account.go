package broker

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

type accountsResponse struct {
	Data []accountRecord `json:"Data"`
}

type accountRecord struct {
	AccountKey  string `json:"AccountKey"`
	ClientKey   string `json:"ClientKey"`
	AccountType string `json:"AccountType"` // "Normal" for a non-cash trading account
	AssetType   string `json:"AccountSubType"`
	IsCash      bool   `json:"IsCash"`
}

// resolveAccount fetches GET /port/v1/accounts/me and selects the first
// non-cash account, storing its AccountKey/ClientKey on the session.
// The account's asset type is not checked.
func (c *Client) resolveAccount(ctx context.Context) error {
	var out accountsResponse
	_, err := c.doREST(ctx, func() (*resty.Response, error) {
		return c.authedRequest(ctx).SetResult(&out).Get("/port/v1/accounts/me")
	})
	if err != nil {
		return fmt.Errorf("broker: fetch accounts: %w", err)
	}

	for _, a := range out.Data {
		if a.IsCash {
			continue
		}
		c.sessionMu.Lock()
		c.session.AccountKey = a.AccountKey
		c.session.ClientKey = a.ClientKey
		c.sessionMu.Unlock()
		return nil
	}

	return fmt.Errorf("broker: no tradable FxSpot account found")
}

// instrumentsResponse is the subset of GET /ref/v1/instruments this
// client reads to build the instrument cache.
type instrumentsResponse struct {
	Data []instrumentRecord `json:"Data"`
}

type instrumentRecord struct {
	Identifier int    `json:"Identifier"`
	Symbol     string `json:"Symbol"`
	AssetType  string `json:"AssetType"`
	Format     struct {
		Decimals int `json:"Decimals"`
	} `json:"Format"`
}

// FetchInstrument resolves a single FX spot instrument by its symbol
// (e.g. "EURUSD"), per spec.md §3's "enriched at load time" fields.
func (c *Client) FetchInstrument(ctx context.Context, symbol string) (uic int, decimals int, err error) {
	var out instrumentsResponse
	_, reqErr := c.doREST(ctx, func() (*resty.Response, error) {
		return c.authedRequest(ctx).
			SetQueryParams(map[string]string{
				"AssetTypes":         "FxSpot",
				"Keywords":           symbol,
				"AccountKey":         c.Session().AccountKey,
				"IncludeNonTradable": "false",
			}).
			SetResult(&out).
			Get("/ref/v1/instruments")
	})
	if reqErr != nil {
		return 0, 0, fmt.Errorf("broker: fetch instrument %s: %w", symbol, reqErr)
	}
	for _, rec := range out.Data {
		if rec.Symbol == symbol {
			return rec.Identifier, rec.Format.Decimals, nil
		}
	}
	return 0, 0, fmt.Errorf("broker: instrument %s not found", symbol)
}
