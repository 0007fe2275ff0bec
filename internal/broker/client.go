// Package broker implements the REST client against the broker's
// OpenAPI-style trading surface: OAuth2 PKCE authentication, account
// resolution, price lookups, bracket order submission, position
// closing, and the ENS subscription lifecycle.
//
// Every request goes through a shared resty client (grounded on
// 0xtitan6-polymarket-mm's internal/exchange/client.go) layered with
// fxtrader/internal/retry for the backoff/401-reauthorize/429
// Retry-After policy spec.md §4.1 specifies.
package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"fxtrader/internal/models"
	"fxtrader/internal/retry"
)

// Client is the broker REST client. It owns the OAuth session and
// account identifiers, mirroring spec.md §2's "BrokerClient owns the
// token pair and account identifiers" data-flow note.
type Client struct {
	http   *resty.Client
	oauth  oauthConfig
	logger *zap.Logger

	sessionMu sync.Mutex
	session   models.Session

	ordersMu              sync.Mutex
	tpSLOrderIDsByUIC     map[int][]string

	authorize AuthorizationCodeProvider
}

// AuthorizationCodeProvider is the contract spec.md §1 abstracts the
// initial OAuth browser step behind.
type AuthorizationCodeProvider interface {
	Authorize(ctx context.Context, authURL string) (code string, err error)
}

// NewClient builds a Client against apiBaseURL, using oauth for token
// exchange and authorize for the initial authorization-code step.
func NewClient(apiBaseURL string, oauth oauthConfig, authorize AuthorizationCodeProvider, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(apiBaseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:              http,
		oauth:             oauth,
		logger:            logger,
		authorize:         authorize,
		tpSLOrderIDsByUIC: make(map[int][]string),
	}
}

// AccessToken returns the current bearer token. Implements
// ens.BrokerSession.
func (c *Client) AccessToken() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session.AccessToken
}

// Session returns a copy of the current session state, for the state
// store and diagnostics.
func (c *Client) Session() models.Session {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session
}

func (c *Client) authedRequest(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetAuthToken(c.AccessToken())
}

// apiError represents a non-2xx broker response.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("broker: status %d: %s", e.StatusCode, e.Body)
}

// restRetryConfig implements spec.md §4.1's retry_safe=true default: up
// to 3 attempts, 5xx and transport errors back off exponentially
// (1s, 2s), and RetryIf honors the Permanent/Temporary markers doREST
// attaches so a non-retryable outcome (second 401, any other 4xx)
// stops immediately instead of burning the remaining attempts.
func restRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
		RetryIf:      retry.IsRetryable,
	}
}

// doREST runs attempt under restRetryConfig. A network error or 5xx
// response retries with backoff; 429 honors Retry-After; a 401 triggers
// one RefreshAccessToken call (escalating to a full Authenticate if the
// refresh itself fails) before a single retry, and a second 401 is
// reported rather than retried further — spec.md §4.1's retry policy
// for every non-order REST call (resolveAccount, FetchInstrument,
// ListWorkingOrders, CancelOrder, fetchPositions,
// FindOrderByExternalReference, the audit poll).
func (c *Client) doREST(ctx context.Context, attempt func() (*resty.Response, error)) (*resty.Response, error) {
	unauthorizedOnce := false

	return retry.DoWithResult(ctx, func() (*resty.Response, error) {
		resp, err := attempt()
		if err != nil {
			return nil, retry.Temporary(fmt.Errorf("broker: request: %w", err))
		}
		return c.classifyRESTOutcome(ctx, &unauthorizedOnce, resp)
	}, restRetryConfig())
}

// classifyRESTOutcome applies the 401/429/5xx classification shared by
// doREST and any call site (CancelOrder) that needs to special-case a
// status code before falling back to the common policy.
func (c *Client) classifyRESTOutcome(ctx context.Context, unauthorizedOnce *bool, resp *resty.Response) (*resty.Response, error) {
	switch {
	case resp.StatusCode() == 401:
		apiErr := &apiError{StatusCode: resp.StatusCode(), Body: resp.String()}
		if *unauthorizedOnce {
			return resp, retry.Permanent(apiErr)
		}
		*unauthorizedOnce = true
		if refreshErr := c.RefreshAccessToken(ctx); refreshErr != nil {
			if authErr := c.Authenticate(ctx); authErr != nil {
				return resp, retry.Permanent(apiErr)
			}
		}
		return resp, retry.Temporary(apiErr)
	case resp.StatusCode() == 429:
		apiErr := &apiError{StatusCode: resp.StatusCode(), Body: resp.String()}
		return resp, retry.WithRetryAfter(apiErr, parseRetryAfter(resp.Header().Get("Retry-After")))
	case resp.StatusCode() >= 500:
		return resp, retry.Temporary(&apiError{StatusCode: resp.StatusCode(), Body: resp.String()})
	case resp.IsError():
		return resp, retry.Permanent(&apiError{StatusCode: resp.StatusCode(), Body: resp.String()})
	default:
		return resp, nil
	}
}

// parseRetryAfter reads a Retry-After header as integer seconds,
// defaulting to 1s if the header is absent or not a plain integer
// (the broker does not document the HTTP-date form).
func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
