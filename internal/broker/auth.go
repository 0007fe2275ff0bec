package broker

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"fxtrader/internal/retry"
)

// oauthConfig bundles the client credentials and endpoints needed for
// the authorization-code+PKCE flow, per spec.md §6's OAuth endpoints.
type oauthConfig struct {
	conf *oauth2.Config
}

// NewOAuthConfig builds the PKCE-capable OAuth2 config from the
// broker's authorize/token endpoints and the registered redirect URI.
func NewOAuthConfig(authURL, tokenURL, clientID, clientSecret, redirectURI string) oauthConfig {
	return oauthConfig{conf: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}}
}

// pkcePair is a verifier/challenge pair for RFC 7636 S256 PKCE.
type pkcePair struct {
	verifier  string
	challenge string
}

func newPKCEPair() (pkcePair, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return pkcePair{}, fmt.Errorf("broker: generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return pkcePair{verifier: verifier, challenge: challenge}, nil
}

// Authenticate implements spec.md §4.1's authenticate() contract: reuse
// a validated access token if one exists, otherwise run the full
// authorization-code+PKCE flow via the AuthorizationCodeProvider, then
// resolve the account keys.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.AccessToken() != "" {
		if err := c.validateToken(ctx); err == nil {
			return c.resolveAccount(ctx)
		}
	}

	pkce, err := newPKCEPair()
	if err != nil {
		return err
	}

	authURL := c.oauth.conf.AuthCodeURL("state",
		oauth2.SetAuthURLParam("code_challenge", pkce.challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	code, err := c.authorize.Authorize(ctx, authURL)
	if err != nil {
		return fmt.Errorf("broker: authorization-code step: %w", err)
	}

	token, err := c.oauth.conf.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pkce.verifier),
	)
	if err != nil {
		return fmt.Errorf("broker: exchange authorization code: %w", err)
	}

	c.storeToken(token)
	return c.resolveAccount(ctx)
}

func (c *Client) storeToken(token *oauth2.Token) {
	c.sessionMu.Lock()
	c.session.AccessToken = token.AccessToken
	c.session.RefreshToken = token.RefreshToken
	c.session.TokenIssuedAt = time.Now()
	c.sessionMu.Unlock()
}

// RefreshAccessToken implements spec.md §4.1's refresh_access_token():
// up to 3 attempts, linear backoff (5s, 10s). A 401 is non-recoverable
// and is surfaced to the caller, who is expected to re-run Authenticate.
// Calls are serialized by refreshMu, so two refreshes never run at once.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	refreshMu.Lock()
	defer refreshMu.Unlock()

	c.sessionMu.Lock()
	refreshToken := c.session.RefreshToken
	c.sessionMu.Unlock()

	if refreshToken == "" {
		return fmt.Errorf("broker: no refresh token available")
	}

	cfg := retry.Config{
		MaxRetries:   3,
		InitialDelay: 5 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0, // 5s, then 10s, per spec.md §4.1
		RetryIf:      func(err error) bool { return !isUnauthorized(err) },
	}

	return retry.Do(ctx, func() error {
		src := c.oauth.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		token, err := src.Token()
		if err != nil {
			if isUnauthorized(err) {
				return retry.Permanent(err)
			}
			return err
		}
		c.storeToken(token)
		return nil
	}, cfg)
}

// refreshMu is held for the whole of RefreshAccessToken, whichever
// caller triggers it (the periodic refresher, the ENS soft reconnect,
// the REST 401 handling).
var refreshMu sync.Mutex

func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var rerr *oauth2.RetrieveError
	return asRetrieveError(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == 401
}

func asRetrieveError(err error, target **oauth2.RetrieveError) bool {
	return errors.As(err, target)
}

// validateToken checks the current access token against
// GET /port/v1/clients/me, per spec.md §6.
func (c *Client) validateToken(ctx context.Context) error {
	resp, err := c.authedRequest(ctx).Get("/port/v1/clients/me")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &apiError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// ValidateTokenLiveness exposes validateToken to the scheduler's
// pre-execution pings (spec.md §4.5), which treat a failure here as
// grounds to skip the waited action rather than retry indefinitely.
func (c *Client) ValidateTokenLiveness(ctx context.Context) error {
	return c.validateToken(ctx)
}
