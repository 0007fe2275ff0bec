package models

import "time"

// Session holds the broker OAuth session and streaming subscription
// identifiers, a singleton for the process lifetime.
type Session struct {
	AccessToken        string
	RefreshToken       string
	TokenIssuedAt       time.Time
	AccountKey          string
	ClientKey           string
	StreamingContextID  string
	ENSSubscriptionID   string
}

// TokenAge reports how long the current access token has been held.
func (s *Session) TokenAge() time.Duration {
	if s.TokenIssuedAt.IsZero() {
		return 0
	}
	return time.Since(s.TokenIssuedAt)
}
