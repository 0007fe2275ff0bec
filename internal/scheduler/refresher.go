package scheduler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenRefresher is the subset of broker.Client the periodic refresh
// loop needs.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context) error
	AuthorizeStreamingContext(ctx context.Context, contextID string) error
}

// Refresher runs the periodic token refresh loop, per spec.md §4.5:
// every interval, refresh the access token, then re-authorize the
// streaming context with the new bearer. A 404 on re-authorization
// disables further attempts for this Refresher's lifetime (feature
// probe); refresh itself is never concurrent with another refresh.
type Refresher struct {
	broker   TokenRefresher
	interval time.Duration
	logger   *zap.Logger

	mu                      sync.Mutex
	contextID               string
	streamingAuthorizeDisabled bool
}

// NewRefresher builds a Refresher against broker, refreshing every
// interval.
func NewRefresher(broker TokenRefresher, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{broker: broker, interval: interval, logger: logger}
}

// SetContextID updates the streaming context id re-authorized after
// each refresh. cmd/trader calls it once with the context id of the
// initial ENS connection; a new context created by an ENS hard
// reconnect is not passed here.
func (r *Refresher) SetContextID(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contextID = contextID
}

// Run blocks, refreshing on a fixed interval until ctx is canceled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.broker.RefreshAccessToken(ctx); err != nil {
		r.logger.Error("scheduler: periodic token refresh failed", zap.Error(err))
		return
	}

	if r.streamingAuthorizeDisabled || r.contextID == "" {
		return
	}

	if err := r.broker.AuthorizeStreamingContext(ctx, r.contextID); err != nil {
		if isNotFound(err) {
			r.streamingAuthorizeDisabled = true
			r.logger.Warn("scheduler: streaming re-authorize returned 404, disabling further attempts")
			return
		}
		r.logger.Warn("scheduler: streaming context re-authorize failed", zap.Error(err))
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), strconv.Itoa(404))
}
