package ens

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fxtrader/internal/metrics"
)

var errNoContext = errors.New("ens: no active streaming context to re-authorize")
var errStale = errors.New("ens: no message received within stale timeout")

// handleDisconnect is called from readLoop (on a read error or a
// control message) or from the liveness monitor (on a stale
// connection). It is idempotent and starts at most one reconnect
// goroutine, the single-flight guard spec.md §4.2/§5 requires.
func (c *Client) handleDisconnect(err error) {
	select {
	case <-c.closeCh:
		return
	default:
	}

	if !atomic.CompareAndSwapInt32(&c.reconnecting, 0, 1) {
		return // a reconnect is already in flight
	}

	c.setState(stateReconnecting)
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if err != nil {
		c.logger.Warn("ens: disconnected", zap.Error(err))
	}

	go c.reconnectLoop(err)
}

// reconnectLoop implements spec.md §4.2's reconnect strategy: soft
// (token refresh + re-authorize, resume with the last messageid) first,
// falling back to a hard reconnect (brand-new subscription) if the soft
// path fails or the disconnect reason demands a fresh context.
func (c *Client) reconnectLoop(cause error) {
	defer atomic.StoreInt32(&c.reconnecting, 0)

	delay := time.Second
	forceNew := cause != nil && strings.Contains(cause.Error(), "409")

	for {
		select {
		case <-c.closeCh:
			return
		case <-time.After(jitterDelay(delay)):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

		var strategy, outcome string
		var reconErr error

		if !forceNew {
			strategy = "soft"
			reconErr = c.reconnectSoft(ctx)
		}
		if forceNew || reconErr != nil {
			strategy = "hard"
			reconErr = c.reconnectHard(ctx)
		}
		cancel()

		if reconErr == nil {
			outcome = "success"
			metrics.ENSReconnects.WithLabelValues(strategy, outcome).Inc()
			c.setState(stateConnected)
			go c.readLoop()
			go c.monitorLoop()
			c.logger.Info("ens: reconnected", zap.String("strategy", strategy))
			return
		}

		outcome = "failure"
		metrics.ENSReconnects.WithLabelValues(strategy, outcome).Inc()
		c.logger.Warn("ens: reconnect attempt failed", zap.String("strategy", strategy), zap.Error(reconErr))

		if strings.Contains(reconErr.Error(), "SubscriptionLimitExceeded") {
			c.deleteStaleSubscription(context.Background())
		}

		forceNew = true // the next attempt, if any, goes straight to hard reconnect

		delay *= 2
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}

// reconnectSoft refreshes the access token, re-authorizes the existing
// streaming context, and reconnects resuming from the last seen
// message id.
func (c *Client) reconnectSoft(ctx context.Context) error {
	if err := c.session.RefreshAccessToken(ctx); err != nil {
		return err
	}

	contextID := c.currentContextID
	if contextID == "" {
		return errNoContext
	}
	if err := c.session.AuthorizeStreamingContext(ctx, contextID); err != nil {
		return err
	}

	c.lastMessageMu.Lock()
	lastID := c.lastMessageID
	c.lastMessageMu.Unlock()

	return c.dial(ctx, c.buildURL(contextID, lastID, true))
}

// reconnectHard discards the old subscription and creates a brand new
// one with a fresh contextId, per spec.md §4.2 step 3.
func (c *Client) reconnectHard(ctx context.Context) error {
	contextID, subscriptionID, err := c.session.CreateSubscription(ctx)
	if err != nil {
		return err
	}
	c.currentContextID = contextID
	c.currentSubscriptionID = subscriptionID
	c.rollover = nil
	return c.dial(ctx, c.buildURL(contextID, 0, false))
}

func (c *Client) deleteStaleSubscription(ctx context.Context) {
	if c.currentSubscriptionID == "" {
		return
	}
	if err := c.session.DeleteSubscription(ctx, c.currentSubscriptionID); err != nil {
		c.logger.Warn("ens: failed to delete stale subscription", zap.Error(err))
	}
}
