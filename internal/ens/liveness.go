package ens

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// monitorLoop runs concurrently with readLoop, per spec.md §4.2. It
// pings the connection on MonitorInterval and declares the connection
// stale (triggering a reconnect) if no message of any kind has arrived
// within StaleTimeout. It also emits exactly one notification per
// configured threshold per disconnect episode.
func (c *Client) monitorLoop() {
	interval := c.cfg.MonitorInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if c.State() != stateConnected {
				return
			}
			c.pingOnce()
			c.checkStale()
		}
	}
}

func (c *Client) pingOnce() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}
	deadline := time.Now().Add(c.cfg.PingTimeout)
	if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.logger.Warn("ens: ping failed", zap.Error(err))
	}
}

func (c *Client) checkStale() {
	last, _ := c.lastMessageAt.Load().(time.Time)
	silence := time.Since(last)

	staleTimeout := c.cfg.StaleTimeout
	if staleTimeout <= 0 {
		staleTimeout = 45 * time.Second
	}

	for _, threshold := range c.cfg.NotifyThresholds {
		if silence < threshold {
			continue
		}
		c.notifiedMu.Lock()
		if c.notifiedThresholds == nil {
			c.notifiedThresholds = make(map[time.Duration]bool)
		}
		already := c.notifiedThresholds[threshold]
		c.notifiedThresholds[threshold] = true
		c.notifiedMu.Unlock()

		if !already {
			c.logger.Warn("ens: no activity within threshold",
				zap.Duration("threshold", threshold),
				zap.Duration("silence", silence),
				zap.Time("last_message_at", last),
			)
		}
	}

	if silence > staleTimeout {
		c.logger.Warn("ens: connection stale, reconnecting", zap.Duration("silence", silence))
		c.handleDisconnect(errStale)
	}
}
