package ens

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fxtrader/internal/metrics"
	"fxtrader/internal/models"
)

// BrokerSession is the subset of the broker client the streaming client
// needs: the current bearer token, periodic refresh, and subscription
// lifecycle. Kept as an interface (grounded on the teacher's Exchange
// interface in internal/exchange/interface.go) so ens can be tested
// without a real broker.Client.
type BrokerSession interface {
	AccessToken() string
	RefreshAccessToken(ctx context.Context) error
	AuthorizeStreamingContext(ctx context.Context, contextID string) error
	CreateSubscription(ctx context.Context) (contextID, subscriptionID string, err error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error

	// ForgetOrder removes orderID from the memoized TP/SL set for uic.
	// Called when an order_status_change event reports the order
	// canceled, rejected or expired, per spec.md §4.2.
	ForgetOrder(uic int, orderID string)
}

// connState is the atomic connection state, grounded on the teacher's
// WSConnectionState enum.
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateReconnecting
	stateClosed
)

// Config tunes timeouts and thresholds, mirroring spec.md §6's stream
// keys.
type Config struct {
	PingInterval      time.Duration
	PingTimeout       time.Duration
	CloseTimeout      time.Duration
	StaleTimeout      time.Duration
	MonitorInterval   time.Duration
	NotifyThresholds  []time.Duration
	ReconnectMaxDelay time.Duration
}

// DefaultConfig matches spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:      15 * time.Second,
		PingTimeout:       5 * time.Second,
		CloseTimeout:      5 * time.Second,
		StaleTimeout:      45 * time.Second,
		MonitorInterval:   10 * time.Second,
		NotifyThresholds:  []time.Duration{10 * time.Second, 60 * time.Second, 180 * time.Second},
		ReconnectMaxDelay: 30 * time.Second,
	}
}

// Client is the ENS streaming client: binary frame decoding, control
// vs. activity classification, liveness monitoring, and single-flight
// reconnect. Grounded on the teacher's WSReconnectManager
// (internal/exchange/ws_reconnect.go) and the reader/processor
// goroutine split in other_examples' saxo_websocket.go, whose comments
// stress that the reader must never block on processing.
type Client struct {
	streamBaseURL string
	session       BrokerSession
	cfg           Config
	logger        *zap.Logger
	notify        func(level string, message string)

	dispatch func(models.Event)

	connMu sync.RWMutex
	conn   *websocket.Conn

	currentContextID      string
	currentSubscriptionID string

	state      int32 // atomic connState
	reconnecting int32 // atomic bool, guards single-flight reconnect

	lastMessageID uint64
	lastMessageMu sync.Mutex
	lastMessageAt atomic.Value // time.Time

	rollover []byte

	notifiedThresholds map[time.Duration]bool
	notifiedMu         sync.Mutex

	closeCh chan struct{}
	closeOnce sync.Once
}

// New builds a streaming Client. dispatch is called for every
// normalized ENS event decoded from the stream (typically
// waiter.Registry.Dispatch).
func New(streamBaseURL string, session BrokerSession, cfg Config, logger *zap.Logger, dispatch func(models.Event)) *Client {
	c := &Client{
		streamBaseURL: streamBaseURL,
		session:       session,
		cfg:           cfg,
		logger:        logger,
		dispatch:      dispatch,
		closeCh:       make(chan struct{}),
	}
	c.lastMessageAt.Store(time.Now())
	return c
}

func (c *Client) setState(s connState) { atomic.StoreInt32(&c.state, int32(s)) }
func (c *Client) State() connState     { return connState(atomic.LoadInt32(&c.state)) }

// buildURL constructs wss://.../connect?contextId=...&authorization=BEARER%20<token>[&messageid=...]
// per spec.md §4.2/§6.
func (c *Client) buildURL(contextID string, resumeMessageID uint64, resume bool) string {
	v := url.Values{}
	v.Set("contextId", contextID)
	v.Set("authorization", "BEARER "+c.session.AccessToken())
	if resume {
		v.Set("messageid", strconv.FormatUint(resumeMessageID, 10))
	}
	return c.streamBaseURL + "/connect?" + v.Encode()
}

// Connect creates a fresh subscription and opens the WebSocket. Callers
// invoke this once at startup; subsequent disconnects are handled
// internally by reconnect().
func (c *Client) Connect(ctx context.Context) (contextID string, err error) {
	c.setState(stateConnecting)

	var subscriptionID string
	contextID, subscriptionID, err = c.session.CreateSubscription(ctx)
	if err != nil {
		c.setState(stateDisconnected)
		return "", fmt.Errorf("ens: create subscription: %w", err)
	}
	c.currentContextID = contextID
	c.currentSubscriptionID = subscriptionID

	if err := c.dial(ctx, c.buildURL(contextID, 0, false)); err != nil {
		c.setState(stateDisconnected)
		return "", err
	}

	c.setState(stateConnected)
	go c.readLoop()
	go c.monitorLoop()
	return contextID, nil
}

func (c *Client) dial(ctx context.Context, wsURL string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("ens: dial: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.touchLiveness()
	return nil
}

func (c *Client) touchLiveness() {
	c.lastMessageAt.Store(time.Now())
	c.notifiedMu.Lock()
	c.notifiedThresholds = nil
	c.notifiedMu.Unlock()
}

// readLoop is the dedicated reader goroutine: it reads frames off the
// socket and decodes and dispatches each one inline via processBinary
// or processText before reading the next.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		c.touchLiveness()

		switch msgType {
		case websocket.BinaryMessage:
			c.processBinary(data)
		case websocket.TextMessage:
			c.processText(data)
		}
	}
}

func (c *Client) processBinary(data []byte) {
	buf := append(c.rollover, data...)
	frames, remainder, err := DecodeFrames(buf)
	if err != nil {
		c.logger.Warn("ens: unrecoverable payload_format, discarding buffer", zap.Error(err))
		c.rollover = nil
		return
	}
	c.rollover = remainder

	for _, f := range frames {
		c.lastMessageMu.Lock()
		c.lastMessageID = f.MessageID
		c.lastMessageMu.Unlock()
		c.processPayload(f.Payload)
	}
}

// processText handles text frames, which carry a single JSON payload
// directly. The `_heartbeat` frame only updates the liveness clock
// (already done in readLoop) and is otherwise ignored, matching Saxo's
// documented behavior of not using WS-level ping/pong.
func (c *Client) processText(data []byte) {
	if string(data) == `"_heartbeat"` || string(data) == "_heartbeat" {
		return
	}
	c.processPayload(data)
}

func (c *Client) processPayload(payload []byte) {
	start := time.Now()
	defer func() {
		metrics.ENSDispatchLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if IsControl(payload) {
		c.logger.Info("ens: control message received, triggering reconnect")
		c.handleDisconnect(fmt.Errorf("ens: control message"))
		return
	}

	events, err := ClassifyActivity(payload)
	if err != nil {
		c.logger.Warn("ens: failed to classify activity payload", zap.Error(err))
		return
	}
	for _, e := range events {
		if e.Type == models.EventOrderStatusChange && retiredOrderStatus[e.Status] {
			c.session.ForgetOrder(e.UIC, e.OrderID)
		}
		c.dispatch(e)
	}
}

// retiredOrderStatus are the order_status_change statuses that mean the
// order is gone for good, so any memoized TP/SL id for it must be
// scrubbed rather than retried by cancel_related_orders_for_uic.
var retiredOrderStatus = map[string]bool{
	"Canceled":  true,
	"Cancelled": true,
	"Rejected":  true,
	"Expired":   true,
}

// Send writes msg as JSON on the live connection.
func (c *Client) Send(msg interface{}) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("ens: not connected")
	}
	return conn.WriteJSON(msg)
}

// Close shuts the client down; readLoop and monitorLoop exit on their
// next iteration.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.setState(stateClosed)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// jitterDelay returns base plus up to 500ms of jitter, per spec.md
// §4.2's reconnect backoff.
func jitterDelay(base time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
}
