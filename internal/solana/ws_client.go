package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrWSClosed is returned after Close.
	ErrWSClosed = errors.New("websocket client closed")
	// ErrNotConnected is returned while the client is between connections.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrSubscribeTimeout is returned when a subscription is not confirmed in time.
	ErrSubscribeTimeout = errors.New("subscription not confirmed")
)

// WSClientConfig configures WSClientImpl.
type WSClientConfig struct {
	ReconnectDelay     time.Duration // first reconnect delay, doubled per failure
	MaxReconnectDelay  time.Duration
	PingInterval       time.Duration
	ReadTimeout        time.Duration // silence longer than this drops the connection
	WriteTimeout       time.Duration
	HandshakeTimeout   time.Duration
	SubscribeTimeout   time.Duration // wait for a subscription confirmation
	NotificationBuffer int           // per-subscription channel capacity
	Commitment         string

	// OnConnect runs after the first connect and after every reconnect once
	// subscriptions are restored.
	OnConnect func()
	// OnDisconnect runs when an established connection drops.
	OnDisconnect func(err error)
	// Logger receives connection diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// DefaultWSConfig returns the default configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:     time.Second,
		MaxReconnectDelay:  30 * time.Second,
		PingInterval:       30 * time.Second,
		ReadTimeout:        60 * time.Second,
		WriteTimeout:       10 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		SubscribeTimeout:   30 * time.Second,
		NotificationBuffer: 10000,
		Commitment:         "confirmed",
	}
}

func (c *WSClientConfig) applyDefaults() {
	d := DefaultWSConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(d.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = d.SubscribeTimeout
	}
	if c.NotificationBuffer <= 0 {
		c.NotificationBuffer = d.NotificationBuffer
	}
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
}

// logSubscription is a caller-facing subscription. Its channel outlives
// reconnects; only the server-side ID changes.
type logSubscription struct {
	filter LogsFilter
	out    chan LogNotification
}

type subscribeResult struct {
	id  int64
	err error
}

// pendingSub is a logsSubscribe awaiting confirmation. The subscription is
// registered by the read loop on confirmation so no notification is missed.
type pendingSub struct {
	sub    *logSubscription
	result chan subscribeResult
}

// WSClientImpl is a logsSubscribe client over gorilla/websocket. A dropped
// connection is redialed with exponential backoff and every subscription is
// restored on the new connection.
type WSClientImpl struct {
	endpoint string
	cfg      WSClientConfig
	log      *zap.Logger

	connMu sync.Mutex // guards conn and serializes writes
	conn   *websocket.Conn

	mu      sync.Mutex
	all     map[*logSubscription]struct{} // every confirmed subscription
	subs    map[int64]*logSubscription    // by server ID on the current connection
	pending map[uint64]pendingSub

	nextID atomic.Uint64
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWSClient connects to endpoint. A nil config uses DefaultWSConfig.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	cfg.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClientImpl{
		endpoint: endpoint,
		cfg:      cfg,
		log:      logger.Named("ws"),
		all:      make(map[*logSubscription]struct{}),
		subs:     make(map[int64]*logSubscription),
		pending:  make(map[uint64]pendingSub),
		done:     make(chan struct{}),
	}

	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	if cfg.OnConnect != nil {
		cfg.OnConnect()
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *WSClientImpl) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs subscribes to logs matching filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, ErrWSClosed
	}

	sub := &logSubscription{filter: filter, out: make(chan LogNotification, c.cfg.NotificationBuffer)}
	if _, err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return sub.out, nil
}

// Close closes the connection and every subscription channel. It is idempotent.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// readLoop is the only sender on subscription channels.
	c.wg.Wait()

	c.mu.Lock()
	for sub := range c.all {
		close(sub.out)
	}
	clear(c.all)
	clear(c.subs)
	clear(c.pending)
	c.mu.Unlock()
	return nil
}

// subscribe sends logsSubscribe for sub and waits for the server
// subscription ID, under which sub is then registered.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *logSubscription) (int64, error) {
	mentions := map[string]any{"all": nil}
	if len(sub.filter.Mentions) > 0 {
		mentions = map[string]any{"mentions": sub.filter.Mentions}
	}

	reqID := c.nextID.Add(1)
	result := make(chan subscribeResult, 1)
	c.mu.Lock()
	c.pending[reqID] = pendingSub{sub: sub, result: result}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	err := c.write(wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params:  []any{mentions, map[string]string{"commitment": c.cfg.Commitment}},
	})
	if err != nil {
		return 0, err
	}

	timer := time.NewTimer(c.cfg.SubscribeTimeout)
	defer timer.Stop()
	select {
	case r := <-result:
		return r.id, r.err
	case <-timer.C:
		return 0, fmt.Errorf("%w after %s", ErrSubscribeTimeout, c.cfg.SubscribeTimeout)
	case <-c.done:
		return 0, ErrWSClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *WSClientImpl) write(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		return ErrWSClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// readLoop dispatches messages until Close. A read error blocks it in
// reconnect until a new connection is up.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Warn("connection lost", zap.Error(err))
			c.dropConn(conn)
			if c.cfg.OnDisconnect != nil {
				c.cfg.OnDisconnect(err)
			}
			if !c.reconnect() {
				return
			}
			continue
		}
		c.dispatch(message)
	}
}

func (c *WSClientImpl) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// reconnect redials until success or Close, doubling the delay up to
// MaxReconnectDelay. It returns false if the client was closed.
func (c *WSClientImpl) reconnect() bool {
	delay := c.cfg.ReconnectDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			break
		}
		c.log.Warn("reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		delay = min(delay*2, c.cfg.MaxReconnectDelay)
	}

	// Server IDs are per connection; the old ones may be reissued to other
	// subscriptions, so the index is rebuilt from confirmations only.
	c.mu.Lock()
	clear(c.subs)
	restoring := make([]*logSubscription, 0, len(c.all))
	for sub := range c.all {
		restoring = append(restoring, sub)
	}
	c.mu.Unlock()

	// Confirmations are read by readLoop, which is waiting on us.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.restore(restoring)
		if c.closed.Load() {
			return
		}
		c.log.Info("reconnected")
		if c.cfg.OnConnect != nil {
			c.cfg.OnConnect()
		}
	}()
	return true
}

// restore resubscribes subs on the current connection; each is indexed under
// its new server ID on confirmation. A subscription that fails to restore stays
// silent until the next reconnect.
func (c *WSClientImpl) restore(subs []*logSubscription) {
	for _, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubscribeTimeout)
		_, err := c.subscribe(ctx, sub)
		cancel()
		if err != nil {
			c.log.Warn("resubscribe failed", zap.Strings("mentions", sub.filter.Mentions), zap.Error(err))
		}
	}
}

// wsMessage covers subscription replies, error replies and notifications.
type wsMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
				Err       any      `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (c *WSClientImpl) dispatch(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug("undecodable message", zap.Error(err))
		return
	}

	switch {
	case msg.Method == "logsNotification" && msg.Params != nil:
		c.deliver(msg.Params.Subscription, LogNotification{
			Signature: msg.Params.Result.Value.Signature,
			Slot:      msg.Params.Result.Context.Slot,
			Logs:      msg.Params.Result.Value.Logs,
			Err:       msg.Params.Result.Value.Err,
		})
	case msg.ID != nil && msg.Error != nil:
		c.log.Warn("subscription rejected",
			zap.Uint64("id", *msg.ID),
			zap.Int("code", msg.Error.Code),
			zap.String("message", msg.Error.Message))
		c.resolve(*msg.ID, subscribeResult{
			err: fmt.Errorf("logsSubscribe: rpc error %d: %s", msg.Error.Code, msg.Error.Message),
		})
	case msg.ID != nil && len(msg.Result) > 0:
		var id int64
		if err := json.Unmarshal(msg.Result, &id); err != nil {
			return
		}
		c.resolve(*msg.ID, subscribeResult{id: id})
	}
}

func (c *WSClientImpl) resolve(reqID uint64, r subscribeResult) {
	c.mu.Lock()
	p, ok := c.pending[reqID]
	if ok && r.err == nil {
		c.subs[r.id] = p.sub
		c.all[p.sub] = struct{}{}
	}
	delete(c.pending, reqID)
	c.mu.Unlock()
	if ok {
		p.result <- r
	}
}

// deliver blocks until the subscriber takes n or the client closes.
func (c *WSClientImpl) deliver(subID int64, n LogNotification) {
	c.mu.Lock()
	sub, ok := c.subs[subID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case sub.out <- n:
	case <-c.done:
	}
}

func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				// Failures surface in readLoop.
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}
