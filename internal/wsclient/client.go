// Package wsclient is the caller side of a bridge session: it owns one
// websocket, numbers outgoing requests, pairs responses with their waiters and
// hands notifications to subscribers.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
)

var (
	// ErrNotConnected is returned when a request is issued before Connect or after Close.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionClosed settles every request still pending when the session ends.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrTimeout settles a request whose response did not arrive in time.
	ErrTimeout = errors.New("request timeout")
	// ErrUnauthorized is returned by Connect when the peer refuses the token.
	ErrUnauthorized = errors.New("unauthorized")
)

const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxMessageBytes = 16 << 20
	defaultPingInterval    = 30 * time.Second
)

// Options configure a Client.
type Options struct {
	URL             string
	Token           string
	RequestTimeout  time.Duration
	MaxMessageBytes int64
	PingInterval    time.Duration
	HTTPClient      *http.Client
}

// NotificationHandler receives the params of a notification.
type NotificationHandler func(params json.RawMessage)

// Client is one bridge session. Handlers may be registered before Connect so
// that no early notification is missed.
type Client struct {
	opts Options

	nextID atomic.Int64

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[string]*pendingReq
	closed   bool
	handlers map[bridgewire.Method][]NotificationHandler
	onError  []func(error)
	cancel   context.CancelFunc
	done     chan struct{}

	closing atomic.Bool
}

type pendingReq struct {
	method bridgewire.Method
	ch     chan outcome
	timer  *time.Timer
}

type outcome struct {
	resp *bridgewire.Response
	err  error
}

// New constructs a Client. Call Connect before sending requests.
func New(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	return &Client{
		opts:     opts,
		pending:  map[string]*pendingReq{},
		handlers: map[bridgewire.Method][]NotificationHandler{},
	}
}

// Connect opens the websocket with the bearer token in the handshake. It
// returns once the connection is ready. Transport errors after this point are
// reported through OnError handlers.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.mu.Unlock()

	hdr := http.Header{}
	if c.opts.Token != "" {
		hdr.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{
		HTTPHeader: hdr,
		HTTPClient: c.opts.HTTPClient,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s rejected the token", ErrUnauthorized, c.opts.URL)
		}
		return fmt.Errorf("connect %s: %w", c.opts.URL, err)
	}
	conn.SetReadLimit(c.opts.MaxMessageBytes)

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	logx.Log.Debug().Str("url", c.opts.URL).Msg("bridge connected")
	go c.readLoop(loopCtx, conn)
	go c.pingLoop(loopCtx, conn)
	return nil
}

// Connected reports whether the session is usable.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// On registers a handler for notifications carrying method. Handlers run on
// the read loop and must not block.
func (c *Client) On(method bridgewire.Method, h NotificationHandler) {
	c.mu.Lock()
	c.handlers[method] = append(c.handlers[method], h)
	c.mu.Unlock()
}

// OnError registers a handler for transport errors after Connect.
func (c *Client) OnError(h func(error)) {
	c.mu.Lock()
	c.onError = append(c.onError, h)
	c.mu.Unlock()
}

// Done is closed when the session ends. It is nil before Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// SendRequest writes a request and waits for its response. A timeout <= 0
// uses the configured request timeout. Exactly one of response, timeout,
// connection close, write failure or ctx cancellation settles the call.
// An error response from the peer is returned as a response, not as an error.
func (c *Client) SendRequest(ctx context.Context, method bridgewire.Method, params any, timeout time.Duration) (*bridgewire.Response, error) {
	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}
	n := c.nextID.Add(1)
	req, err := bridgewire.NewRequest(bridgewire.NumberID(n), method, params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	key := strconv.FormatInt(n, 10)
	p := &pendingReq{method: method, ch: make(chan outcome, 1)}

	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closed {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[key] = p
	p.timer = time.AfterFunc(timeout, func() {
		c.settle(key, outcome{err: fmt.Errorf("%w: %s (id: %d)", ErrTimeout, method, n)})
	})
	c.mu.Unlock()

	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		c.settle(key, outcome{err: fmt.Errorf("write %s (id: %d): %w", method, n, err)})
	}

	select {
	case o := <-p.ch:
		return o.resp, o.err
	case <-ctx.Done():
		c.settle(key, outcome{err: ctx.Err()})
		o := <-p.ch
		return o.resp, o.err
	}
}

// Call sends a request with the default timeout and decodes the result into
// out. An error response is returned as *bridgewire.Error.
func (c *Client) Call(ctx context.Context, method bridgewire.Method, params, out any) error {
	resp, err := c.SendRequest(ctx, method, params, 0)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// settle removes the pending entry and delivers o to its waiter. It reports
// false when the entry was already settled.
func (c *Client) settle(key string, o outcome) bool {
	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.ch <- o
	return true
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close ends the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	c.shutdown(nil)
	return nil
}

// shutdown marks the session closed and rejects every pending request.
func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	handlers := append([]func(error){}, c.onError...)
	done := c.done
	c.mu.Unlock()

	for _, k := range keys {
		c.settle(k, outcome{err: ErrConnectionClosed})
	}
	if cause != nil && !c.closing.Load() {
		logx.Log.Warn().Err(cause).Msg("bridge connection lost")
		for _, h := range handlers {
			h(cause)
		}
	}
	if done != nil {
		close(done)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.shutdown(err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	switch {
	case bridgewire.IsResponse(data):
		var resp bridgewire.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			logx.Log.Warn().Err(err).Msg("failed to parse response")
			return
		}
		if !c.settle(resp.ID.Key(), outcome{resp: &resp}) {
			logx.Log.Debug().Str("id", resp.ID.String()).Msg("response for unknown request")
		}
	case bridgewire.IsNotification(data):
		var n bridgewire.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			logx.Log.Warn().Err(err).Msg("failed to parse notification")
			return
		}
		c.mu.Lock()
		hs := append([]NotificationHandler{}, c.handlers[n.Method]...)
		c.mu.Unlock()
		for _, h := range hs {
			h(n.Params)
		}
	default:
		logx.Log.Warn().Int("bytes", len(data)).Msg("dropping invalid message")
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = conn.Ping(pctx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
