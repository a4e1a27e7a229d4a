// Package rpc is a JSON-RPC 2.0 client over a single WebSocket connection,
// with support for the pub/sub methods Substrate nodes expose.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by calls made on, or pending in, a closed client.
	ErrClosed = errors.New("rpc: client closed")
	// ErrSubscriberTooSlow terminates a subscription whose buffer overflowed.
	ErrSubscriberTooSlow = errors.New("rpc: subscriber too slow")
)

const (
	defaultSubscriptionBuffer = 128
	defaultReadLimit          = 16 << 20

	// abandonTimeout bounds the unsubscribe sent for a subscription whose
	// subscribe call was cancelled.
	abandonTimeout = 5 * time.Second
)

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type message struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

type notification struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type response struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	ch  chan response
	sub *Subscription
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger    zerolog.Logger
	dialer    *websocket.Dialer
	subBuffer int
	readLimit int64
}

// WithLogger sets the logger used for connection events.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithSubscriptionBuffer sets how many notifications a subscription may queue
// before it is dropped with ErrSubscriberTooSlow.
func WithSubscriptionBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.subBuffer = n
		}
	}
}

// Client multiplexes calls and subscriptions over one connection.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger

	nextID    atomic.Uint64
	subBuffer int

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	subs    map[string]*Subscription

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a ws:// or wss:// endpoint.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	o := options{
		logger:    zerolog.Nop(),
		dialer:    websocket.DefaultDialer,
		subBuffer: defaultSubscriptionBuffer,
		readLimit: defaultReadLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("endpoint %q: scheme must be ws or wss", endpoint)
	}

	conn, _, err := o.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(o.readLimit)

	c := &Client{
		conn:      conn,
		log:       o.logger.With().Str("component", "rpc").Str("endpoint", endpoint).Logger(),
		subBuffer: o.subBuffer,
		pending:   make(map[uint64]*pendingCall),
		subs:      make(map[string]*Subscription),
		closed:    make(chan struct{}),
	}
	go c.readLoop()
	c.log.Debug().Msg("connected")
	return c, nil
}

// Call invokes method and decodes the result into result, which may be nil.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	raw, err := c.roundTrip(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// Subscribe starts a subscription. Notifications are delivered in arrival
// order on Subscription.Notifications.
func (c *Client) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (*Subscription, error) {
	sub := &Subscription{
		client:      c,
		unsubMethod: unsubscribeMethod,
		ch:          make(chan json.RawMessage, c.subBuffer),
		errCh:       make(chan error, 1),
	}
	if _, err := c.roundTrip(ctx, method, params, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Err reports why the connection closed, or nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
		return nil
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params []any, sub *Subscription) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	call := &pendingCall{ch: make(chan response, 1), sub: sub}

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return nil, c.closeErr
	default:
	}
	c.pending[id] = call
	c.mu.Unlock()

	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.write(ctx, req); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case resp := <-call.ch:
		return resp.unwrap(method)
	case <-ctx.Done():
		c.forget(id)
		if sub != nil {
			c.abandon(sub)
		}
		return nil, ctx.Err()
	case <-c.closed:
		// the response may have landed just before the connection dropped
		select {
		case resp := <-call.ch:
			return resp.unwrap(method)
		default:
			return nil, c.closeErr
		}
	}
}

func (r response) unwrap(method string) (json.RawMessage, error) {
	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", method, r.err)
	}
	return r.result, nil
}

func (c *Client) write(ctx context.Context, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteJSON(v); err != nil {
		c.shutdown(err)
		return err
	}
	return nil
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// abandon undoes a subscription whose caller gave up after the node had
// already accepted it. Call it only once the pending call is forgotten, so
// dispatch can no longer register sub.
func (c *Client) abandon(sub *Subscription) {
	c.mu.Lock()
	registered := sub.id != "" && c.subs[sub.id] == sub
	if registered {
		delete(c.subs, sub.id)
	}
	c.mu.Unlock()
	if !registered {
		return
	}
	sub.finish(nil)
	if sub.unsubMethod == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
		defer cancel()
		if err := c.Call(ctx, sub.unsubMethod, nil, sub.id); err != nil {
			c.log.Debug().Err(err).Str("subscription", sub.id).Msg("unsubscribe of abandoned subscription failed")
		}
	}()
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	if msg.ID == nil {
		if msg.Method == "" {
			return
		}
		var n notification
		if err := json.Unmarshal(msg.Params, &n); err != nil {
			c.log.Warn().Err(err).Str("method", msg.Method).Msg("dropping malformed notification")
			return
		}
		c.notify(subscriptionKey(n.Subscription), n.Result)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.pending[*msg.ID]
	if !ok {
		return
	}
	delete(c.pending, *msg.ID)

	if msg.Error != nil {
		call.ch <- response{err: msg.Error}
		return
	}
	if call.sub != nil {
		key := subscriptionKey(msg.Result)
		if key == "" {
			call.ch <- response{err: fmt.Errorf("invalid subscription id %s", string(msg.Result))}
			return
		}
		// Registered before the next frame is read so early notifications land.
		call.sub.id = key
		c.subs[key] = call.sub
	}
	call.ch <- response{result: msg.Result}
}

func (c *Client) notify(key string, result json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[key]
	if !ok {
		return
	}
	select {
	case sub.ch <- result:
	default:
		delete(c.subs, key)
		sub.finish(ErrSubscriberTooSlow)
		c.log.Warn().Str("subscription", key).Msg("subscription dropped: buffer full")
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = ErrClosed
		if err != nil && !errors.Is(err, ErrClosed) {
			c.closeErr = fmt.Errorf("%w: %v", ErrClosed, err)
		}
		close(c.closed)
		for id := range c.pending {
			delete(c.pending, id)
		}
		for key, sub := range c.subs {
			delete(c.subs, key)
			sub.finish(c.closeErr)
		}
		c.mu.Unlock()
		_ = c.conn.Close()
		c.log.Debug().Err(err).Msg("connection closed")
	})
}

// subscriptionKey normalizes a subscription id, which nodes send either as a
// string or a number.
func subscriptionKey(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return strconv.FormatUint(u, 10)
	}
	return n.String()
}
