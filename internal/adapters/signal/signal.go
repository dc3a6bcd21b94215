// Package signal is the control-plane WebSocket client.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/intercom/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConflictCloseCode is the close code the server uses to report that the
// same session is active on another connection.
const ConflictCloseCode = 4409

var ErrConnectionClosed = errors.New("connection closed")

type Option func(*Client)

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialer.HandshakeTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

func WithSendBuffer(n int) Option {
	return func(c *Client) { c.sendBuffer = n }
}

// WithHeader adds headers sent with every handshake.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// Client implements core.Transport over gorilla/websocket. Only the most
// recent connection delivers callbacks; older ones are discarded silently.
type Client struct {
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	sendBuffer   int
	log          zerolog.Logger

	mu         sync.Mutex
	url        string
	state      core.ReadyState
	gen        uint64
	current    *wsConn
	dialCancel context.CancelFunc

	onOpen     func()
	onClose    func(error)
	onConflict func()
	onMessage  func(Envelope)
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		writeTimeout: 5 * time.Second,
		sendBuffer:   32,
		state:        core.StateClosed,
		log:          log.With().Str("module", "adapters.signal").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

// OnClose receives the cause of every unexpected close, dial failures included.
func (c *Client) OnClose(fn func(error)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *Client) OnConflict(fn func()) {
	c.mu.Lock()
	c.onConflict = fn
	c.mu.Unlock()
}

// OnMessage receives every server frame that is not handled by the client itself.
func (c *Client) OnMessage(fn func(Envelope)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *Client) ReadyState() core.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Connect drops any current connection and dials url in the background.
func (c *Client) Connect(url string) {
	c.mu.Lock()
	prev := c.detachLocked()
	c.gen++
	gen := c.gen
	c.url = url
	c.state = core.StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	c.dialCancel = cancel
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	go c.dial(ctx, gen, url)
}

// Send queues f on the current connection without blocking.
func (c *Client) Send(f core.Frame) error {
	c.mu.Lock()
	conn := c.current
	open := c.state == core.StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return core.ErrNotConnected
	}
	return conn.TrySend(f)
}

// Close tears the connection down. No close callback is delivered for it.
func (c *Client) Close() {
	c.mu.Lock()
	prev := c.detachLocked()
	c.gen++
	c.state = core.StateClosed
	c.mu.Unlock()

	if prev == nil {
		return
	}
	_ = prev.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
	prev.Close()
	c.log.Info().Msg("connection closed by client")
}

// detachLocked forgets the current connection and aborts a dial in flight.
// Must be called with mu held.
func (c *Client) detachLocked() *wsConn {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	prev := c.current
	c.current = nil
	return prev
}

func (c *Client) dial(ctx context.Context, gen uint64, url string) {
	ws, _, err := c.dialer.DialContext(ctx, url, c.header)
	if err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("dial failed")
		c.finish(gen, nil, err)
		return
	}

	conn := &wsConn{
		gen:  gen,
		conn: ws,
		send: make(chan core.Frame, c.sendBuffer),
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug().Str("url", url).Msg("discarding stale connection")
		_ = ws.Close()
		return
	}
	c.current = conn
	c.state = core.StateOpen
	c.dialCancel = nil
	cb := c.onOpen
	c.mu.Unlock()

	c.log.Info().Str("url", url).Msg("connection open")

	connCtx, cancel := context.WithCancel(context.Background())
	go c.writePump(connCtx, conn)

	// open is delivered before any frame or close of this connection
	if cb != nil {
		cb()
	}
	go func() {
		defer cancel()
		c.readPump(conn)
	}()
}

// finish is the single exit path for a connection generation.
func (c *Client) finish(gen uint64, conn *wsConn, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.dialCancel = nil
	c.state = core.StateClosed
	onClose := c.onClose
	onConflict := c.onConflict
	c.mu.Unlock()

	if conn != nil && conn.conflict.Load() {
		if onConflict != nil {
			onConflict()
		}
		return
	}
	if onClose != nil {
		onClose(cause)
	}
}

type wsConn struct {
	gen  uint64
	conn *websocket.Conn
	send chan core.Frame

	conflict atomic.Bool

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}
