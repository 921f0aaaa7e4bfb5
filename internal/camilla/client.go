// Package camilla is the control-plane transport to the audio engine: one
// persistent WebSocket to the engine's control port, single-key JSON command
// envelopes, and reply correlation by command name.
//
// The wire protocol carries no request id, so replies are matched to the
// oldest pending request registered under the same command name. On a single
// ordered connection the engine answers same-named requests in send order,
// which makes FIFO matching exact. No audio samples cross this channel.
package camilla

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	defaultConnectTimeout = 5 * time.Second
	defaultRequestTimeout = 5 * time.Second

	// Generated configs and GetConfigJson replies can run well past the
	// library's 32 KiB default read limit.
	maxFrameBytes = 1 << 20
)

// Options configures a Client. Zero-valued fields take defaults.
type Options struct {
	// URL of the engine control port, e.g. "ws://10.0.0.5:1234".
	URL string

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Backoff        BackoffConfig
}

// Client is the persistent connection to one engine. All exported methods are
// safe for concurrent use.
type Client struct {
	url            string
	connectTimeout time.Duration
	requestTimeout time.Duration
	backoffCfg     BackoffConfig
	logger         *slog.Logger
	done           chan struct{}

	mu           sync.Mutex
	conn         *websocket.Conn
	state        ConnState
	pending      map[string][]*pendingRequest
	reconnects   int
	lastErr      error
	closed       bool
	reconnecting bool

	// The websocket connection permits one writer at a time.
	writeMu sync.Mutex
}

type pendingRequest struct {
	name  string
	ch    chan reply
	timer *time.Timer
}

type reply struct {
	value json.RawMessage
	err   error
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = DefaultBackoffConfig()
	}

	return &Client{
		url:            opts.URL,
		connectTimeout: opts.ConnectTimeout,
		requestTimeout: opts.RequestTimeout,
		backoffCfg:     opts.Backoff,
		logger:         logger,
		done:           make(chan struct{}),
		pending:        make(map[string][]*pendingRequest),
	}
}

// Connect establishes the control connection. It is idempotent: a no-op when
// already connected or connecting. Dialing is bounded by the connect timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateDisconnected
		c.lastErr = err
		return err
	}
	if c.closed {
		conn.Close(websocket.StatusNormalClosure, "shutting down")
		return ErrClientClosed
	}
	c.conn = conn
	c.state = StateConnected
	go c.readPump(conn)

	c.logger.Info("connected to engine", "url", c.url)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		if dialCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return nil, fmt.Errorf("dialing engine: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)
	return conn, nil
}

// SendCommand issues one request and waits for the matching reply, a
// per-request timeout, or ctx cancellation, whichever settles first. A nil
// params value sends the bare command string.
func (c *Client) SendCommand(ctx context.Context, name string, params any) (json.RawMessage, error) {
	frame, err := encodeCommand(name, params)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}

	// Registration and the socket write stay atomic with respect to other
	// senders: the reply protocol correlates by command name only, so the
	// pending queue order must match the order frames hit the wire.
	c.writeMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.writeMu.Unlock()
		return nil, ErrClientClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		c.writeMu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, ErrNotConnected)
	}
	p := &pendingRequest{name: name, ch: make(chan reply, 1)}
	p.timer = time.AfterFunc(c.requestTimeout, func() { c.expire(p) })
	c.pending[name] = append(c.pending[name], p)
	c.mu.Unlock()

	// The write is bounded too: a stalled peer must not hold writeMu and
	// wedge every sender queued behind it.
	writeCtx, cancelWrite := context.WithTimeout(ctx, c.requestTimeout)
	err = conn.Write(writeCtx, websocket.MessageText, frame)
	cancelWrite()
	c.writeMu.Unlock()
	if err != nil {
		if c.unregister(p) {
			p.timer.Stop()
		}
		return nil, fmt.Errorf("sending %s: %w", name, err)
	}

	select {
	case r := <-p.ch:
		return r.value, r.err
	case <-ctx.Done():
		if c.unregister(p) {
			p.timer.Stop()
		}
		return nil, ctx.Err()
	}
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, frame, err := conn.Read(context.Background())
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []byte) {
	name, body, err := decodeReply(frame)
	if err != nil {
		c.logger.Warn("dropping malformed engine frame", "error", err)
		return
	}

	c.mu.Lock()
	queue := c.pending[name]
	var p *pendingRequest
	if len(queue) > 0 {
		p = queue[0]
		if len(queue) == 1 {
			delete(c.pending, name)
		} else {
			c.pending[name] = queue[1:]
		}
	}
	c.mu.Unlock()

	if p == nil {
		c.logger.Debug("unsolicited engine reply", "command", name)
		return
	}
	p.timer.Stop()

	if body.Result == resultOk {
		p.ch <- reply{value: body.Value}
	} else {
		p.ch <- reply{err: &CommandError{Command: name, Code: body.Result}}
	}
}

// expire settles a request whose timeout fired. A late reply and a firing
// timer race for unregistration under the client mutex; whichever wins
// settles the request, the loser is a no-op.
func (c *Client) expire(p *pendingRequest) {
	if c.unregister(p) {
		p.ch <- reply{err: fmt.Errorf("%s: %w", p.name, ErrCommandTimeout)}
	}
}

func (c *Client) unregister(p *pendingRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := c.pending[p.name]
	for i, q := range queue {
		if q == p {
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(c.pending, p.name)
			} else {
				c.pending[p.name] = queue
			}
			return true
		}
	}
	return false
}

// handleDisconnect records the drop and starts the reconnect loop. Pending
// requests are deliberately NOT rejected here: they settle via their own
// timers. Failure reporting right after a drop is slower for it, but the
// state machine stays small and the timeout/reply race has a single owner.
func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read pump from a connection already replaced.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.lastErr = err
	closed := c.closed
	startLoop := !closed && !c.reconnecting
	if startLoop {
		c.reconnecting = true
	}
	c.mu.Unlock()

	if closed {
		return
	}
	c.logger.Warn("engine connection lost", "error", err)
	if startLoop {
		go c.reconnectLoop()
	}
}

func (c *Client) reconnectLoop() {
	backoff := NewBackoff(c.backoffCfg)
	for {
		delay := backoff.Next()
		c.logger.Info("scheduling engine reconnect", "delay", delay)

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		// Another caller connected, or is mid-dial via Connect; stand down
		// rather than race a second dial against it.
		if c.closed || c.state != StateDisconnected {
			c.reconnecting = false
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		conn, err := c.dial(context.Background())

		c.mu.Lock()
		if err != nil {
			c.state = StateDisconnected
			c.lastErr = err
			c.mu.Unlock()
			c.logger.Warn("engine reconnect failed", "error", err)
			continue
		}
		if c.closed {
			c.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "shutting down")
			return
		}
		c.conn = conn
		c.state = StateConnected
		c.reconnects++
		c.reconnecting = false
		c.mu.Unlock()

		c.logger.Info("reconnected to engine", "url", c.url)
		go c.readPump(conn)
		return
	}
}

// Close shuts the client down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	return nil
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// ReconnectCount reports how many times the client re-established a dropped
// connection over its lifetime.
func (c *Client) ReconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// LastError returns the most recent connect or read failure, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
