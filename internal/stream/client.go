// Package stream keeps a persistent WebSocket connection to the local media
// status source and delivers every snapshot it reports.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/snapshot"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultURL is where the status source listens
	DefaultURL = "ws://localhost:6534"
	// Handshake is the first frame sent on every new connection
	Handshake = "RECIPIENT"

	DefaultConnectTimeout = 5 * time.Second
	// DefaultRetryDelay is the constant pause before reconnecting
	DefaultRetryDelay = 500 * time.Millisecond
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	URL string
	// ConnectTimeout bounds dial plus handshake, 5s by default
	ConnectTimeout time.Duration
	// RetryDelay is the fixed wait between a dropped connection and the next
	// attempt, 500ms by default. It never grows: there is no backoff and no
	// attempt limit.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Client is the reconnecting status-stream client.
//
// It cycles IDLE -> CONNECTING -> OPEN -> RETRYING -> CONNECTING forever
// until stopped. Every time a connection attempt or an open connection ends,
// the subscriber receives the default snapshot before the next attempt.
type Client struct {
	logger *zap.Logger
	opts   Options
	dialer *websocket.Dialer

	mu         sync.Mutex
	state      domain.ConnectionState
	subscriber domain.Subscriber
	running    bool
	cancel     context.CancelFunc
	conn       *websocket.Conn
	wg         sync.WaitGroup
	attempts   int
}

// NewClient creates an idle client
func NewClient(logger *zap.Logger, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		logger: logger,
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.ConnectTimeout},
		state:  domain.ConnIdle,
	}
}

// Subscribe sets the single subscriber. A later call replaces the earlier one.
func (c *Client) Subscribe(fn domain.Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriber = fn
}

// State returns the current connection state
func (c *Client) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns how many connection attempts have been started
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Start launches the connection loop in the background and returns immediately
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true

	// the loop outlives the start context, only Stop ends it
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("Status stream client started", zap.String("url", c.opts.URL))

	c.wg.Add(1)
	go c.run(loopCtx)
	return nil
}

// Stop cancels the loop and closes the active connection
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Failed to close status stream connection", zap.Error(err))
		}
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for status stream loop: %w", ctx.Err())
	}

	c.setState(domain.ConnIdle)
	c.logger.Info("Status stream client stopped")
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	c.emit(snapshot.Default(domain.SourceWNP))

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		c.setState(domain.ConnRetrying)
		c.logger.Debug("Status stream disconnected, retrying",
			zap.Duration("delay", c.opts.RetryDelay),
			zap.Error(err))
		c.emit(snapshot.Default(domain.SourceWNP))

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

// session performs one connection attempt and, when it opens, reads until
// the connection ends. It always returns the reason the attempt ended.
func (c *Client) session(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer c.dropConn(conn)

	c.setState(domain.ConnOpen)
	c.logger.Info("Status stream connected", zap.String("url", c.opts.URL))

	return c.readLoop(conn)
}

// connect dials and sends the handshake under a single watchdog deadline
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	c.state = domain.ConnConnecting
	c.attempts++
	c.mu.Unlock()

	watchdog, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(watchdog, c.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(watchdog.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("connect timeout after %s: %w", c.opts.ConnectTimeout, err)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	if deadline, ok := watchdog.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(Handshake)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send handshake: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		conn.Close()
		return nil, context.Canceled
	}
	c.conn = conn
	c.mu.Unlock()

	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		snap, ok := snapshot.Parse(data, domain.SourceWNP)
		if !ok {
			c.logger.Debug("Dropping malformed status message", zap.Int("bytes", len(data)))
			continue
		}
		c.emit(snap)
	}
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// emit delivers a snapshot to the subscriber. A panicking subscriber is
// logged and otherwise ignored.
func (c *Client) emit(s domain.MediaSnapshot) {
	c.mu.Lock()
	fn := c.subscriber
	c.mu.Unlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Status stream subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(s)
}

func (c *Client) setState(state domain.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
