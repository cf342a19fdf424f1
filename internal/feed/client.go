package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"pump-graduates/internal/observability"
)

// subscribeMethod is the fixed control message the graduation feed
// expects on connect. The source delivers no migration events unless
// this exact shape is sent.
const subscribeMethod = "subscribeMigration"

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config configures feed client behavior.
type Config struct {
	// HandshakeTimeout bounds connection establishment.
	HandshakeTimeout time.Duration
	// KeepaliveInterval is the interval for keepalive ping frames.
	KeepaliveInterval time.Duration
	// WriteTimeout is the timeout for writing control messages.
	WriteTimeout time.Duration
	// MessageBuffer is the inbound message channel capacity.
	MessageBuffer int
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MessageBuffer:     1024,
	}
}

// Client owns the lifecycle of the outbound streaming connection to the
// graduation feed: subscribe-on-connect, periodic keepalive, and the
// reconnect policy chosen at construction.
type Client struct {
	endpoint string
	config   Config
	policy   ReconnectPolicy
	clock    clock.Clock
	logger   *log.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	keepaliveStop chan struct{}
	lastErr       error

	state     atomic.Int32
	exhausted atomic.Bool
	closed    atomic.Bool

	messages chan json.RawMessage
	done     chan struct{}
	wg       sync.WaitGroup
}

// ClientOptions holds optional client dependencies.
type ClientOptions struct {
	Config *Config
	Clock  clock.Clock
	Logger *log.Logger
}

// NewClient creates a feed client. It does not connect; call Connect.
func NewClient(endpoint string, policy ReconnectPolicy, opts ClientOptions) *Client {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if policy == nil {
		policy = NewManualReconnect()
	}

	return &Client{
		endpoint: endpoint,
		config:   cfg,
		policy:   policy,
		clock:    clk,
		logger:   logger,
		messages: make(chan json.RawMessage, cfg.MessageBuffer),
		done:     make(chan struct{}),
	}
}

// Messages returns the inbound feed message channel. Messages are
// delivered in arrival order and consumed by a single ingestion loop.
func (c *Client) Messages() <-chan json.RawMessage {
	return c.messages
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Exhausted reports whether autonomous reconnection gave up. The
// condition clears on the next successful Connect.
func (c *Client) Exhausted() bool {
	return c.exhausted.Load()
}

// LastError returns the error from the most recent disconnect or failed
// connection attempt.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect establishes the streaming connection and sends the subscribe
// control message. Idempotent: a no-op when already connecting or
// connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return fmt.Errorf("feed client closed")
	}

	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return nil
	}
	observability.UpdateFeedState(int(StateConnecting))

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		observability.UpdateFeedState(int(StateDisconnected))
		c.setLastErr(err)
		return fmt.Errorf("feed dial: %w", err)
	}

	conn.SetWriteDeadline(c.clock.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(map[string]string{"method": subscribeMethod}); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		observability.UpdateFeedState(int(StateDisconnected))
		c.setLastErr(err)
		return fmt.Errorf("write subscribe: %w", err)
	}

	stop := make(chan struct{})

	c.mu.Lock()
	// Close may have won the race since the entry check; installing the
	// connection now would leak it and its goroutines past Close.
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		observability.UpdateFeedState(int(StateDisconnected))
		return fmt.Errorf("feed client closed")
	}
	c.conn = conn
	c.keepaliveStop = stop
	c.lastErr = nil
	// Registered under the lock so a racing Close always waits for
	// these goroutines.
	c.wg.Add(2)
	go c.readLoop(conn, stop)
	go c.keepaliveLoop(conn, stop)
	c.state.Store(int32(StateConnected))
	c.mu.Unlock()

	observability.UpdateFeedState(int(StateConnected))
	c.exhausted.Store(false)
	c.policy.OnConnect()

	c.logger.Printf("Feed connected to %s", c.endpoint)
	return nil
}

// Reconnect re-establishes the connection if it is down. Idempotent:
// a no-op when already connected. Used by the manual policy's external
// probes and by the force-reconnect endpoint.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.State() == StateConnected {
		return nil
	}
	return c.Connect(ctx)
}

// Close shuts the connection down cleanly and stops all timers.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.state.Store(int32(StateDisconnected))
	c.wg.Wait()
	return nil
}

// readLoop reads messages from one connection until it drops.
func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer c.wg.Done()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, stop, err)
			return
		}

		select {
		case c.messages <- json.RawMessage(message):
		case <-c.done:
			return
		}
	}
}

// keepaliveLoop sends periodic ping frames while the connection is
// open. The loop is owned by the connection and stops with it.
func (c *Client) keepaliveLoop(conn *websocket.Conn, stop chan struct{}) {
	defer c.wg.Done()

	ticker := c.clock.Ticker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(c.clock.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Connection is likely dead; the reader handles the drop.
				return
			}
		}
	}
}

// handleDisconnect transitions to Disconnected exactly once per
// connection and hands recovery to the reconnect policy.
func (c *Client) handleDisconnect(conn *websocket.Conn, stop chan struct{}, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.keepaliveStop = nil
	c.lastErr = err
	c.mu.Unlock()

	close(stop)
	conn.Close()
	c.state.Store(int32(StateDisconnected))
	observability.UpdateFeedState(int(StateDisconnected))

	if c.closed.Load() {
		return
	}

	c.logger.Printf("Feed disconnected: %v", err)
	c.policy.OnDisconnect(c)
}

func (c *Client) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
