package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"pump-graduates/internal/observability"
)

// ReconnectPolicy decides how the client recovers from a dropped
// connection. The two deployment variants share this interface:
// autonomous background retry, and passive lazily-triggered reconnect.
type ReconnectPolicy interface {
	// OnDisconnect is invoked once per connection drop.
	OnDisconnect(c *Client)

	// OnConnect is invoked after each successful connection.
	OnConnect()
}

// AutoReconnect retries with exponential backoff: base delay doubling
// per consecutive failure, up to a bounded attempt count. Exhausting
// the attempts surfaces a terminal give-up condition on the client that
// requires an external Reconnect call to clear.
type AutoReconnect struct {
	baseDelay   time.Duration
	maxAttempts int
	clock       clock.Clock
	logger      *log.Logger

	mu       sync.Mutex
	attempts int
}

// AutoReconnectOptions configures an AutoReconnect policy.
type AutoReconnectOptions struct {
	// BaseDelay is the first retry delay. Default: 2s.
	BaseDelay time.Duration
	// MaxAttempts bounds consecutive retries. Default: 5.
	MaxAttempts int
	Clock       clock.Clock
	Logger      *log.Logger
}

// NewAutoReconnect creates the autonomous retry policy.
func NewAutoReconnect(opts AutoReconnectOptions) *AutoReconnect {
	baseDelay := opts.BaseDelay
	if baseDelay == 0 {
		baseDelay = 2 * time.Second
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &AutoReconnect{
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
		clock:       clk,
		logger:      logger,
	}
}

// Compile-time interface check.
var _ ReconnectPolicy = (*AutoReconnect)(nil)

// OnDisconnect schedules one reconnect attempt at the current backoff
// delay, or marks the client exhausted once the attempt budget is spent.
func (p *AutoReconnect) OnDisconnect(c *Client) {
	p.mu.Lock()
	if p.attempts >= p.maxAttempts {
		p.mu.Unlock()
		p.logger.Printf("Feed reconnect gave up after %d attempts", p.maxAttempts)
		c.markExhausted()
		return
	}
	p.attempts++
	delay := backoffDelay(p.baseDelay, p.attempts)
	p.mu.Unlock()

	p.logger.Printf("Feed reconnect attempt %d/%d in %v", p.attemptCount(), p.maxAttempts, delay)

	go func() {
		p.clock.Sleep(delay)
		if c.closed.Load() {
			return
		}
		observability.RecordFeedReconnect()
		if err := c.Connect(context.Background()); err != nil {
			p.logger.Printf("Feed reconnect failed: %v", err)
			// A failed dial never emits a close event, so advance the
			// policy here to keep the backoff sequence going.
			p.OnDisconnect(c)
		}
	}()
}

// OnConnect resets the consecutive failure count.
func (p *AutoReconnect) OnConnect() {
	p.mu.Lock()
	p.attempts = 0
	p.mu.Unlock()
}

func (p *AutoReconnect) attemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// backoffDelay returns base doubled per prior attempt: attempt 1 waits
// base, attempt 2 waits 2*base, and so on.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 1)
}

// ManualReconnect never self-schedules. Recovery happens lazily when an
// external caller (health probe or force-reconnect endpoint) invokes
// Reconnect on the client. Suits runtimes that forbid delayed background
// work outside a request context.
type ManualReconnect struct{}

// NewManualReconnect creates the passive policy.
func NewManualReconnect() *ManualReconnect {
	return &ManualReconnect{}
}

// Compile-time interface check.
var _ ReconnectPolicy = (*ManualReconnect)(nil)

// OnDisconnect does nothing; the next external probe reconnects.
func (p *ManualReconnect) OnDisconnect(*Client) {}

// OnConnect does nothing.
func (p *ManualReconnect) OnConnect() {}

// markExhausted records the terminal autonomous-retry give-up state.
func (c *Client) markExhausted() {
	c.exhausted.Store(true)
}
