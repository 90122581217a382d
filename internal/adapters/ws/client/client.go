// Package client is the subscriber side of the event stream: it keeps a
// websocket open to the hub, reconnecting on its own when the link drops.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/adapters/ws/hub"
	"github.com/okian/stadium/internal/reconnect"
	"github.com/okian/stadium/pkg/logger"
)

// Defaults.
const (
	defaultMaxEvents = 500
	writeTimeout     = 5 * time.Second
)

// Handler sees every non-ping message in arrival order.
type Handler func(m hub.Message)

// Client is one resilient subscriber connection.
type Client struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	backoff *reconnect.Backoff
	clock   clockwork.Clock
	handler Handler
	logger  logger.Logger

	maxEvents int
	mu        sync.Mutex
	events    []hub.Message
	conn      *websocket.Conn

	manual      chan struct{}
	connected   atomic.Bool
	connections atomic.Int64
}

// New creates a client for a ws:// or wss:// URL.
func New(url string, opts ...Option) *Client {
	o := options{
		dialer:    websocket.DefaultDialer,
		clock:     clockwork.NewRealClock(),
		maxEvents: defaultMaxEvents,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backoff == nil {
		o.backoff = reconnect.New()
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("ws-client")
	}
	return &Client{
		url:       url,
		header:    o.header,
		dialer:    o.dialer,
		backoff:   o.backoff,
		clock:     o.clock,
		handler:   o.handler,
		logger:    o.logger,
		maxEvents: o.maxEvents,
		manual:    make(chan struct{}, 1),
	}
}

// Run keeps the connection up until ctx is done or the backoff gives up.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err == nil {
			c.backoff.Reset()
			c.serve(ctx, conn)
			if err := ctx.Err(); err != nil {
				return err
			}
			c.logger.Info(ctx, "stream disconnected")
		} else {
			c.logger.Warn(ctx, "stream dial failed", logger.Error(err), logger.Int("attempt", c.backoff.Attempts()+1))
		}

		delay, ok := c.backoff.Next()
		if !ok {
			return fmt.Errorf("%w after %d attempts", ErrExhausted, c.backoff.Attempts())
		}
		if err := c.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// Reconnect drops any live connection and retries at once with a fresh
// backoff schedule.
func (c *Client) Reconnect() {
	c.backoff.Reset()
	select {
	case c.manual <- struct{}{}:
	default:
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Events returns the retained event log, oldest first. Pings never appear.
func (c *Client) Events() []hub.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hub.Message(nil), c.events...)
}

// Connected reports whether a connection is live.
func (c *Client) Connected() bool { return c.connected.Load() }

// Connections counts successful dials.
func (c *Client) Connections() int64 { return c.connections.Load() }

// Attempts is the number of consecutive failed attempts.
func (c *Client) Attempts() int { return c.backoff.Attempts() }

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	t := c.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.manual:
		c.backoff.Reset()
		return nil
	case <-t.Chan():
		return nil
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.connections.Add(1)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.connected.Store(false)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug(ctx, "stream read ended", logger.Error(err))
			}
			return
		}

		var m hub.Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.logger.Warn(ctx, "dropping unparseable message", logger.Error(err))
			continue
		}
		if m.Type == hub.TypePing {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(hub.Message{Type: hub.TypePong, Seq: m.Seq, TS: c.clock.Now().UTC()}); err != nil {
				return
			}
			continue
		}
		c.record(m)
		if c.handler != nil {
			c.handler(m)
		}
	}
}

func (c *Client) record(m hub.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, m)
	if over := len(c.events) - c.maxEvents; over > 0 {
		c.events = append(c.events[:0:0], c.events[over:]...)
	}
}
