package client

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/reconnect"
	"github.com/okian/stadium/pkg/logger"
)

type options struct {
	header    http.Header
	dialer    *websocket.Dialer
	backoff   *reconnect.Backoff
	clock     clockwork.Clock
	handler   Handler
	maxEvents int
	logger    logger.Logger
}

// Option configures a Client.
type Option func(*options)

// WithBackoff sets the reconnect schedule.
func WithBackoff(b *reconnect.Backoff) Option {
	return func(o *options) { o.backoff = b }
}

// WithHandler registers a callback for each non-ping message.
func WithHandler(h Handler) Option {
	return func(o *options) { o.handler = h }
}

// WithHeader sets request headers on every dial, e.g. Origin.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithMaxEvents bounds the retained event log.
func WithMaxEvents(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEvents = n
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
