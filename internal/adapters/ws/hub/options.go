package hub

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/pkg/logger"
)

type options struct {
	pingInterval time.Duration
	watchdog     time.Duration
	writeWait    time.Duration
	queueSize    int
	readLimit    int64
	origins      []string
	clock        clockwork.Clock
	logger       logger.Logger
}

// Option configures a Hub.
type Option func(*options)

// WithPingInterval sets how often pings are broadcast.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingInterval = d
		}
	}
}

// WithWatchdog sets how long a subscriber may stay silent in both
// directions before it is disconnected.
func WithWatchdog(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.watchdog = d
		}
	}
}

// WithWriteWait bounds each write.
func WithWriteWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeWait = d
		}
	}
}

// WithQueueSize sets each subscriber's outbound queue depth.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithReadLimit caps inbound message size.
func WithReadLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

// WithAllowedOrigins restricts upgrades to the listed origins. Empty or "*"
// allows all.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) {
		o.origins = append(o.origins, origins...)
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
