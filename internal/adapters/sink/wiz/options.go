package wiz

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/pkg/logger"
)

type options struct {
	id           string
	port         int
	replyTimeout time.Duration
	idleTemp     int
	idleDimming  int
	clock        clockwork.Clock
	logger       logger.Logger
}

// Option configures a Sink.
type Option func(*options)

// WithID overrides the sink identifier.
func WithID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.id = id
		}
	}
}

// WithPort sets the port used for bulbs given without one.
func WithPort(port int) Option {
	return func(o *options) {
		if port > 0 {
			o.port = port
		}
	}
}

// WithReplyTimeout bounds the wait for each bulb's acknowledgement.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.replyTimeout = d
		}
	}
}

// WithIdle sets the warm-white idle state.
func WithIdle(temp, dimming int) Option {
	return func(o *options) {
		if temp > 0 {
			o.idleTemp = temp
		}
		if dimming > 0 {
			o.idleDimming = dimming
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
