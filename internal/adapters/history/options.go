package history

import (
	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/pkg/logger"
)

const defaultQueueSize = 512

type options struct {
	queueSize int
	clock     clockwork.Clock
	logger    logger.Logger
}

// Option configures a Recorder.
type Option func(*options)

// WithQueueSize bounds the number of pending writes.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
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
