package dispatch

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/domain/dedupe"
	"github.com/okian/stadium/pkg/logger"
)

type options struct {
	grace        time.Duration
	idleTimeout  time.Duration
	laneCapacity int
	window       time.Duration
	dedupe       dedupe.Deduper
	clock        clockwork.Clock
	observers    []Observer
	logger       logger.Logger
}

// Option configures a Dispatcher.
type Option func(*options)

// WithGrace sets how long a sink may run past the command's duration.
func WithGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.grace = d
		}
	}
}

// WithIdleTimeout bounds each sink's idle call.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithLaneCapacity sets the queue depth of each contest lane.
func WithLaneCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.laneCapacity = n
		}
	}
}

// WithWindow sets the de-duplication window of the default deduper.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithDeduper replaces the default window deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(o *options) {
		if d != nil {
			o.dedupe = d
		}
	}
}

// WithObserver registers a callback for completed dispatches. Observers run
// on the lane, after the result is delivered.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		if fn != nil {
			o.observers = append(o.observers, fn)
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
