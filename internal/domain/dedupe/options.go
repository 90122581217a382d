package dedupe

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Option applies a configuration option to the window deduper.
type Option func(*windowDeduper)

// WithWindow sets how long a recorded key suppresses repeats.
func WithWindow(window time.Duration) Option {
	return func(d *windowDeduper) {
		if window > 0 {
			d.window = window
		}
	}
}

// WithMaxSize bounds memory; the oldest key is evicted first.
// maxSize <= 0 means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *windowDeduper) {
		d.maxSize = maxSize
	}
}

// WithClock injects the time source, e.g. a fake clock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(d *windowDeduper) {
		if clock != nil {
			d.clock = clock
		}
	}
}
