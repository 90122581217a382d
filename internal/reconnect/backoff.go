// Package reconnect provides the linear-with-jitter retry schedule shared by
// every reconnecting connection in stadium.
package reconnect

import (
	"math/rand"
	"sync"
	"time"
)

// Default schedule.
const (
	DefaultBase = 1 * time.Second
	DefaultMax  = 30 * time.Second
)

// Option applies a configuration option to a Backoff.
type Option func(*Backoff)

// WithBase sets the per-attempt delay increment.
func WithBase(d time.Duration) Option {
	return func(b *Backoff) {
		if d > 0 {
			b.base = d
		}
	}
}

// WithMax caps the delay before jitter.
func WithMax(d time.Duration) Option {
	return func(b *Backoff) {
		if d > 0 {
			b.max = d
		}
	}
}

// WithMaxAttempts stops the schedule after n consecutive failures; 0 is unlimited.
func WithMaxAttempts(n int) Option {
	return func(b *Backoff) {
		if n >= 0 {
			b.maxAttempts = n
		}
	}
}

// WithJitter sets the upper bound of the random delay added to each attempt.
// It is clamped below the base so uncapped delays keep strictly increasing.
func WithJitter(d time.Duration) Option {
	return func(b *Backoff) {
		if d >= 0 {
			b.jitter = d
		}
	}
}

// WithRand injects the jitter source.
func WithRand(r *rand.Rand) Option {
	return func(b *Backoff) {
		if r != nil {
			b.rng = r
		}
	}
}

// Backoff computes base × attempt, capped at max, plus jitter.
// It is safe for concurrent use.
type Backoff struct {
	mu          sync.Mutex
	base        time.Duration
	max         time.Duration
	maxAttempts int
	jitter      time.Duration
	attempts    int
	rng         *rand.Rand
}

// New builds a Backoff. The default jitter is a quarter of the base.
func New(opts ...Option) *Backoff {
	b := &Backoff{
		base:   DefaultBase,
		max:    DefaultMax,
		jitter: -1,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter only
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.max < b.base {
		b.max = b.base
	}
	if b.jitter < 0 {
		b.jitter = b.base / 4
	}
	if b.jitter >= b.base {
		b.jitter = b.base - 1
	}
	return b
}

// Next records a failed attempt and returns the delay before the next one.
// ok is false once the attempt budget is spent.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxAttempts > 0 && b.attempts >= b.maxAttempts {
		return 0, false
	}
	b.attempts++

	delay = b.base * time.Duration(b.attempts)
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	if b.jitter > 0 {
		delay += time.Duration(b.rng.Int63n(int64(b.jitter)))
	}
	return delay, true
}

// Reset zeroes the attempt counter, e.g. after a successful connect or a
// manual reconnect request.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts reports consecutive failures since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Exhausted reports whether Next would refuse.
func (b *Backoff) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxAttempts > 0 && b.attempts >= b.maxAttempts
}
