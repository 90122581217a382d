// Package breaker wraps a sink in a circuit breaker so a dead device fails
// fast instead of eating a full timeout on every celebration.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Defaults.
const (
	defaultFailures    = 3
	defaultOpenTimeout = 30 * time.Second
	defaultHalfOpen    = 1
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = gobreaker.ErrOpenState

// Sink is a sink.Sink guarded by a gobreaker.CircuitBreaker.
type Sink struct {
	inner sink.Sink
	cb    *gobreaker.CircuitBreaker
}

type options struct {
	failures uint32
	timeout  time.Duration
	logger   logger.Logger
}

// Option configures the breaker.
type Option func(*options)

// WithFailures sets how many consecutive failures trip the breaker.
func WithFailures(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.failures = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
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

// Wrap guards inner with a breaker named after its ID.
func Wrap(inner sink.Sink, opts ...Option) *Sink {
	o := options{failures: defaultFailures, timeout: defaultOpenTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("breaker")
	}

	id := inner.ID()
	log := o.logger.With(logger.String("sink", id))
	settings := gobreaker.Settings{
		Name:        id,
		MaxRequests: defaultHalfOpen,
		Timeout:     o.timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= o.failures
		},
		// A cancelled or abandoned call says nothing about the device.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, sink.ErrAbandoned)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateSinkBreakerState(name, int(to))
			log.Warn(context.Background(), "sink breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}
	metrics.UpdateSinkBreakerState(id, int(gobreaker.StateClosed))

	return &Sink{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// ID implements sink.Sink.
func (s *Sink) ID() string { return s.inner.ID() }

// Apply implements sink.Sink.
func (s *Sink) Apply(ctx context.Context, cmd celebration.Command) error {
	return s.execute(ctx, func(ctx context.Context) error { return s.inner.Apply(ctx, cmd) })
}

// ApplyIdle implements sink.Sink.
func (s *Sink) ApplyIdle(ctx context.Context) error {
	return s.execute(ctx, s.inner.ApplyIdle)
}

// ApplyOverhead implements sink.Budgeted for the wrapped sink.
func (s *Sink) ApplyOverhead(cmd celebration.Command) time.Duration {
	return sink.ApplyOverhead(s.inner, cmd)
}

// IdleOverhead implements sink.Budgeted for the wrapped sink.
func (s *Sink) IdleOverhead() time.Duration {
	return sink.IdleOverhead(s.inner)
}

func (s *Sink) execute(ctx context.Context, call func(context.Context) error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		err := call(ctx)
		if err != nil && errors.Is(context.Cause(ctx), sink.ErrAbandoned) {
			err = fmt.Errorf("%w: %w", sink.ErrAbandoned, err)
		}
		return nil, err
	})
	return err
}

// Usable reports whether the breaker currently lets calls through.
func (s *Sink) Usable() bool {
	return s.cb.State() != gobreaker.StateOpen
}

// State exposes the breaker state name.
func (s *Sink) State() string {
	return s.cb.State().String()
}
