// Package logsink is a dry-run sink that logs what real devices would show.
package logsink

import (
	"context"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/pkg/logger"
)

// Sink logs every step. With holds enabled it also waits like a device would.
type Sink struct {
	id     string
	hold   bool
	clock  clockwork.Clock
	logger logger.Logger

	applied atomic.Int64
	idled   atomic.Int64
}

// Option configures a Sink.
type Option func(*Sink)

// WithID overrides the sink identifier.
func WithID(id string) Option {
	return func(s *Sink) {
		if id != "" {
			s.id = id
		}
	}
}

// WithHold makes the sink wait out each step.
func WithHold(hold bool) Option {
	return func(s *Sink) { s.hold = hold }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Sink) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a dry-run sink.
func New(opts ...Option) *Sink {
	s := &Sink{id: "log", clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("logsink")
	}
	return s
}

// ID implements sink.Sink.
func (s *Sink) ID() string { return s.id }

// Apply logs the command and each of its steps.
func (s *Sink) Apply(ctx context.Context, cmd celebration.Command) error {
	s.applied.Add(1)
	s.logger.Info(ctx, "celebration",
		logger.String("contest", cmd.ContestID),
		logger.String("category", string(cmd.Category)),
		logger.String("team", cmd.Team.Abbreviation),
		logger.String("intensity", cmd.Intensity.String()),
		logger.Int("steps", len(cmd.Steps)),
		logger.Duration("duration", cmd.Duration),
		logger.Bool("ambient", cmd.Ambient),
	)

	steps := cmd.Steps
	if !s.hold {
		steps = make([]celebration.Step, len(cmd.Steps))
		for i, st := range cmd.Steps {
			steps[i] = celebration.Step{Color: st.Color}
		}
	}
	i := 0
	return sink.Play(ctx, s.clock, steps, func(ctx context.Context, step celebration.Step) error {
		i++
		s.logger.Debug(ctx, "step", logger.Int("n", i), logger.String("color", step.Color.Hex()))
		return nil
	})
}

// ApplyIdle logs the return to idle.
func (s *Sink) ApplyIdle(ctx context.Context) error {
	s.idled.Add(1)
	s.logger.Info(ctx, "idle")
	return nil
}

// Applied counts Apply calls.
func (s *Sink) Applied() int64 { return s.applied.Load() }

// Idled counts ApplyIdle calls.
func (s *Sink) Idled() int64 { return s.idled.Load() }
