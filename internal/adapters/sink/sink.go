// Package sink defines the uniform contract every actuator family implements.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/domain/celebration"
)

// Sink renders celebrations on one device family. Failures stay local to the
// sink; the dispatcher records them and moves on.
type Sink interface {
	// ID names the sink in outcomes, logs and metrics.
	ID() string

	// Apply renders cmd. It returns when the sequence finished, failed, or ctx
	// is done.
	Apply(ctx context.Context, cmd celebration.Command) error

	// ApplyIdle returns the devices to their default state.
	ApplyIdle(ctx context.Context) error
}

// Budgeted is implemented by sinks whose calls spend time beyond the step
// holds, on device round trips or rate limiting.
type Budgeted interface {
	// ApplyOverhead bounds the time Apply(cmd) spends outside step holds.
	ApplyOverhead(cmd celebration.Command) time.Duration

	// IdleOverhead bounds the time ApplyIdle spends.
	IdleOverhead() time.Duration
}

// ApplyOverhead returns s's overhead for cmd, or zero when s does not report
// one.
func ApplyOverhead(s Sink, cmd celebration.Command) time.Duration {
	if b, ok := s.(Budgeted); ok {
		return b.ApplyOverhead(cmd)
	}
	return 0
}

// IdleOverhead returns s's idle overhead, or zero when s does not report one.
func IdleOverhead(s Sink) time.Duration {
	if b, ok := s.(Budgeted); ok {
		return b.IdleOverhead()
	}
	return 0
}

// ShowFunc puts one step on the devices.
type ShowFunc func(ctx context.Context, step celebration.Step) error

// Play walks steps, holding each one for its duration on clock. It stops at
// the first show error or when ctx is done.
func Play(ctx context.Context, clock clockwork.Clock, steps []celebration.Step, show ShowFunc) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := show(ctx, step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if step.Hold <= 0 {
			continue
		}
		t := clock.NewTimer(step.Hold)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.Chan():
		}
	}
	return nil
}

// Scale applies a brightness fraction to a 0-100 percentage, never going
// below floor.
func Scale(brightness float64, floor int) int {
	pct := int(brightness*100 + 0.5)
	if pct < floor {
		return floor
	}
	if pct > 100 {
		return 100
	}
	return pct
}
