// Package dispatch fans celebration commands out to actuator sinks.
//
// Commands for one contest run strictly in submission order on that
// contest's lane; lanes for different contests run in parallel. Within a
// command every sink is called concurrently under its own timeout, and a
// slow or failing sink only ever affects its own outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/okian/stadium/internal/adapters/mq/queue"
	"github.com/okian/stadium/internal/adapters/mq/worker"
	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/domain/dedupe"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// ManualLane serializes manual commands that name no contest.
const ManualLane = "manual"

// Defaults.
const (
	defaultGrace        = 2 * time.Second
	defaultIdleTimeout  = 5 * time.Second
	defaultLaneCapacity = 32
	defaultWindow       = 30 * time.Second
)

// Sink is the contract the dispatcher drives.
type Sink = sink.Sink

// Outcome is what one sink did with one command.
type Outcome struct {
	SinkID  string        `json:"sink"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
	Err     error         `json:"-"`
}

// Result collects every sink's outcome for one dispatch.
type Result struct {
	Command    celebration.Command `json:"command"`
	Outcomes   []Outcome           `json:"outcomes"`
	Suppressed bool                `json:"suppressed"`
	Idle       bool                `json:"idle"`
}

// Failed counts failed outcomes.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK {
			n++
		}
	}
	return n
}

// Observer sees every completed dispatch, including idle ones.
type Observer func(ctx context.Context, r Result)

type job struct {
	cmd  celebration.Command
	idle bool
	done chan Result
}

// Dispatcher owns the sinks, the de-duplication window and the lanes.
type Dispatcher struct {
	sinks       []sink.Sink
	dedupe      dedupe.Deduper
	lanes       *worker.Pool[job]
	grace       time.Duration
	idleTimeout time.Duration
	clock       clockwork.Clock
	observers   []Observer
	logger      logger.Logger
}

// New creates a dispatcher over sinks and starts accepting work.
func New(sinks []sink.Sink, opts ...Option) *Dispatcher {
	o := options{
		grace:        defaultGrace,
		idleTimeout:  defaultIdleTimeout,
		laneCapacity: defaultLaneCapacity,
		window:       defaultWindow,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("dispatch")
	}
	if o.dedupe == nil {
		o.dedupe = dedupe.NewWindowDeduper(dedupe.WithWindow(o.window), dedupe.WithClock(o.clock))
	}

	d := &Dispatcher{
		sinks:       append([]sink.Sink(nil), sinks...),
		dedupe:      o.dedupe,
		grace:       o.grace,
		idleTimeout: o.idleTimeout,
		clock:       o.clock,
		observers:   o.observers,
		logger:      o.logger,
	}
	d.lanes = worker.NewPool[job](context.Background(), d.handle,
		worker.WithCapacity(o.laneCapacity),
		worker.WithName("dispatch"),
		worker.WithLogger(o.logger),
	)
	return d
}

// Submit queues cmd on its contest lane and returns at once. The channel
// yields exactly one Result. A duplicate within the window yields a
// suppressed Result without touching any sink.
func (d *Dispatcher) Submit(ctx context.Context, cmd celebration.Command) (<-chan Result, error) {
	key := cmd.DedupeKey()
	if d.dedupe.SeenAndRecord(ctx, key) {
		metrics.RecordDispatchSuppressed()
		d.logger.Debug(ctx, "duplicate celebration suppressed", logger.String("key", key))
		done := make(chan Result, 1)
		done <- Result{Command: cmd, Suppressed: true}
		return done, nil
	}

	done := make(chan Result, 1)
	if err := d.lanes.Submit(ctx, laneFor(cmd.ContestID), job{cmd: cmd, done: done}); err != nil {
		d.dedupe.Unrecord(ctx, key)
		return nil, enqueueError(err)
	}
	return done, nil
}

// Dispatch submits cmd and waits for its outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd celebration.Command) (Result, error) {
	done, err := d.Submit(ctx, cmd)
	if err != nil {
		return Result{Command: cmd}, err
	}
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return Result{Command: cmd}, ctx.Err()
	}
}

// Idle queues a return to the default state behind any pending commands for
// the contest.
func (d *Dispatcher) Idle(ctx context.Context, contestID string) (<-chan Result, error) {
	done := make(chan Result, 1)
	j := job{cmd: celebration.Command{ContestID: contestID}, idle: true, done: done}
	if err := d.lanes.Submit(ctx, laneFor(contestID), j); err != nil {
		return nil, enqueueError(err)
	}
	return done, nil
}

// Release drops a contest's lane once its queued work is done.
func (d *Dispatcher) Release(contestID string) {
	d.lanes.Release(laneFor(contestID))
}

// Close stops accepting work and waits for the lanes to drain.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.lanes.Shutdown(ctx)
}

// Usable counts sinks that would currently accept a call.
func (d *Dispatcher) Usable() int {
	n := 0
	for _, s := range d.sinks {
		if u, ok := s.(interface{ Usable() bool }); ok && !u.Usable() {
			continue
		}
		n++
	}
	return n
}

// Sinks lists the sink ids.
func (d *Dispatcher) Sinks() []string {
	ids := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		ids[i] = s.ID()
	}
	return ids
}

// Lanes reports how many lanes are live.
func (d *Dispatcher) Lanes() int {
	return d.lanes.Len()
}

func (d *Dispatcher) handle(ctx context.Context, j job) {
	var r Result
	if j.idle {
		r = Result{
			Command: j.cmd,
			Idle:    true,
			Outcomes: d.fanout(ctx,
				func(s sink.Sink) time.Duration { return d.idleTimeout + sink.IdleOverhead(s) },
				func(ctx context.Context, s sink.Sink) error { return s.ApplyIdle(ctx) }),
		}
	} else {
		cmd := j.cmd
		r = Result{
			Command: cmd,
			Outcomes: d.fanout(ctx,
				func(s sink.Sink) time.Duration { return d.applyTimeout(s, cmd) },
				func(ctx context.Context, s sink.Sink) error { return s.Apply(ctx, cmd) }),
		}
		metrics.RecordDispatch(string(cmd.Category))
		d.logger.Info(ctx, "celebration dispatched",
			logger.String("contest", cmd.ContestID),
			logger.String("category", string(cmd.Category)),
			logger.String("team", cmd.Team.Abbreviation),
			logger.Int("sinks", len(r.Outcomes)),
			logger.Int("failed", r.Failed()),
		)
	}

	j.done <- r
	for _, obs := range d.observers {
		obs(ctx, r)
	}
}

// applyTimeout is the step holds plus the grace plus whatever the sink says
// its round trips and pacing cost for cmd.
func (d *Dispatcher) applyTimeout(s sink.Sink, cmd celebration.Command) time.Duration {
	return cmd.Duration + d.grace + sink.ApplyOverhead(s, cmd)
}

// fanout calls every sink concurrently and returns outcomes in sink order.
func (d *Dispatcher) fanout(ctx context.Context, timeout func(sink.Sink) time.Duration, call func(context.Context, sink.Sink) error) []Outcome {
	outcomes := make([]Outcome, len(d.sinks))
	var g errgroup.Group
	for i, s := range d.sinks {
		g.Go(func() error {
			outcomes[i] = d.invoke(ctx, s, timeout(s), call)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// invoke runs one sink call. If the call outlives its timeout it is
// abandoned: the outcome is recorded as failed and whatever it returns later
// is dropped. The call's context carries sink.ErrAbandoned as its cause so
// the sink's breaker does not count the abandonment against the device.
func (d *Dispatcher) invoke(ctx context.Context, s sink.Sink, timeout time.Duration, call func(context.Context, sink.Sink) error) Outcome {
	callCtx, cancel := context.WithTimeoutCause(ctx, timeout, sink.ErrAbandoned)
	defer cancel()

	start := d.clock.Now()
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("%w: %v", ErrSinkPanic, r)
			}
		}()
		errCh <- call(callCtx, s)
	}()

	var err error
	result := "ok"
	select {
	case err = <-errCh:
		if err != nil {
			result = "error"
		}
	case <-callCtx.Done():
		err = fmt.Errorf("%w after %s", ErrSinkTimeout, timeout)
		result = "timeout"
	}
	latency := d.clock.Since(start)
	metrics.RecordSinkOutcome(s.ID(), result, float64(latency.Milliseconds()))

	o := Outcome{SinkID: s.ID(), OK: err == nil, Latency: latency, Err: err}
	if err != nil {
		o.Error = err.Error()
		metrics.RecordErrorByComponent("dispatch", result)
		d.logger.Warn(ctx, "sink call failed",
			logger.String("sink", s.ID()),
			logger.Duration("latency", latency),
			logger.Error(err))
	}
	return o
}

func laneFor(contestID string) string {
	if contestID == "" {
		return ManualLane
	}
	return contestID
}

func enqueueError(err error) error {
	switch {
	case errors.Is(err, queue.ErrFull):
		return fmt.Errorf("%w: %w", ErrBackpressure, err)
	case errors.Is(err, queue.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return err
	}
}
