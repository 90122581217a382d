package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Signal names one cause of degraded operation.
type Signal string

const (
	SignalFeedUnreachable Signal = "feed_unreachable"
	SignalNoSinks         Signal = "no_sinks"
)

// Overall states.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
)

// Reason is one raised signal.
type Reason struct {
	Signal Signal    `json:"signal"`
	Detail string    `json:"detail"`
	Since  time.Time `json:"since"`
}

// Status is the operator-facing health summary.
type Status struct {
	State     string    `json:"state"`
	Reasons   []Reason  `json:"reasons"`
	CheckedAt time.Time `json:"checked_at"`
}

// Degraded reports whether any signal is raised.
func (s Status) Degraded() bool {
	return s.State == StateDegraded
}

// monitor turns fetch failures and sink availability into degraded signals.
// The feed is only unreachable when every tracked contest has failed at
// least threshold times in a row.
type monitor struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
	raised    map[Signal]Reason
	checkedAt time.Time

	usable  func() int
	publish func(context.Context, Status)
	clock   clockwork.Clock
	logger  logger.Logger
}

func newMonitor(threshold int, usable func() int, publish func(context.Context, Status), clock clockwork.Clock, log logger.Logger) *monitor {
	return &monitor{
		threshold: threshold,
		failures:  make(map[string]int),
		raised:    make(map[Signal]Reason),
		usable:    usable,
		publish:   publish,
		clock:     clock,
		logger:    log,
	}
}

func (m *monitor) track(id string) {
	m.mu.Lock()
	m.failures[id] = 0
	m.mu.Unlock()
}

func (m *monitor) untrack(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.failures, id)
	m.mu.Unlock()
	m.evaluate(ctx)
}

func (m *monitor) fetchFailed(ctx context.Context, id string) {
	m.mu.Lock()
	if _, ok := m.failures[id]; ok {
		m.failures[id]++
	}
	m.mu.Unlock()
	m.evaluate(ctx)
}

func (m *monitor) fetchSucceeded(ctx context.Context, id string) {
	m.mu.Lock()
	n, ok := m.failures[id]
	if ok {
		m.failures[id] = 0
	}
	m.mu.Unlock()
	if n > 0 {
		m.evaluate(ctx)
	}
}

// evaluate recomputes every signal and publishes when one flips.
func (m *monitor) evaluate(ctx context.Context) {
	m.mu.Lock()
	now := m.clock.Now().UTC()
	want := make(map[Signal]string, 2)

	if n := m.usable(); n == 0 {
		want[SignalNoSinks] = "no usable sinks"
	}
	if len(m.failures) > 0 {
		failing := 0
		for _, n := range m.failures {
			if n >= m.threshold {
				failing++
			}
		}
		if failing == len(m.failures) {
			want[SignalFeedUnreachable] = fmt.Sprintf("%d of %d contests failing", failing, len(m.failures))
		}
	}

	changed := false
	for _, sig := range []Signal{SignalFeedUnreachable, SignalNoSinks} {
		detail, up := want[sig]
		cur, was := m.raised[sig]
		switch {
		case up && !was:
			m.raised[sig] = Reason{Signal: sig, Detail: detail, Since: now}
			changed = true
			metrics.UpdateDegraded(string(sig), true)
			m.logger.Warn(ctx, "degraded signal raised", logger.String("signal", string(sig)), logger.String("detail", detail))
		case !up && was:
			delete(m.raised, sig)
			changed = true
			metrics.UpdateDegraded(string(sig), false)
			m.logger.Info(ctx, "degraded signal cleared", logger.String("signal", string(sig)))
		case up && cur.Detail != detail:
			cur.Detail = detail
			m.raised[sig] = cur
		}
	}
	m.checkedAt = now
	st := m.statusLocked()
	m.mu.Unlock()

	if changed && m.publish != nil {
		m.publish(ctx, st)
	}
}

func (m *monitor) status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *monitor) statusLocked() Status {
	st := Status{State: StateHealthy, Reasons: []Reason{}, CheckedAt: m.checkedAt}
	for _, r := range m.raised {
		st.Reasons = append(st.Reasons, r)
	}
	if len(st.Reasons) > 0 {
		st.State = StateDegraded
		sort.Slice(st.Reasons, func(i, j int) bool { return st.Reasons[i].Signal < st.Reasons[j].Signal })
	}
	return st
}
