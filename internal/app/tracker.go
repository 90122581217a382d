package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/adapters/ws/hub"
	"github.com/okian/stadium/internal/domain/differ"
	"github.com/okian/stadium/internal/domain/event"
	"github.com/okian/stadium/internal/domain/game"
	"github.com/okian/stadium/internal/reconnect"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Reasons a contest stops being tracked.
const (
	reasonFinal     = "final"
	reasonUntracked = "untracked"
)

type pollResult int

const (
	pollOK pollResult = iota
	pollFailed
	pollRejected
	pollFinal
	pollCanceled
)

// ContestStatus describes one tracked contest.
type ContestStatus struct {
	feed.Ref
	Polls     int            `json:"polls"`
	Failures  int            `json:"consecutive_failures"`
	LastError string         `json:"last_error,omitempty"`
	LastPoll  time.Time      `json:"last_poll"`
	Status    game.Status    `json:"status"`
	Home      game.TeamScore `json:"home"`
	Away      game.TeamScore `json:"away"`
	Period    int            `json:"period"`
	Clock     string         `json:"clock,omitempty"`
}

// Tracking is the payload of tracking messages.
type Tracking struct {
	Action  string   `json:"action"`
	Contest feed.Ref `json:"contest"`
	Reason  string   `json:"reason,omitempty"`
}

type tracker struct {
	ref    feed.Ref
	allow  map[string]struct{}
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	polls    int
	failures int
	lastErr  string
	lastPoll time.Time
	snapshot *game.Snapshot
}

func newTracker(ref feed.Ref, cancel context.CancelFunc) *tracker {
	t := &tracker{ref: ref, cancel: cancel, done: make(chan struct{})}
	if len(ref.Teams) > 0 {
		t.allow = make(map[string]struct{}, len(ref.Teams))
		for _, abbr := range ref.Teams {
			t.allow[strings.ToUpper(strings.TrimSpace(abbr))] = struct{}{}
		}
	}
	return t
}

func (t *tracker) record(at time.Time, snap *game.Snapshot, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls++
	t.lastPoll = at
	if err != nil {
		t.failures++
		t.lastErr = err.Error()
		return
	}
	t.failures = 0
	t.lastErr = ""
	if snap != nil {
		t.snapshot = snap
	}
}

func (t *tracker) status() ContestStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := ContestStatus{
		Ref:       t.ref,
		Polls:     t.polls,
		Failures:  t.failures,
		LastError: t.lastErr,
		LastPoll:  t.lastPoll,
		Status:    game.StatusUnknown,
	}
	if t.snapshot != nil {
		cs.Status = t.snapshot.Status
		cs.Home = t.snapshot.Home
		cs.Away = t.snapshot.Away
		cs.Period = t.snapshot.Period
		cs.Clock = t.snapshot.Clock
	}
	return cs
}

// Track starts polling a contest on its own goroutine.
func (s *Service) Track(ctx context.Context, ref feed.Ref) error {
	ref.ContestID = strings.TrimSpace(ref.ContestID)
	ref.League = strings.ToLower(strings.TrimSpace(ref.League))
	if ref.League == "" {
		ref.League = game.LeagueNFL
	}
	if ref.ContestID == "" {
		return fmt.Errorf("%w: contest id is required", ErrInvalidContest)
	}
	if ref.League != game.LeagueNFL && ref.League != game.LeagueCollege {
		return fmt.Errorf("%w: unknown league %q", ErrInvalidContest, ref.League)
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if _, ok := s.trackers[ref.ContestID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, ref.ContestID)
	}
	loopCtx, cancel := context.WithCancel(s.ctx)
	t := newTracker(ref, cancel)
	s.trackers[ref.ContestID] = t
	n := len(s.trackers)
	s.mu.Unlock()

	s.health.track(ref.ContestID)
	metrics.UpdateTrackedContests(n)
	s.hub.Broadcast(ctx, hub.TypeTracking, Tracking{Action: "added", Contest: ref})
	s.logger.Info(ctx, "tracking contest",
		logger.String("contest", ref.ContestID),
		logger.String("league", ref.League),
		logger.Any("teams", ref.Teams))

	go s.poll(loopCtx, t)
	return nil
}

// Untrack stops polling a contest and waits for its loop to exit.
func (s *Service) Untrack(ctx context.Context, contestID string) error {
	s.mu.RLock()
	t, ok := s.trackers[contestID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, contestID)
	}

	s.release(ctx, t, reasonUntracked)
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Contests lists tracked contests ordered by id.
func (s *Service) Contests() []ContestStatus {
	s.mu.RLock()
	out := make([]ContestStatus, 0, len(s.trackers))
	for _, t := range s.trackers {
		out = append(out, t.status())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ContestID < out[j].ContestID })
	return out
}

// release forgets a contest exactly once. It never waits for the poll loop,
// so the loop itself may call it.
func (s *Service) release(ctx context.Context, t *tracker, reason string) {
	t.once.Do(func() {
		id := t.ref.ContestID
		s.mu.Lock()
		if cur, ok := s.trackers[id]; ok && cur == t {
			delete(s.trackers, id)
		}
		n := len(s.trackers)
		s.mu.Unlock()

		t.cancel()
		s.differ.Forget(id)
		if reason == reasonUntracked {
			if _, err := s.dispatcher.Idle(ctx, id); err != nil {
				s.logger.Debug(ctx, "idle on untrack skipped", logger.String("contest", id), logger.Error(err))
			}
		}
		s.dispatcher.Release(id)
		s.health.untrack(ctx, id)

		metrics.UpdateTrackedContests(n)
		s.hub.Broadcast(ctx, hub.TypeTracking, Tracking{Action: "removed", Contest: t.ref, Reason: reason})
		s.logger.Info(ctx, "contest untracked", logger.String("contest", id), logger.String("reason", reason))
	})
}

func (s *Service) poll(ctx context.Context, t *tracker) {
	defer close(t.done)

	backoff := reconnect.New(s.opts.backoff...)
	var delay time.Duration
	for {
		if delay > 0 {
			timer := s.clock.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
			}
		}
		if ctx.Err() != nil {
			return
		}

		switch s.cycle(ctx, t) {
		case pollCanceled:
			return
		case pollFinal:
			if s.opts.untrackOnFinal {
				s.release(context.WithoutCancel(ctx), t, reasonFinal)
				return
			}
			backoff.Reset()
			delay = s.opts.pollInterval
		case pollFailed:
			extra, ok := backoff.Next()
			if !ok {
				backoff.Reset()
				extra, _ = backoff.Next()
			}
			delay = s.opts.pollInterval + extra
		case pollRejected:
			delay = s.opts.pollInterval
		default:
			backoff.Reset()
			delay = s.opts.pollInterval
		}
	}
}

// cycle runs one fetch through the differencer and publishes its events.
func (s *Service) cycle(ctx context.Context, t *tracker) pollResult {
	ref := t.ref
	start := s.clock.Now()
	snap, err := s.source.Fetch(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return pollCanceled
		}
		metrics.RecordFeedPoll(ref.League, "error")
		t.record(start, nil, err)
		s.health.fetchFailed(ctx, ref.ContestID)
		s.logger.Warn(ctx, "snapshot fetch failed",
			logger.String("contest", ref.ContestID),
			logger.Error(err))
		return pollFailed
	}
	metrics.RecordFeedPoll(ref.League, "ok")
	s.health.fetchSucceeded(ctx, ref.ContestID)

	events, err := s.differ.Observe(snap)
	if err != nil {
		reason := "invalid"
		switch {
		case errors.Is(err, differ.ErrScoreRegression):
			reason = "regression"
		case errors.Is(err, differ.ErrContestMismatch):
			reason = "mismatch"
		}
		metrics.RecordSnapshotRejected(reason)
		t.record(start, nil, nil)
		s.logger.Warn(ctx, "snapshot rejected",
			logger.String("contest", ref.ContestID),
			logger.String("reason", reason),
			logger.Error(err))
		return pollRejected
	}
	t.record(start, &snap, nil)

	if len(events) == 0 {
		return pollOK
	}
	final := false
	for _, e := range events {
		metrics.RecordEventDetected(e.Kind().String())
		if sc, ok := e.(event.StatusChanged); ok && sc.To == game.StatusFinal {
			final = true
		}
	}
	s.bus.Publish(withCycle(ctx, newCycle(t, snap)), events...)

	if final {
		return pollFinal
	}
	return pollOK
}
