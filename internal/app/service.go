// Package service wires the celebration pipeline: snapshot polling, the
// differencer, the classifier, the dispatcher and the broadcast hub.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/adapters/ws/hub"
	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/classify"
	"github.com/okian/stadium/internal/domain/differ"
	"github.com/okian/stadium/internal/domain/event"
	"github.com/okian/stadium/internal/domain/teams"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Service owns every pipeline component. Build it with New and run it with
// Start; the HTTP layer talks to it through its exported methods.
type Service struct {
	mu sync.RWMutex

	source     feed.Source
	bus        *event.Bus
	differ     *differ.Differencer
	classifier *classify.Classifier
	dispatcher *dispatch.Dispatcher
	hub        *hub.Hub
	recorder   Recorder
	health     *monitor

	opts options

	trackers map[string]*tracker
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	loops    sync.WaitGroup

	clock  clockwork.Clock
	logger logger.Logger
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	o := options{
		pollInterval:     defaultPollInterval,
		failureThreshold: defaultFailureThreshold,
		healthInterval:   defaultHealthInterval,
		untrackOnFinal:   true,
		clock:            clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("service")
	}
	if o.palettes == nil {
		o.palettes = teams.Default()
	}

	s := &Service{
		source:     o.source,
		bus:        event.NewBus(),
		differ:     differ.New(),
		classifier: classify.New(o.palettes, o.classifyOpts...),
		recorder:   o.recorder,
		opts:       o,
		trackers:   make(map[string]*tracker),
		clock:      o.clock,
		logger:     o.logger,
	}

	hubOpts := append([]hub.Option{hub.WithLogger(o.logger.Named("hub"))}, o.hubOpts...)
	s.hub = hub.New(hubOpts...)

	dispatchOpts := append([]dispatch.Option{
		dispatch.WithLogger(o.logger.Named("dispatch")),
		dispatch.WithObserver(s.observeDispatch),
	}, o.dispatchOpts...)
	s.dispatcher = dispatch.New(o.sinks, dispatchOpts...)

	s.health = newMonitor(o.failureThreshold, s.dispatcher.Usable, s.publishStatus, o.clock, o.logger.Named("health"))
	s.subscribe()
	return s
}

// Start runs the hub and the health loop. Contests can be tracked once it
// returns.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.source == nil {
		return ErrNoSource
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.hub.Start(s.ctx)

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.healthLoop(s.ctx)
	}()

	s.started = true
	s.health.evaluate(s.ctx)
	s.logger.Info(ctx, "stadium service started",
		logger.Int("sinks", len(s.dispatcher.Sinks())),
		logger.Duration("pollInterval", s.opts.pollInterval),
		logger.Bool("history", s.recorder != nil),
	)
	return nil
}

// Stop untracks every contest, drains the dispatcher and closes the hub.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	trackers := make([]*tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		trackers = append(trackers, t)
	}
	s.trackers = make(map[string]*tracker)
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping stadium service...")

	for _, t := range trackers {
		t.cancel()
	}
	for _, t := range trackers {
		select {
		case <-t.done:
		case <-ctx.Done():
		}
	}
	metrics.UpdateTrackedContests(0)

	var errs []error
	if err := s.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
	}
	cancel()
	s.loops.Wait()
	if err := s.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close hub: %w", err))
	}

	s.logger.Info(ctx, "stadium service stopped")
	return errors.Join(errs...)
}

// Hub exposes the broadcast hub for the websocket route.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}

// Status reports whether the service is healthy or degraded.
func (s *Service) Status() Status {
	return s.health.status()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	tracked := len(s.trackers)
	s.mu.RUnlock()

	st := s.health.status()
	stats := map[string]interface{}{
		"started":          started,
		"trackedContests":  tracked,
		"sinks":            s.dispatcher.Sinks(),
		"usableSinks":      s.dispatcher.Usable(),
		"dispatchLanes":    s.dispatcher.Lanes(),
		"subscribers":      s.hub.Count(),
		"messagesSent":     s.hub.Seq(),
		"state":            st.State,
		"pollInterval":     s.opts.pollInterval.String(),
		"failureThreshold": s.opts.failureThreshold,
		"history":          s.recorder != nil,
	}
	if p, ok := s.recorder.(interface{ Pending() int }); ok {
		stats["historyPending"] = p.Pending()
	}
	metrics.UpdateTrackedContests(tracked)
	return stats
}

func (s *Service) healthLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.opts.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.health.evaluate(ctx)
		}
	}
}
