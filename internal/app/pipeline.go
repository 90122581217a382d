package service

import (
	"context"

	"github.com/okian/stadium/internal/adapters/ws/hub"
	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/domain/event"
	"github.com/okian/stadium/internal/domain/game"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// GameEvent is the payload of game_event messages.
type GameEvent struct {
	Kind      event.Kind           `json:"kind"`
	ContestID string               `json:"contest_id"`
	Event     event.Event          `json:"event"`
	Command   *celebration.Command `json:"command,omitempty"`
	Status    game.Status          `json:"status"`
	Home      game.TeamScore       `json:"home"`
	Away      game.TeamScore       `json:"away"`
	Period    int                  `json:"period"`
	Clock     string               `json:"clock,omitempty"`
}

// cycle is the publish context of one poll: the snapshot the events were
// diffed from and the commands classified so far.
type cycle struct {
	snap     game.Snapshot
	allow    map[string]struct{}
	commands map[string]celebration.Command
}

func newCycle(t *tracker, snap game.Snapshot) *cycle {
	return &cycle{snap: snap, allow: t.allow, commands: make(map[string]celebration.Command)}
}

func (c *cycle) celebrates(abbr string) bool {
	if len(c.allow) == 0 {
		return true
	}
	_, ok := c.allow[abbr]
	return ok
}

type cycleKey struct{}

func withCycle(ctx context.Context, c *cycle) context.Context {
	return context.WithValue(ctx, cycleKey{}, c)
}

func cycleFrom(ctx context.Context) (*cycle, bool) {
	c, ok := ctx.Value(cycleKey{}).(*cycle)
	return c, ok
}

// subscribe registers the pipeline stages. Order matters: classification
// runs before the broadcast so the command rides along with the event.
func (s *Service) subscribe() {
	s.bus.SubscribeAll(s.celebrate)
	event.On(s.bus, s.clearRedZone)
	s.bus.SubscribeAll(s.broadcastEvent)
	if s.recorder != nil {
		s.bus.SubscribeAll(s.recordEvent)
	}
}

func (s *Service) celebrate(ctx context.Context, e event.Event) {
	c, ok := cycleFrom(ctx)
	if !ok {
		return
	}
	cmd, ok := s.classifier.Classify(e, c.snap)
	if !ok {
		return
	}
	metrics.RecordCelebrationClassified(string(cmd.Category), cmd.Intensity.String())
	if !c.celebrates(cmd.Team.Abbreviation) {
		s.logger.Debug(ctx, "celebration filtered",
			logger.String("contest", cmd.ContestID),
			logger.String("team", cmd.Team.Abbreviation),
			logger.String("category", string(cmd.Category)))
		return
	}
	c.commands[e.Key()] = cmd

	if _, err := s.dispatcher.Submit(context.WithoutCancel(ctx), cmd); err != nil {
		metrics.RecordErrorByComponent("dispatch", "submit")
		s.logger.Warn(ctx, "celebration not queued",
			logger.String("contest", cmd.ContestID),
			logger.String("category", string(cmd.Category)),
			logger.Error(err))
	}
}

func (s *Service) clearRedZone(ctx context.Context, e event.RedZoneExited) {
	if _, err := s.dispatcher.Idle(context.WithoutCancel(ctx), e.ContestID); err != nil {
		s.logger.Warn(ctx, "red zone idle not queued", logger.String("contest", e.ContestID), logger.Error(err))
	}
}

func (s *Service) broadcastEvent(ctx context.Context, e event.Event) {
	msg := GameEvent{Kind: e.Kind(), ContestID: e.Contest(), Event: e}
	if c, ok := cycleFrom(ctx); ok {
		msg.Status = c.snap.Status
		msg.Home = c.snap.Home
		msg.Away = c.snap.Away
		msg.Period = c.snap.Period
		msg.Clock = c.snap.Clock
		if cmd, ok := c.commands[e.Key()]; ok {
			msg.Command = &cmd
		}
	}
	s.hub.Broadcast(ctx, hub.TypeGameEvent, msg)
}

func (s *Service) recordEvent(ctx context.Context, e event.Event) {
	if err := s.recorder.RecordEvent(ctx, e); err != nil {
		s.logger.Debug(ctx, "event not recorded", logger.String("kind", e.Kind().String()), logger.Error(err))
	}
}

// observeDispatch publishes every completed dispatch.
func (s *Service) observeDispatch(ctx context.Context, r dispatch.Result) {
	s.hub.Broadcast(ctx, hub.TypeDispatch, r)
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordDispatch(ctx, r); err != nil {
		s.logger.Debug(ctx, "dispatch not recorded", logger.String("contest", r.Command.ContestID), logger.Error(err))
	}
}

func (s *Service) publishStatus(ctx context.Context, st Status) {
	s.hub.Broadcast(ctx, hub.TypeStatus, st)
}
