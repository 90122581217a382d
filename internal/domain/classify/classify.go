// Package classify maps semantic events onto celebration commands.
package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/domain/event"
	"github.com/okian/stadium/internal/domain/game"
	"github.com/okian/stadium/internal/domain/teams"
)

// Default classification constants.
const (
	defaultClutchWindow = 2 * time.Minute
	defaultCloseMargin  = 8 // one score
	clutchPeriod        = 4
	touchdownPoints     = 6
	manualContest       = "manual"
)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithClutchWindow sets how much clock, at most, counts as the final stretch.
func WithClutchWindow(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.clutchWindow = d
		}
	}
}

// WithCloseMargin sets the point differential that counts as a one-score game.
func WithCloseMargin(points int) Option {
	return func(c *Classifier) {
		if points > 0 {
			c.closeMargin = points
		}
	}
}

// Classifier is stateless apart from its configuration and is safe for
// concurrent use.
type Classifier struct {
	palettes     teams.Lookup
	clutchWindow time.Duration
	closeMargin  int
}

// New builds a Classifier that colors commands from palettes.
func New(palettes teams.Lookup, opts ...Option) *Classifier {
	if palettes == nil {
		palettes = teams.Default()
	}
	c := &Classifier{
		palettes:     palettes,
		clutchWindow: defaultClutchWindow,
		closeMargin:  defaultCloseMargin,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the command for e in the context of the snapshot that
// produced it. ok is false when the event warrants no celebration.
func (c *Classifier) Classify(e event.Event, ctx game.Snapshot) (celebration.Command, bool) {
	switch ev := e.(type) {
	case event.ScoreChanged:
		return c.build(ctx, scoreCategory(ev), ev.Team, ev.Key()), true

	case event.StatusChanged:
		if ev.To != game.StatusFinal || ev.Initial {
			return celebration.Command{}, false
		}
		winner, ok := ctx.Leader()
		if !ok {
			return celebration.Command{}, false
		}
		return c.build(ctx, celebration.Victory, winner, ev.Key()), true

	case event.RedZoneEntered:
		return c.build(ctx, celebration.RedZone, ev.Team, ev.Key()), true
	}
	// PossessionChanged and RedZoneExited carry no celebration of their own.
	return celebration.Command{}, false
}

func scoreCategory(ev event.ScoreChanged) celebration.Category {
	switch {
	case ev.Delta >= touchdownPoints:
		return celebration.Touchdown
	case ev.Delta == 3:
		return celebration.FieldGoal
	case ev.Delta == 1:
		return celebration.ExtraPoint
	case ev.Delta == 2:
		// Two points for a team that did not have the ball is a safety.
		if ev.PriorPossession != "" && ev.PriorPossession != ev.Team.ID {
			return celebration.Safety
		}
		return celebration.TwoPoint
	}
	return celebration.GenericScore
}

func baseIntensity(cat celebration.Category) celebration.Intensity {
	switch cat {
	case celebration.Touchdown, celebration.Victory:
		return celebration.High
	case celebration.FieldGoal, celebration.TwoPoint, celebration.Safety,
		celebration.Turnover, celebration.BigPlay, celebration.GenericScore:
		return celebration.Medium
	}
	return celebration.Low
}

func (c *Classifier) intensity(cat celebration.Category, ctx game.Snapshot) celebration.Intensity {
	i := baseIntensity(cat)
	if c.clutch(ctx) {
		i = i.Raise()
	}
	if ctx.Margin() <= c.closeMargin {
		i = i.Raise()
	}
	return i
}

// clutch reports the final stretch of the fourth period or any overtime.
func (c *Classifier) clutch(ctx game.Snapshot) bool {
	if ctx.Period < clutchPeriod {
		return false
	}
	left, ok := ctx.ClockRemaining()
	return ok && left <= c.clutchWindow
}

func (c *Classifier) build(ctx game.Snapshot, cat celebration.Category, team game.TeamScore, origin string) celebration.Command {
	palette := c.palettes.Palette(ctx.League, team.Abbreviation)
	steps := celebration.Pattern(cat, palette)
	return celebration.Command{
		ContestID: ctx.ContestID,
		League:    ctx.League,
		Category:  cat,
		Team:      team,
		Palette:   palette,
		Duration:  celebration.Total(steps),
		Intensity: c.intensity(cat, ctx),
		Steps:     steps,
		Ambient:   cat == celebration.RedZone,
		Origin:    origin,
	}
}

// ManualRequest is an out-of-band celebration asked for by an operator.
type ManualRequest struct {
	Category  string
	EventID   string
	ContestID string
	League    string
	TeamAbbr  string
	TeamName  string
	Intensity string
	Primary   *teams.Color
	Secondary *teams.Color
}

// Manual builds a command straight from a request, bypassing event context.
func (c *Classifier) Manual(req ManualRequest) (celebration.Command, error) {
	cat, ok := celebration.ParseCategory(req.Category)
	if !ok {
		return celebration.Command{}, fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}
	if strings.TrimSpace(req.EventID) == "" {
		return celebration.Command{}, ErrMissingEventID
	}

	palette := c.palettes.Palette(req.League, req.TeamAbbr)
	if req.Primary != nil {
		palette.Primary = *req.Primary
	}
	if req.Secondary != nil {
		palette.Secondary = *req.Secondary
	}

	intensity := baseIntensity(cat)
	if req.Intensity != "" {
		parsed, ok := celebration.ParseIntensity(req.Intensity)
		if !ok {
			return celebration.Command{}, fmt.Errorf("%w: %q", ErrUnknownIntensity, req.Intensity)
		}
		intensity = parsed
	}

	contest := req.ContestID
	if contest == "" {
		contest = manualContest
	}
	name := req.TeamName
	if name == "" {
		name = palette.Name
	}
	steps := celebration.Pattern(cat, palette)
	return celebration.Command{
		ContestID: contest,
		League:    req.League,
		Category:  cat,
		Team:      game.TeamScore{Abbreviation: strings.ToUpper(req.TeamAbbr), DisplayName: name},
		Palette:   palette,
		Duration:  celebration.Total(steps),
		Intensity: intensity,
		Steps:     steps,
		Ambient:   cat == celebration.RedZone,
		Origin:    "manual|" + req.EventID,
		Manual:    true,
	}, nil
}
