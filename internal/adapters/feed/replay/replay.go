// Package replay serves scripted snapshots for demos, fire drills and tests.
//
// A script lists contests and the frames each one goes through. Every fetch
// returns the next frame; the last frame repeats forever. YAML and JSON
// scripts are both accepted.
package replay

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/domain/game"
)

// Team is a side of a scripted contest.
type Team struct {
	ID           string `yaml:"id"`
	Abbreviation string `yaml:"abbreviation"`
	DisplayName  string `yaml:"display_name"`
}

// Frame is one scripted poll result.
type Frame struct {
	Home          int    `yaml:"home"`
	Away          int    `yaml:"away"`
	Status        string `yaml:"status"`
	Period        int    `yaml:"period"`
	Clock         string `yaml:"clock"`
	Possession    string `yaml:"possession"`
	RedZone       bool   `yaml:"red_zone"`
	DownDistance  string `yaml:"down_distance"`
	FieldPosition string `yaml:"field_position"`
	// NoSituation drops the situation block, as live feeds do between plays.
	NoSituation bool `yaml:"no_situation"`
	// Fail makes this poll a fetch error.
	Fail bool `yaml:"fail"`
}

// Contest is one scripted contest.
type Contest struct {
	League    string   `yaml:"league"`
	ContestID string   `yaml:"contest_id"`
	Teams     []string `yaml:"teams"`
	Home      Team     `yaml:"home"`
	Away      Team     `yaml:"away"`
	Frames    []Frame  `yaml:"frames"`
}

// Script is the document format.
type Script struct {
	Contests []Contest `yaml:"contests"`
}

type cursor struct {
	contest Contest
	next    int
}

// Source replays a Script.
type Source struct {
	mu      sync.Mutex
	order   []string
	cursors map[string]*cursor
	clock   clockwork.Clock
}

// Option configures a Source.
type Option func(*Source)

func WithClock(c clockwork.Clock) Option {
	return func(s *Source) {
		if c != nil {
			s.clock = c
		}
	}
}

// Load reads a script file.
func Load(path string, opts ...Option) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	return Parse(data, opts...)
}

// Parse builds a source from script bytes.
func Parse(data []byte, opts ...Option) (*Source, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	return New(script, opts...)
}

// New builds a source from a decoded script.
func New(script Script, opts ...Option) (*Source, error) {
	s := &Source{cursors: make(map[string]*cursor), clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	for _, c := range script.Contests {
		if c.ContestID == "" {
			return nil, fmt.Errorf("%w: contest without id", ErrInvalidScript)
		}
		if len(c.Frames) == 0 {
			return nil, fmt.Errorf("%w: contest %s has no frames", ErrInvalidScript, c.ContestID)
		}
		if _, dup := s.cursors[c.ContestID]; dup {
			return nil, fmt.Errorf("%w: duplicate contest %s", ErrInvalidScript, c.ContestID)
		}
		if c.League == "" {
			c.League = game.LeagueNFL
		}
		s.cursors[c.ContestID] = &cursor{contest: c}
		s.order = append(s.order, c.ContestID)
	}
	return s, nil
}

// Contests lists the scripted contests in file order.
func (s *Source) Contests() []feed.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]feed.Ref, 0, len(s.order))
	for _, id := range s.order {
		c := s.cursors[id].contest
		refs = append(refs, feed.Ref{League: c.League, ContestID: c.ContestID, Teams: c.Teams})
	}
	return refs
}

// Rewind restarts a contest from its first frame.
func (s *Source) Rewind(contestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cursors[contestID]; ok {
		c.next = 0
	}
}

// Fetch implements feed.Source.
func (s *Source) Fetch(ctx context.Context, ref feed.Ref) (game.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: %w", feed.ErrFetch, err)
	}

	s.mu.Lock()
	cur, ok := s.cursors[ref.ContestID]
	if !ok {
		s.mu.Unlock()
		return game.Snapshot{}, fmt.Errorf("%w: %s", feed.ErrContestNotFound, ref.ContestID)
	}
	frame := cur.contest.Frames[cur.next]
	if cur.next < len(cur.contest.Frames)-1 {
		cur.next++
	}
	c := cur.contest
	s.mu.Unlock()

	if frame.Fail {
		return game.Snapshot{}, fmt.Errorf("%w: scripted failure", feed.ErrFetch)
	}
	return s.snapshot(c, frame), nil
}

func (s *Source) snapshot(c Contest, f Frame) game.Snapshot {
	snap := game.Snapshot{
		ContestID:  c.ContestID,
		League:     c.League,
		Home:       game.TeamScore{ID: c.Home.ID, Abbreviation: c.Home.Abbreviation, DisplayName: c.Home.DisplayName, Score: f.Home},
		Away:       game.TeamScore{ID: c.Away.ID, Abbreviation: c.Away.Abbreviation, DisplayName: c.Away.DisplayName, Score: f.Away},
		Status:     game.ParseStatus(f.Status),
		Period:     f.Period,
		Clock:      f.Clock,
		CapturedAt: s.clock.Now().UTC(),
	}
	if !f.NoSituation && snap.Status == game.StatusInProgress {
		snap.Situation = &game.Situation{
			Possession:    f.Possession,
			DownDistance:  f.DownDistance,
			FieldPosition: f.FieldPosition,
			RedZone:       f.RedZone,
		}
	}
	return snap
}
