// Package espn reads contest snapshots from the public ESPN scoreboard.
package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/domain/game"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Defaults.
const (
	DefaultBaseURL   = "https://site.api.espn.com"
	scoreboardPath   = "/apis/site/v2/sports/football/%s/scoreboard"
	defaultTimeout   = 10 * time.Second
	maxScoreboardLen = 8 << 20
)

type scoreboard struct {
	Events []eventDoc `json:"events"`
}

type eventDoc struct {
	ID           string           `json:"id"`
	Status       statusDoc        `json:"status"`
	Competitions []competitionDoc `json:"competitions"`
}

type statusDoc struct {
	Period       int    `json:"period"`
	DisplayClock string `json:"displayClock"`
	Type         struct {
		State string `json:"state"`
		Name  string `json:"name"`
	} `json:"type"`
}

type competitionDoc struct {
	Competitors []competitorDoc `json:"competitors"`
	Situation   *situationDoc   `json:"situation"`
}

type competitorDoc struct {
	HomeAway string `json:"homeAway"`
	Score    string `json:"score"`
	Team     struct {
		ID           string `json:"id"`
		Abbreviation string `json:"abbreviation"`
		DisplayName  string `json:"displayName"`
		Name         string `json:"name"`
	} `json:"team"`
}

type situationDoc struct {
	Possession            string `json:"possession"`
	IsRedZone             bool   `json:"isRedZone"`
	ShortDownDistanceText string `json:"shortDownDistanceText"`
	PossessionText        string `json:"possessionText"`
}

// Source polls scoreboards. Concurrent fetches of one league's scoreboard
// share a single request.
type Source struct {
	baseURL string
	client  *http.Client
	group   singleflight.Group
	clock   clockwork.Clock
	logger  logger.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithBaseURL points the source at another host, for tests.
func WithBaseURL(u string) Option {
	return func(s *Source) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.client = c
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Source) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scoreboard source.
func New(opts ...Option) *Source {
	s := &Source{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("espn")
	}
	return s
}

// Fetch implements feed.Source.
func (s *Source) Fetch(ctx context.Context, ref feed.Ref) (game.Snapshot, error) {
	league := ref.League
	if league == "" {
		league = game.LeagueNFL
	}

	// The shared fetch outlives any one caller so that cancelling one tracker
	// does not fail the others waiting on the same league.
	ch := s.group.DoChan(league, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout())
		defer cancel()
		return s.fetchScoreboard(fetchCtx, league)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return game.Snapshot{}, ctx.Err()
	}
	if res.Err != nil {
		return game.Snapshot{}, res.Err
	}
	if res.Shared {
		s.logger.Debug(ctx, "scoreboard fetch shared", logger.String("league", league))
	}

	board := res.Val.(*scoreboard)
	for i := range board.Events {
		if board.Events[i].ID == ref.ContestID {
			return s.parse(&board.Events[i], league)
		}
	}
	return game.Snapshot{}, fmt.Errorf("%w: %s/%s", feed.ErrContestNotFound, league, ref.ContestID)
}

func (s *Source) fetchTimeout() time.Duration {
	if s.client.Timeout > 0 {
		return s.client.Timeout
	}
	return defaultTimeout
}

func (s *Source) fetchScoreboard(ctx context.Context, league string) (*scoreboard, error) {
	start := s.clock.Now()
	defer func() {
		metrics.RecordFeedFetchLatency(league, float64(s.clock.Since(start).Milliseconds()))
	}()

	url := s.baseURL + fmt.Sprintf(scoreboardPath, league)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", feed.ErrFetch, resp.StatusCode)
	}

	var board scoreboard
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxScoreboardLen)).Decode(&board); err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrMalformed, err)
	}
	return &board, nil
}

func (s *Source) parse(ev *eventDoc, league string) (game.Snapshot, error) {
	if len(ev.Competitions) == 0 {
		return game.Snapshot{}, fmt.Errorf("%w: event %s has no competition", feed.ErrMalformed, ev.ID)
	}
	comp := ev.Competitions[0]

	snap := game.Snapshot{
		ContestID:  ev.ID,
		League:     league,
		Status:     game.ParseStatus(ev.Status.Type.State),
		Period:     ev.Status.Period,
		Clock:      ev.Status.DisplayClock,
		CapturedAt: s.clock.Now().UTC(),
	}

	var haveHome, haveAway bool
	for _, c := range comp.Competitors {
		team, err := parseCompetitor(c)
		if err != nil {
			return game.Snapshot{}, fmt.Errorf("%w: event %s: %w", feed.ErrMalformed, ev.ID, err)
		}
		switch c.HomeAway {
		case "home":
			snap.Home, haveHome = team, true
		case "away":
			snap.Away, haveAway = team, true
		}
	}
	if !haveHome || !haveAway {
		return game.Snapshot{}, fmt.Errorf("%w: event %s is missing a side", feed.ErrMalformed, ev.ID)
	}

	// ESPN drops the situation block between plays; a missing one carries
	// no information.
	if sit := comp.Situation; sit != nil && snap.Status == game.StatusInProgress {
		snap.Situation = &game.Situation{
			Possession:    sit.Possession,
			DownDistance:  sit.ShortDownDistanceText,
			FieldPosition: sit.PossessionText,
			RedZone:       sit.IsRedZone,
		}
		if sit.IsRedZone && sit.Possession != "" {
			snap.Situation.RedZoneTeams = []string{sit.Possession}
		}
	}
	return snap, nil
}

func parseCompetitor(c competitorDoc) (game.TeamScore, error) {
	score := 0
	if c.Score != "" {
		n, err := strconv.Atoi(strings.TrimSpace(c.Score))
		if err != nil {
			return game.TeamScore{}, fmt.Errorf("score %q: %w", c.Score, err)
		}
		score = n
	}
	name := c.Team.DisplayName
	if name == "" {
		name = c.Team.Name
	}
	return game.TeamScore{
		ID:           c.Team.ID,
		Abbreviation: c.Team.Abbreviation,
		DisplayName:  name,
		Score:        score,
	}, nil
}
