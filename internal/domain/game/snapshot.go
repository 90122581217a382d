// Package game holds the immutable snapshot model read from a score feed.
package game

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a contest.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusPre        Status = "pre"
	StatusInProgress Status = "in-progress"
	StatusFinal      Status = "final"
)

// ParseStatus maps a status string onto Status; anything unrecognized is unknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPre:
		return StatusPre
	case StatusInProgress, "in", "in_progress", "live":
		return StatusInProgress
	case StatusFinal, "post":
		return StatusFinal
	default:
		return StatusUnknown
	}
}

// Leagues known to the feed adapters.
const (
	LeagueNFL     = "nfl"
	LeagueCollege = "college-football"
)

// TeamScore is one side of a contest.
type TeamScore struct {
	ID           string `json:"id" yaml:"id"`
	Abbreviation string `json:"abbreviation" yaml:"abbreviation"`
	DisplayName  string `json:"display_name" yaml:"display_name"`
	Score        int    `json:"score" yaml:"score"`
}

// Situation is the optional live play state.
type Situation struct {
	// Possession is the team id currently on offense.
	Possession    string `json:"possession,omitempty" yaml:"possession"`
	DownDistance  string `json:"down_distance,omitempty" yaml:"down_distance"`
	FieldPosition string `json:"field_position,omitempty" yaml:"field_position"`
	RedZone       bool   `json:"red_zone" yaml:"red_zone"`
	// RedZoneTeams lists every team the feed flagged as inside the red zone.
	// Some feeds report both sides; RedZoneTeam resolves the conflict.
	RedZoneTeams []string `json:"red_zone_teams,omitempty" yaml:"red_zone_teams"`
}

// Snapshot is a single point-in-time read of a contest. Treat as immutable.
type Snapshot struct {
	ContestID  string     `json:"contest_id" yaml:"contest_id"`
	League     string     `json:"league" yaml:"league"`
	Home       TeamScore  `json:"home" yaml:"home"`
	Away       TeamScore  `json:"away" yaml:"away"`
	Status     Status     `json:"status" yaml:"status"`
	Period     int        `json:"period" yaml:"period"`
	Clock      string     `json:"clock" yaml:"clock"`
	Situation  *Situation `json:"situation,omitempty" yaml:"situation"`
	CapturedAt time.Time  `json:"captured_at" yaml:"captured_at"`
}

// Teams returns home then away.
func (s Snapshot) Teams() [2]TeamScore {
	return [2]TeamScore{s.Home, s.Away}
}

// Team looks a side up by team id.
func (s Snapshot) Team(id string) (TeamScore, bool) {
	switch id {
	case s.Home.ID:
		return s.Home, true
	case s.Away.ID:
		return s.Away, true
	}
	return TeamScore{}, false
}

// Opponent returns the other side of id.
func (s Snapshot) Opponent(id string) (TeamScore, bool) {
	switch id {
	case s.Home.ID:
		return s.Away, true
	case s.Away.ID:
		return s.Home, true
	}
	return TeamScore{}, false
}

// Possession returns the possessing team id, or "" when unknown.
func (s Snapshot) Possession() string {
	if s.Situation == nil {
		return ""
	}
	return s.Situation.Possession
}

// RedZoneTeam resolves which team, if any, holds red-zone state.
// Only one team can be in the red zone; when several are flagged the team in
// possession wins and the rest are discarded as feed noise.
func (s Snapshot) RedZoneTeam() string {
	sit := s.Situation
	if sit == nil {
		return ""
	}
	flagged := sit.RedZoneTeams
	if len(flagged) == 0 {
		if sit.RedZone && sit.Possession != "" {
			return sit.Possession
		}
		return ""
	}
	if len(flagged) == 1 {
		return flagged[0]
	}
	for _, id := range flagged {
		if id == sit.Possession {
			return id
		}
	}
	return ""
}

// Leader returns the higher-scoring team; ok is false on a tie.
func (s Snapshot) Leader() (TeamScore, bool) {
	switch {
	case s.Home.Score > s.Away.Score:
		return s.Home, true
	case s.Away.Score > s.Home.Score:
		return s.Away, true
	}
	return TeamScore{}, false
}

// Margin is the absolute point differential.
func (s Snapshot) Margin() int {
	d := s.Home.Score - s.Away.Score
	if d < 0 {
		return -d
	}
	return d
}

// ClockRemaining parses "m:ss" or "ss.s" game clocks. ok is false when the
// clock is empty or unparseable.
func (s Snapshot) ClockRemaining() (time.Duration, bool) {
	c := strings.TrimSpace(s.Clock)
	if c == "" {
		return 0, false
	}
	if mm, ss, found := strings.Cut(c, ":"); found {
		m, err := strconv.Atoi(mm)
		if err != nil || m < 0 {
			return 0, false
		}
		sec, err := strconv.ParseFloat(ss, 64)
		if err != nil || sec < 0 {
			return 0, false
		}
		return time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), true
	}
	sec, err := strconv.ParseFloat(c, 64)
	if err != nil || sec < 0 {
		return 0, false
	}
	return time.Duration(sec * float64(time.Second)), true
}
