// Package event defines the closed set of semantic game events emitted by the
// snapshot differencer, and a typed bus to fan them out.
package event

import (
	"strconv"
	"strings"

	"github.com/okian/stadium/internal/domain/game"
)

// Kind enumerates event variants.
type Kind uint8

const (
	KindScoreChanged Kind = iota + 1
	KindRedZoneEntered
	KindRedZoneExited
	KindPossessionChanged
	KindStatusChanged
)

// Kinds lists every variant in emission order.
func Kinds() []Kind {
	return []Kind{KindScoreChanged, KindRedZoneEntered, KindRedZoneExited, KindPossessionChanged, KindStatusChanged}
}

func (k Kind) String() string {
	switch k {
	case KindScoreChanged:
		return "score_changed"
	case KindRedZoneEntered:
		return "red_zone_entered"
	case KindRedZoneExited:
		return "red_zone_exited"
	case KindPossessionChanged:
		return "possession_changed"
	case KindStatusChanged:
		return "status_changed"
	default:
		return "kind_" + strconv.Itoa(int(k))
	}
}

// Valid reports whether k is one of the declared variants.
func (k Kind) Valid() bool {
	return k >= KindScoreChanged && k <= KindStatusChanged
}

// MarshalText renders the kind name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	// Contest returns the contest id the event belongs to.
	Contest() string
	// Key is a deterministic identity of the originating change. Re-reading
	// the same snapshot transition yields the same key.
	Key() string

	sealed()
}

func key(parts ...string) string {
	return strings.Join(parts, "|")
}

// Mark locates an event on the game clock.
type Mark struct {
	Period int    `json:"period"`
	Clock  string `json:"clock"`
}

func (m Mark) String() string {
	return strconv.Itoa(m.Period) + "@" + m.Clock
}

// ScoreChanged reports a team's score increase.
type ScoreChanged struct {
	ContestID string         `json:"contest_id"`
	Team      game.TeamScore `json:"team"`
	Delta     int            `json:"delta"`
	NewScore  int            `json:"new_score"`
	// PriorPossession is the team id on offense in the previous snapshot, if known.
	PriorPossession string `json:"prior_possession,omitempty"`
	Mark            Mark   `json:"mark"`
}

func (ScoreChanged) Kind() Kind        { return KindScoreChanged }
func (e ScoreChanged) Contest() string { return e.ContestID }
func (e ScoreChanged) Key() string {
	return key(e.ContestID, KindScoreChanged.String(), e.Team.ID, strconv.Itoa(e.NewScore))
}
func (ScoreChanged) sealed() {}

// RedZoneEntered reports a team moving into the red zone.
type RedZoneEntered struct {
	ContestID string         `json:"contest_id"`
	Team      game.TeamScore `json:"team"`
	Mark      Mark           `json:"mark"`
}

func (RedZoneEntered) Kind() Kind        { return KindRedZoneEntered }
func (e RedZoneEntered) Contest() string { return e.ContestID }
func (e RedZoneEntered) Key() string {
	return key(e.ContestID, KindRedZoneEntered.String(), e.Team.ID, e.Mark.String())
}
func (RedZoneEntered) sealed() {}

// RedZoneExited reports a team leaving the red zone.
type RedZoneExited struct {
	ContestID string         `json:"contest_id"`
	Team      game.TeamScore `json:"team"`
	Mark      Mark           `json:"mark"`
}

func (RedZoneExited) Kind() Kind        { return KindRedZoneExited }
func (e RedZoneExited) Contest() string { return e.ContestID }
func (e RedZoneExited) Key() string {
	return key(e.ContestID, KindRedZoneExited.String(), e.Team.ID, e.Mark.String())
}
func (RedZoneExited) sealed() {}

// PossessionChanged reports a change of offense without a score.
type PossessionChanged struct {
	ContestID string         `json:"contest_id"`
	Team      game.TeamScore `json:"team"`
	Mark      Mark           `json:"mark"`
}

func (PossessionChanged) Kind() Kind        { return KindPossessionChanged }
func (e PossessionChanged) Contest() string { return e.ContestID }
func (e PossessionChanged) Key() string {
	return key(e.ContestID, KindPossessionChanged.String(), e.Team.ID, e.Mark.String())
}
func (PossessionChanged) sealed() {}

// StatusChanged reports a lifecycle transition. Initial is set on the first
// observation of a contest, when From is unknown.
type StatusChanged struct {
	ContestID string      `json:"contest_id"`
	From      game.Status `json:"from"`
	To        game.Status `json:"to"`
	Initial   bool        `json:"initial"`
}

func (StatusChanged) Kind() Kind        { return KindStatusChanged }
func (e StatusChanged) Contest() string { return e.ContestID }
func (e StatusChanged) Key() string {
	return key(e.ContestID, KindStatusChanged.String(), string(e.To))
}
func (StatusChanged) sealed() {}
