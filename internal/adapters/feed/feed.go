// Package feed defines the pull-based snapshot source boundary.
package feed

import (
	"context"
	"errors"

	"github.com/okian/stadium/internal/domain/game"
)

// Ref names one tracked contest.
type Ref struct {
	League    string `koanf:"league" json:"league" yaml:"league"`
	ContestID string `koanf:"contest_id" json:"contest_id" yaml:"contest_id"`
	// Teams optionally limits celebrations to these abbreviations.
	Teams []string `koanf:"teams" json:"teams,omitempty" yaml:"teams"`
}

// Source returns the current snapshot of a contest.
type Source interface {
	Fetch(ctx context.Context, ref Ref) (game.Snapshot, error)
}

// Sentinel kinds shared by all sources.
var (
	ErrFetch           = errors.New("snapshot fetch failed")
	ErrMalformed       = errors.New("malformed snapshot")
	ErrContestNotFound = errors.New("contest not found")
)
