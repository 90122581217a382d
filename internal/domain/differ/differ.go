// Package differ turns consecutive snapshots of a contest into semantic events.
package differ

import (
	"sync"

	"github.com/okian/stadium/internal/domain/event"
	"github.com/okian/stadium/internal/domain/game"
)

// Diff compares the previous accepted snapshot with the newest one.
//
// Events are ordered: score changes (home, then away), red-zone exit/entry,
// possession change, status change. A score that went down marks cur as
// non-authoritative; Diff then returns ErrScoreRegression and no events.
func Diff(prev *game.Snapshot, cur game.Snapshot) ([]event.Event, error) {
	if cur.ContestID == "" {
		return nil, ErrEmptyContest
	}
	if prev == nil {
		return initial(cur), nil
	}
	if prev.ContestID != cur.ContestID {
		return nil, ErrContestMismatch
	}

	sides := cur.Teams()
	var before [2]game.TeamScore
	for i, t := range sides {
		before[i] = counterpart(prev, t, i)
		if t.Score < before[i].Score {
			return nil, ErrScoreRegression
		}
	}

	mark := event.Mark{Period: cur.Period, Clock: cur.Clock}
	var out []event.Event

	for i, t := range sides {
		if delta := t.Score - before[i].Score; delta > 0 {
			out = append(out, event.ScoreChanged{
				ContestID:       cur.ContestID,
				Team:            t,
				Delta:           delta,
				NewScore:        t.Score,
				PriorPossession: prev.Possession(),
				Mark:            mark,
			})
		}
	}
	scored := len(out) > 0

	// A snapshot without a situation carries no play-state information.
	if cur.Situation != nil {
		was, now := prev.RedZoneTeam(), cur.RedZoneTeam()
		if was != now {
			if was != "" {
				out = append(out, event.RedZoneExited{ContestID: cur.ContestID, Team: lookup(cur, prev, was), Mark: mark})
			}
			if now != "" {
				out = append(out, event.RedZoneEntered{ContestID: cur.ContestID, Team: lookup(cur, prev, now), Mark: mark})
			}
		}

		had, has := prev.Possession(), cur.Possession()
		if !scored && had != "" && has != "" && had != has {
			out = append(out, event.PossessionChanged{ContestID: cur.ContestID, Team: lookup(cur, prev, has), Mark: mark})
		}
	}

	if cur.Status != game.StatusUnknown && cur.Status != prev.Status {
		out = append(out, event.StatusChanged{ContestID: cur.ContestID, From: prev.Status, To: cur.Status})
	}
	return out, nil
}

// initial handles the first observation of a contest: no score events, and a
// status event only once the contest is underway.
func initial(cur game.Snapshot) []event.Event {
	switch cur.Status {
	case game.StatusInProgress, game.StatusFinal:
		return []event.Event{event.StatusChanged{
			ContestID: cur.ContestID,
			From:      game.StatusUnknown,
			To:        cur.Status,
			Initial:   true,
		}}
	}
	return nil
}

// counterpart finds the previous record for t by team id, falling back to the
// same side when the feed changed ids.
func counterpart(prev *game.Snapshot, t game.TeamScore, side int) game.TeamScore {
	if p, ok := prev.Team(t.ID); ok {
		return p
	}
	return prev.Teams()[side]
}

func lookup(cur game.Snapshot, prev *game.Snapshot, id string) game.TeamScore {
	if t, ok := cur.Team(id); ok {
		return t
	}
	if t, ok := prev.Team(id); ok {
		return t
	}
	return game.TeamScore{ID: id}
}

// carryForward fills fields cur omitted from prev so the stored baseline
// never goes backwards on missing data.
func carryForward(prev *game.Snapshot, cur game.Snapshot) game.Snapshot {
	if prev == nil {
		return cur
	}
	if cur.Status == game.StatusUnknown {
		cur.Status = prev.Status
	}
	if cur.Situation == nil && cur.Status == game.StatusInProgress {
		cur.Situation = prev.Situation
	}
	return cur
}

type baseline struct {
	mu   sync.Mutex
	snap *game.Snapshot
}

// Differencer keeps the last accepted snapshot per contest. Each contest has
// its own lock; unrelated contests never contend.
type Differencer struct {
	baselines sync.Map // contest id -> *baseline
}

// New creates an empty Differencer.
func New() *Differencer {
	return &Differencer{}
}

// Observe diffs cur against the stored baseline and advances the baseline
// only when the diff succeeds.
func (d *Differencer) Observe(cur game.Snapshot) ([]event.Event, error) {
	if cur.ContestID == "" {
		return nil, ErrEmptyContest
	}
	v, _ := d.baselines.LoadOrStore(cur.ContestID, &baseline{})
	b := v.(*baseline)

	b.mu.Lock()
	defer b.mu.Unlock()

	events, err := Diff(b.snap, cur)
	if err != nil {
		return nil, err
	}
	next := carryForward(b.snap, cur)
	b.snap = &next
	return events, nil
}

// Baseline returns the accepted snapshot for a contest.
func (d *Differencer) Baseline(contestID string) (game.Snapshot, bool) {
	v, ok := d.baselines.Load(contestID)
	if !ok {
		return game.Snapshot{}, false
	}
	b := v.(*baseline)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snap == nil {
		return game.Snapshot{}, false
	}
	return *b.snap, true
}

// Forget drops the baseline so the next observation counts as the first.
func (d *Differencer) Forget(contestID string) {
	d.baselines.Delete(contestID)
}
