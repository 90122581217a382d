package testevents

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/stadium/pkg/logger"
)

// Drill vocabulary. Red zone is left out since it is ambient and resets.
var (
	drillCategories  = []string{"touchdown", "field_goal", "extra_point", "two_point", "safety", "turnover", "big_play", "generic_score"}
	drillTeams       = []string{"BUF", "KC", "PHI", "SF", "DAL", "GB", "BAL", "DET"}
	drillIntensities = []string{"low", "medium", "high"}
)

func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func randomFloat() float64 {
	const divisor = 1_000_000
	return float64(randomIndex(divisor)) / divisor
}

// generateCelebrations builds config.NumEvents requests. About
// config.Duplicate of them repeat an earlier request verbatim so the dispatch
// window should suppress them.
func generateCelebrations(ctx context.Context, config *Config, stats *Stats) []Celebration {
	out := make([]Celebration, 0, config.NumEvents)
	for i := 0; i < config.NumEvents; i++ {
		if i > 0 && randomFloat() < config.Duplicate {
			out = append(out, out[randomIndex(len(out))])
			continue
		}
		out = append(out, Celebration{
			EventType: drillCategories[randomIndex(len(drillCategories))],
			EventID:   uuid.NewString(),
			TeamAbbr:  drillTeams[randomIndex(len(drillTeams))],
			League:    config.League,
			ContestID: config.Contest,
			Intensity: drillIntensities[randomIndex(len(drillIntensities))],
		})
	}

	stats.Generated = len(out)
	logger.Get().Info(ctx, "generated celebrations",
		logger.Int("count", len(out)),
		logger.Int("unique", len(uniqueIDs(out))))
	return out
}

func uniqueIDs(cs []Celebration) map[string]struct{} {
	ids := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		ids[c.EventID] = struct{}{}
	}
	return ids
}
