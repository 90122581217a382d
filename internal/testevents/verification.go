package testevents

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/stadium/pkg/logger"
)

// ErrVerification means the stream did not match what was accepted.
var ErrVerification = errors.New("fire drill verification failed")

// verifyResults checks that every accepted event id was dispatched exactly
// once and that nothing else carrying a drill id showed up.
func verifyResults(ctx context.Context, config *Config, accepted map[string]struct{}, generated []Celebration, dispatched map[string]int, stats *Stats) error {
	known := uniqueIDs(generated)

	var missing, repeated, unexpected []string
	for id := range accepted {
		switch n := dispatched[id]; {
		case n == 0:
			missing = append(missing, id)
		case n > 1:
			repeated = append(repeated, id)
		}
	}
	for id := range dispatched {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, ok := accepted[id]; !ok {
			unexpected = append(unexpected, id)
		}
	}

	stats.Expected = len(accepted)
	stats.Missing = len(missing)
	stats.Unexpected = len(unexpected)

	log := logger.Get()
	if config.Verbose {
		for _, id := range missing {
			log.Warn(ctx, "accepted celebration never dispatched", logger.String("eventID", id))
		}
		for _, id := range repeated {
			log.Warn(ctx, "celebration dispatched more than once", logger.String("eventID", id))
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%d of %d accepted celebrations were never dispatched", len(missing), len(accepted)))
	}
	if len(repeated) > 0 {
		errs = append(errs, fmt.Errorf("%d celebrations dispatched more than once", len(repeated)))
	}
	if len(unexpected) > 0 {
		errs = append(errs, fmt.Errorf("%d rejected celebrations were dispatched", len(unexpected)))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(errs...))
	}

	log.Info(ctx, "verification passed", logger.Int("dispatched", len(accepted)))
	return nil
}
