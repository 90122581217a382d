package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/domain/classify"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// TriggerResult is what a manual celebration produced. Result is only set
// when the caller waited for the sinks.
type TriggerResult struct {
	Command   celebration.Command `json:"command"`
	Duplicate bool                `json:"duplicate"`
	Result    *dispatch.Result    `json:"result,omitempty"`
}

// Trigger submits an operator-built celebration straight to the dispatcher,
// bypassing the differencer and classifier rules. A missing event id gets a
// fresh one, so such requests never count as duplicates.
func (s *Service) Trigger(ctx context.Context, req classify.ManualRequest, wait bool) (TriggerResult, error) {
	if strings.TrimSpace(req.EventID) == "" {
		req.EventID = uuid.NewString()
	}
	cmd, err := s.classifier.Manual(req)
	if err != nil {
		metrics.RecordManualTrigger("invalid")
		return TriggerResult{}, fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}

	if wait {
		res, err := s.dispatcher.Dispatch(ctx, cmd)
		if err != nil {
			metrics.RecordManualTrigger("error")
			return TriggerResult{Command: cmd}, err
		}
		s.countTrigger(ctx, cmd, res.Suppressed)
		return TriggerResult{Command: cmd, Duplicate: res.Suppressed, Result: &res}, nil
	}

	done, err := s.dispatcher.Submit(context.WithoutCancel(ctx), cmd)
	if err != nil {
		metrics.RecordManualTrigger("error")
		return TriggerResult{Command: cmd}, err
	}
	duplicate := false
	select {
	case r := <-done:
		duplicate = r.Suppressed
	default:
	}
	s.countTrigger(ctx, cmd, duplicate)
	return TriggerResult{Command: cmd, Duplicate: duplicate}, nil
}

func (s *Service) countTrigger(ctx context.Context, cmd celebration.Command, duplicate bool) {
	result := "accepted"
	if duplicate {
		result = "duplicate"
	}
	metrics.RecordManualTrigger(result)
	s.logger.Info(ctx, "manual celebration",
		logger.String("category", string(cmd.Category)),
		logger.String("team", cmd.Team.Abbreviation),
		logger.String("origin", cmd.Origin),
		logger.Bool("duplicate", duplicate))
}
