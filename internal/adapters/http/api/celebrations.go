package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	service "github.com/okian/stadium/internal/app"
	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/classify"
	"github.com/okian/stadium/internal/domain/teams"
	"github.com/okian/stadium/pkg/logger"
)

// celebrationRequest is the body of POST /celebrations.
type celebrationRequest struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	TeamAbbr  string `json:"team_abbr"`
	TeamName  string `json:"team_name"`
	League    string `json:"league"`
	ContestID string `json:"contest_id"`
	Intensity string `json:"intensity"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

func (c celebrationRequest) toManual() (classify.ManualRequest, error) {
	if strings.TrimSpace(c.EventType) == "" {
		return classify.ManualRequest{}, errors.New("missing event_type")
	}
	if strings.TrimSpace(c.TeamAbbr) == "" {
		return classify.ManualRequest{}, errors.New("missing team_abbr")
	}
	req := classify.ManualRequest{
		Category:  c.EventType,
		EventID:   c.EventID,
		ContestID: c.ContestID,
		League:    strings.ToLower(c.League),
		TeamAbbr:  c.TeamAbbr,
		TeamName:  c.TeamName,
		Intensity: c.Intensity,
	}
	for _, side := range []struct {
		hex string
		dst **teams.Color
	}{{c.Primary, &req.Primary}, {c.Secondary, &req.Secondary}} {
		if side.hex == "" {
			continue
		}
		color, err := teams.ParseHex(side.hex)
		if err != nil {
			return classify.ManualRequest{}, err
		}
		*side.dst = &color
	}
	return req, nil
}

type ackResponse struct {
	Status    string           `json:"status"`
	Duplicate bool             `json:"duplicate"`
	Origin    string           `json:"origin"`
	Result    *dispatch.Result `json:"result,omitempty"`
}

// CelebrationsHandler handles manual celebration requests.
type CelebrationsHandler struct {
	deps    Dependencies
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewCelebrationsHandler creates a new celebrations handler.
func NewCelebrationsHandler(deps Dependencies, limiter *rate.Limiter, log logger.Logger) *CelebrationsHandler {
	return &CelebrationsHandler{deps: deps, limiter: limiter, logger: log}
}

// HandlePostCelebration handles POST /celebrations. With ?wait=true it
// responds 200 once every sink has answered; otherwise 202 at once.
func (h *CelebrationsHandler) HandlePostCelebration(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_celebration"
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind(op, ErrRateLimited))
		return
	}

	var body celebrationRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req, err := body.toManual()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	res, err := h.deps.Trigger(r.Context(), req, wait)
	switch {
	case errors.Is(err, service.ErrInvalidTrigger):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, dispatch.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
		return
	case err != nil:
		h.logger.Error(r.Context(), "manual celebration failed", logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}

	ack := ackResponse{Status: "accepted", Duplicate: res.Duplicate, Origin: res.Command.Origin}
	if res.Duplicate {
		ack.Status = "duplicate"
	}
	if wait {
		ack.Result = res.Result
		writeJSON(w, http.StatusOK, ack)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}
