package api

import (
	"errors"
	"net/http"

	"github.com/okian/stadium/internal/adapters/feed"
	service "github.com/okian/stadium/internal/app"
	"github.com/okian/stadium/pkg/logger"
)

type contestsResponse struct {
	Contests []service.ContestStatus `json:"contests"`
}

// ContestsHandler manages tracked contests.
type ContestsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewContestsHandler creates a new contests handler.
func NewContestsHandler(deps Dependencies, log logger.Logger) *ContestsHandler {
	return &ContestsHandler{deps: deps, logger: log}
}

// HandleList handles GET /contests.
func (h *ContestsHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, contestsResponse{Contests: h.deps.Contests()})
}

// HandleTrack handles POST /contests.
func (h *ContestsHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	const op = "api.track_contest"
	var ref feed.Ref
	if err := decode(w, r, &ref); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	err := h.deps.Track(r.Context(), ref)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, ref)
	case errors.Is(err, service.ErrInvalidContest):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrAlreadyTracked):
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
	default:
		h.logger.Error(r.Context(), "track contest failed", logger.String("contest", ref.ContestID), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	}
}

// HandleUntrack handles DELETE /contests/{id}.
func (h *ContestsHandler) HandleUntrack(w http.ResponseWriter, r *http.Request) {
	const op = "api.untrack_contest"
	id := r.PathValue("id")

	err := h.deps.Untrack(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrNotTracked):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	default:
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	}
}
