// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/okian/stadium/internal/adapters/feed"
	service "github.com/okian/stadium/internal/app"
	"github.com/okian/stadium/internal/domain/classify"
	"github.com/okian/stadium/pkg/logger"
)

// Default API configuration constants.
const (
	defaultTriggerRate  = 2
	defaultTriggerBurst = 5
	maxBodyBytes        = 1 << 16
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service.
type Dependencies interface {
	Trigger(ctx context.Context, req classify.ManualRequest, wait bool) (service.TriggerResult, error)
	Track(ctx context.Context, ref feed.Ref) error
	Untrack(ctx context.Context, contestID string) error
	Contests() []service.ContestStatus
	Status() service.Status
}

type options struct {
	limiter *rate.Limiter
	logger  logger.Logger
}

// Option configures a Server.
type Option func(*options)

// WithTriggerRate limits manual celebrations to perSecond with burst.
func WithTriggerRate(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond > 0 && burst > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statusHandler       *StatusHandler
	statsHandler        *StatsHandler
	celebrationsHandler *CelebrationsHandler
	contestsHandler     *ContestsHandler
	ws                  http.Handler
	logger              logger.Logger
}

// NewServer creates a new API server with all handlers. ws serves the
// subscriber stream.
func NewServer(deps Dependencies, statsProvider StatsProvider, ws http.Handler, opts ...Option) *Server {
	o := options{limiter: rate.NewLimiter(defaultTriggerRate, defaultTriggerBurst)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("api")
	}
	return &Server{
		healthHandler:       NewHealthHandler(),
		statusHandler:       NewStatusHandler(deps),
		statsHandler:        NewStatsHandler(statsProvider),
		celebrationsHandler: NewCelebrationsHandler(deps, o.limiter, o.logger),
		contestsHandler:     NewContestsHandler(deps, o.logger),
		ws:                  ws,
		logger:              o.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RecoverMiddleware(MetricsMiddleware(h, endpoint), s.logger))
	}
	handle("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	handle("GET /status", "status", s.statusHandler.HandleStatus)
	handle("GET /stats", "stats", s.statsHandler.HandleStats)
	handle("POST /celebrations", "celebrations", s.celebrationsHandler.HandlePostCelebration)
	handle("GET /contests", "contests", s.contestsHandler.HandleList)
	handle("POST /contests", "contests", s.contestsHandler.HandleTrack)
	handle("DELETE /contests/{id}", "contests", s.contestsHandler.HandleUntrack)
	if s.ws != nil {
		// Upgraded connections outlive the request, so no metrics wrapper.
		mux.Handle("GET /ws", s.ws)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
