// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/internal/engine"
	"github.com/okian/cadence/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ProcessAttempt(ctx context.Context, a model.AttemptEvent) (engine.AttemptResult, error)
	ProcessSession(ctx context.Context, s model.SessionSummary) (temporal.Result, error)
	CalculateNextInterval(ctx context.Context, userID string, req engine.ScheduleRequest) (srs.Result, error)
	Snapshot(ctx context.Context, userID string) (engine.Snapshot, error)
	Subscribe(ctx context.Context, userID string, fn engine.Observer) (func(), error)
}

// Server wires HTTP routes for the learner API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	learningHandler *LearningHandler
	streamHandler   *StreamHandler
	logger          logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHeartbeat sets the idle interval between stream keep-alives.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamHandler.heartbeat = d
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		learningHandler: NewLearningHandler(deps),
		streamHandler:   NewStreamHandler(deps),
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.learningHandler.logger = s.logger
	s.streamHandler.logger = s.logger
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	wrap := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return RecoverMiddleware(MetricsMiddleware(h, endpoint, s.logger), s.logger)
	}
	mux.HandleFunc("/healthz", wrap(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", wrap(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/attempts", wrap(s.learningHandler.HandlePostAttempt, "attempts"))
	mux.HandleFunc("/sessions", wrap(s.learningHandler.HandlePostSession, "sessions"))
	mux.HandleFunc("/schedule", wrap(s.learningHandler.HandlePostSchedule, "schedule"))
	mux.HandleFunc("/snapshot/", wrap(s.learningHandler.HandleGetSnapshot, "snapshot"))
	mux.HandleFunc("/stream/", RecoverMiddleware(s.streamHandler.HandleStream, s.logger))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
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

// writeServiceError translates service sentinels into HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrTimeout),
		errors.Is(err, service.ErrStopped),
		errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
