package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/internal/engine"
	"github.com/okian/cadence/pkg/logger"
)

// LearningDependencies is the subset of Dependencies the request/reply
// endpoints use.
type LearningDependencies interface {
	ProcessAttempt(ctx context.Context, a model.AttemptEvent) (engine.AttemptResult, error)
	ProcessSession(ctx context.Context, s model.SessionSummary) (temporal.Result, error)
	CalculateNextInterval(ctx context.Context, userID string, req engine.ScheduleRequest) (srs.Result, error)
	Snapshot(ctx context.Context, userID string) (engine.Snapshot, error)
}

// LearningHandler handles attempts, sessions, scheduling and snapshots.
type LearningHandler struct {
	deps   LearningDependencies
	logger logger.Logger
}

// NewLearningHandler creates a new learning handler.
func NewLearningHandler(deps LearningDependencies) *LearningHandler {
	return &LearningHandler{deps: deps, logger: logger.Discard()}
}

type attemptResponse struct {
	Status    string                `json:"status"`
	Duplicate bool                  `json:"duplicate"`
	Result    *engine.AttemptResult `json:"result,omitempty"`
}

func validateItem(it model.Item) error {
	switch {
	case strings.TrimSpace(it.Verb) == "":
		return errors.New("missing item.verb")
	case strings.TrimSpace(it.Mood) == "":
		return errors.New("missing item.mood")
	case strings.TrimSpace(it.Tense) == "":
		return errors.New("missing item.tense")
	case strings.TrimSpace(it.Person) == "":
		return errors.New("missing item.person")
	}
	return nil
}

// HandlePostAttempt handles POST /attempts requests.
func (h *LearningHandler) HandlePostAttempt(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_attempt"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req model.AttemptEvent
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing userId")))
		return
	}
	if err := validateItem(req.Item); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.ProcessAttempt(r.Context(), req)
	if errors.Is(err, service.ErrDuplicate) {
		writeJSON(w, http.StatusOK, attemptResponse{Status: "duplicate", Duplicate: true})
		return
	}
	if err != nil {
		h.logger.Warn(r.Context(), "attempt rejected",
			logger.String("userID", req.UserID),
			logger.Error(err),
		)
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse{Status: "processed", Result: &res})
}

// HandlePostSession handles POST /sessions requests.
func (h *LearningHandler) HandlePostSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req model.SessionSummary
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing userId")))
		return
	}
	res, err := h.deps.ProcessSession(r.Context(), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// scheduleRequest is the body of POST /schedule.
type scheduleRequest struct {
	UserID string `json:"userId"`
	engine.ScheduleRequest
}

// HandlePostSchedule handles POST /schedule requests.
func (h *LearningHandler) HandlePostSchedule(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_schedule"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing userId")))
		return
	}
	if err := validateItem(req.Item); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.CalculateNextInterval(r.Context(), req.UserID, req.ScheduleRequest)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetSnapshot handles GET /snapshot/{user} requests.
func (h *LearningHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	user := pathParam(r, "/snapshot/")
	if user == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing user")))
		return
	}
	snap, err := h.deps.Snapshot(r.Context(), user)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
