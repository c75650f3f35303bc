package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/cadence/internal/engine"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

const (
	defaultHeartbeat = 15 * time.Second
	streamBuffer     = 32
)

// StreamDependencies is the subset of Dependencies the stream endpoint uses.
type StreamDependencies interface {
	Snapshot(ctx context.Context, userID string) (engine.Snapshot, error)
	Subscribe(ctx context.Context, userID string, fn engine.Observer) (func(), error)
}

// StreamHandler pushes a learner's snapshots as server-sent events.
type StreamHandler struct {
	deps      StreamDependencies
	heartbeat time.Duration
	logger    logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies) *StreamHandler {
	return &StreamHandler{deps: deps, heartbeat: defaultHeartbeat, logger: logger.Discard()}
}

// HandleStream handles GET /stream/{user}. The current snapshot is sent
// first; later snapshots are dropped while the client is behind.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	user := pathParam(r, "/stream/")
	if user == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing user")))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", wrapKind(op, ErrStreaming, nil))
		return
	}

	ctx := r.Context()
	updates := make(chan engine.Snapshot, streamBuffer)
	unsubscribe, err := h.deps.Subscribe(ctx, user, func(s engine.Snapshot) {
		select {
		case updates <- s:
		default:
			metrics.RecordErrorByComponent("stream", "dropped")
		}
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	defer unsubscribe()

	current, err := h.deps.Snapshot(ctx, user)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, current); err != nil {
		return
	}
	flusher.Flush()

	h.logger.Debug(ctx, "stream opened", logger.String("userID", user))
	defer h.logger.Debug(ctx, "stream closed", logger.String("userID", user))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			if err := writeEvent(w, s); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, s engine.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", s.Sequence, b)
	return err
}
