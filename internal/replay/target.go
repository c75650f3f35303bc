package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/engine"
)

// Target receives replayed attempts.
type Target interface {
	// Submit processes one attempt and reports whether it was a duplicate.
	Submit(ctx context.Context, a model.AttemptEvent) (duplicate bool, err error)
	// SubmitSession records the summary of a replayed practice session.
	SubmitSession(ctx context.Context, s model.SessionSummary) error
	// Snapshot returns the learner's state after the replay.
	Snapshot(ctx context.Context, userID string) (engine.Snapshot, error)
}

// ServiceTarget replays into an in-process service.
type ServiceTarget struct {
	svc *service.Service
}

// NewServiceTarget wraps a started service.
func NewServiceTarget(svc *service.Service) *ServiceTarget {
	return &ServiceTarget{svc: svc}
}

// Submit implements Target.
func (t *ServiceTarget) Submit(ctx context.Context, a model.AttemptEvent) (bool, error) {
	_, err := t.svc.ProcessAttempt(ctx, a)
	if errors.Is(err, service.ErrDuplicate) {
		return true, nil
	}
	return false, err
}

// SubmitSession implements Target.
func (t *ServiceTarget) SubmitSession(ctx context.Context, s model.SessionSummary) error {
	_, err := t.svc.ProcessSession(ctx, s)
	return err
}

// Snapshot implements Target.
func (t *ServiceTarget) Snapshot(ctx context.Context, userID string) (engine.Snapshot, error) {
	return t.svc.Snapshot(ctx, userID)
}

// HTTPTarget replays against a running server.
type HTTPTarget struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTarget creates a target for the server at baseURL.
func NewHTTPTarget(baseURL string, timeout time.Duration) *HTTPTarget {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTarget{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Submit implements Target.
func (t *HTTPTarget) Submit(ctx context.Context, a model.AttemptEvent) (bool, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to marshal attempt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/attempts", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to submit attempt: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var ack ackResponse
	if err := json.Unmarshal(data, &ack); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return ack.Duplicate, nil
}

// SubmitSession implements Target.
func (t *HTTPTarget) SubmitSession(ctx context.Context, s model.SessionSummary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// Snapshot implements Target.
func (t *HTTPTarget) Snapshot(ctx context.Context, userID string) (engine.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/snapshot/"+userID, nil)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.Snapshot{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var snap engine.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// CheckHealth verifies the server answers /healthz.
func (t *HTTPTarget) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}
