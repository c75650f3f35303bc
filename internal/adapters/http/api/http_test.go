package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/adapters/http/api"
	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/srs"
	"github.com/okian/cadence/internal/domain/temporal"
	"github.com/okian/cadence/internal/engine"
	"github.com/okian/cadence/pkg/logger"
)

type mockDependencies struct {
	mu        sync.Mutex
	err       error
	attempts  []model.AttemptEvent
	sessions  []model.SessionSummary
	scheduled []string
	observer  engine.Observer
	sequence  uint64
}

func (m *mockDependencies) ProcessAttempt(_ context.Context, a model.AttemptEvent) (engine.AttemptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return engine.AttemptResult{}, m.err
	}
	m.attempts = append(m.attempts, a)
	return engine.AttemptResult{AttemptID: a.ID, MomentumScore: 0.5}, nil
}

func (m *mockDependencies) ProcessSession(_ context.Context, s model.SessionSummary) (temporal.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return temporal.Result{}, m.err
	}
	m.sessions = append(m.sessions, s)
	return temporal.Result{SessionType: model.SessionReview}, nil
}

func (m *mockDependencies) CalculateNextInterval(_ context.Context, userID string, req engine.ScheduleRequest) (srs.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return srs.Result{}, m.err
	}
	m.scheduled = append(m.scheduled, userID+"/"+req.Item.Verb)
	return srs.Result{Card: srs.Card{Key: req.Item.Key(), IntervalDays: 3}}, nil
}

func (m *mockDependencies) Snapshot(_ context.Context, userID string) (engine.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return engine.Snapshot{}, m.err
	}
	return engine.Snapshot{UserID: userID, Sequence: m.sequence}, nil
}

func (m *mockDependencies) Subscribe(_ context.Context, _ string, fn engine.Observer) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.observer = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.observer = nil
	}, nil
}

func (m *mockDependencies) publish(s engine.Snapshot) bool {
	m.mu.Lock()
	fn := m.observer
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(s)
	return true
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

const validAttempt = `{"id":"a1","userId":"u1","correct":true,"responseTimeMs":2400,
	"item":{"verb":"hablar","mood":"indicative","tense":"present","person":"1s"},
	"timestamp":"2026-03-02T10:00:00Z"}`

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{}
		stats := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
		h := api.NewServer(deps, stats, api.WithLogger(logger.Discard())).Handler()

		Convey("The health endpoint reports ok", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("The metrics endpoint serves the registry", func() {
			w := do(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("The stats endpoint returns the provider's stats", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string]interface{}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["started"], ShouldEqual, true)
		})

		Convey("Unknown paths and wrong methods are not found", func() {
			So(do(h, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/attempts", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodPost, "/snapshot/u1", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Attempts(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &mockDependencies{}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		Convey("A valid attempt is processed", func() {
			w := do(h, http.MethodPost, "/attempts", validAttempt)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"processed"`)
			So(len(deps.attempts), ShouldEqual, 1)
			So(deps.attempts[0].Item.Verb, ShouldEqual, "hablar")
			So(deps.attempts[0].Timestamp.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("Malformed bodies are rejected", func() {
			So(do(h, http.MethodPost, "/attempts", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/attempts", `{"userId":"u1","bogus":1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/attempts", `{"item":{"verb":"ser","mood":"m","tense":"t","person":"p"}}`).Code, ShouldEqual, http.StatusBadRequest)

			w := do(h, http.MethodPost, "/attempts", `{"userId":"u1","item":{"verb":"ser"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "missing item.mood")
			So(len(deps.attempts), ShouldEqual, 0)
		})

		Convey("Service errors map to statuses", func() {
			cases := []struct {
				err  error
				code int
				body string
			}{
				{service.ErrDuplicate, http.StatusOK, `"duplicate":true`},
				{service.ErrQueueFull, http.StatusTooManyRequests, "backpressure"},
				{service.ErrTimeout, http.StatusServiceUnavailable, "unavailable"},
				{service.ErrStopped, http.StatusServiceUnavailable, "unavailable"},
				{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
			}
			for _, c := range cases {
				deps.err = c.err
				w := do(h, http.MethodPost, "/attempts", validAttempt)
				So(w.Code, ShouldEqual, c.code)
				So(w.Body.String(), ShouldContainSubstring, c.body)
			}
		})
	})
}

func TestServer_SessionsScheduleSnapshot(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &mockDependencies{}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		Convey("A session is forwarded", func() {
			w := do(h, http.MethodPost, "/sessions", `{"userId":"u1","start":"2026-03-02T09:00:00Z","end":"2026-03-02T09:20:00Z","attempts":30,"accuracy":0.8}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"sessionTypeRecommendation":"review"`)
			So(len(deps.sessions), ShouldEqual, 1)
			So(deps.sessions[0].Attempts, ShouldEqual, 30)

			So(do(h, http.MethodPost, "/sessions", `{"attempts":3}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A schedule request carries the user and item", func() {
			w := do(h, http.MethodPost, "/schedule", `{"userId":"u1","item":{"verb":"comer","mood":"indicative","tense":"preterite","person":"3s"},"correct":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"intervalDays":3`)
			So(deps.scheduled, ShouldResemble, []string{"u1/comer"})

			So(do(h, http.MethodPost, "/schedule", `{"item":{"verb":"comer"}}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A snapshot is returned by user", func() {
			w := do(h, http.MethodGet, "/snapshot/u7", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var snap engine.Snapshot
			So(json.Unmarshal(w.Body.Bytes(), &snap), ShouldBeNil)
			So(snap.UserID, ShouldEqual, "u7")

			So(do(h, http.MethodGet, "/snapshot/", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/snapshot/a/b", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func readEvent(r *bufio.Reader) (map[string]string, error) {
	ev := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(ev) > 0 {
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		k, v, _ := strings.Cut(line, ": ")
		ev[k] = v
	}
}

func TestServer_Stream(t *testing.T) {
	Convey("Given a stream subscriber", t, func() {
		deps := &mockDependencies{sequence: 4}
		srv := httptest.NewServer(api.NewServer(deps, &mockStatsProvider{}, api.WithHeartbeat(20*time.Millisecond)).Handler())
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream/u1", nil)
		So(err, ShouldBeNil)
		resp, err := http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		defer resp.Body.Close()

		So(resp.StatusCode, ShouldEqual, http.StatusOK)
		So(resp.Header.Get("Content-Type"), ShouldEqual, "text/event-stream")

		r := bufio.NewReader(resp.Body)
		first, err := readEvent(r)
		So(err, ShouldBeNil)
		So(first["event"], ShouldEqual, "snapshot")
		So(first["id"], ShouldEqual, "4")

		Convey("Published snapshots follow the current one", func() {
			So(deps.publish(engine.Snapshot{UserID: "u1", Sequence: 5, Reason: engine.ReasonAttempt}), ShouldBeTrue)

			next, err := readEvent(r)
			So(err, ShouldBeNil)
			So(next["id"], ShouldEqual, "5")
			var snap engine.Snapshot
			So(json.Unmarshal([]byte(next["data"]), &snap), ShouldBeNil)
			So(snap.Reason, ShouldEqual, engine.ReasonAttempt)
		})
	})

	Convey("Given a failing service", t, func() {
		deps := &mockDependencies{err: service.ErrStopped}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		So(do(h, http.MethodGet, "/stream/u1", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		So(do(h, http.MethodGet, "/stream/", "").Code, ShouldEqual, http.StatusBadRequest)
	})
}

func TestServer_WithService(t *testing.T) {
	Convey("Given a running service behind the API", t, func() {
		svc := service.New(service.WithWorkerCount(1), service.WithLogger(logger.Discard()))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		h := api.NewServer(svc, svc).Handler()

		w := do(h, http.MethodPost, "/attempts", validAttempt)
		So(w.Code, ShouldEqual, http.StatusOK)

		w = do(h, http.MethodPost, "/attempts", validAttempt)
		So(w.Code, ShouldEqual, http.StatusOK)
		So(w.Body.String(), ShouldContainSubstring, `"status":"duplicate"`)

		w = do(h, http.MethodGet, "/snapshot/u1", "")
		So(w.Code, ShouldEqual, http.StatusOK)
		var snap engine.Snapshot
		So(json.Unmarshal(w.Body.Bytes(), &snap), ShouldBeNil)
		So(snap.Attempts, ShouldEqual, 1)
		So(snap.Scheduling.Cards, ShouldEqual, 1)
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given a handler that panics", t, func() {
		h := api.RecoverMiddleware(
			api.MetricsMiddleware(func(http.ResponseWriter, *http.Request) { panic("boom") }, "boom", logger.Discard()),
			logger.Discard(),
		)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

		So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		So(rec.Body.String(), ShouldContainSubstring, "internal_error")
	})

	Convey("Given a handler that fails", t, func() {
		h := api.MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}, "fail", logger.Discard())
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/fail", nil))
		So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
	})
}
