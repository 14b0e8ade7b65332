package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// unavailableStore simulates a durable store that has gone away.
type unavailableStore struct {
	*memory.Store
}

func (unavailableStore) Name() string { return "mongo" }

func (unavailableStore) Ping(context.Context) error {
	return fmt.Errorf("ping: %w", store.ErrUnavailable)
}

func (unavailableStore) ListTransactions(context.Context) ([]core.Transaction, error) {
	return nil, fmt.Errorf("find transactions: %w", store.ErrUnavailable)
}

func (unavailableStore) ListBudgets(context.Context, string) ([]core.Budget, error) {
	return nil, fmt.Errorf("find budgets: %w", store.ErrUnavailable)
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: io.Discard})
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	return newTestServerWithStore(t, memory.New(), opts)
}

func newTestServerWithStore(t *testing.T, s store.RecordStore, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	svc := services.NewFinanceService(s, nil, opts.Logger)
	srv := NewServer(":0", svc, opts)
	srv.now = func() time.Time { return time.Date(2024, 5, 15, 12, 0, 0, 0, time.Local) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v (data %s)", err, env.Data)
		}
	}
	return env
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["uptime"] == nil {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestReady(t *testing.T) {
	t.Run("memory store", func(t *testing.T) {
		srv := newTestServer(t, Options{})
		rec := do(t, srv, http.MethodGet, "/readyz", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"backend":"memory"`) {
			t.Fatalf("missing store check: %s", rec.Body.String())
		}
	})

	t.Run("store down", func(t *testing.T) {
		srv := newTestServerWithStore(t, unavailableStore{memory.New()}, Options{})
		rec := do(t, srv, http.MethodGet, "/readyz", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"not_ready"`) {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	})
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, srv, http.MethodGet, "/healthz", "")
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total 1") {
		t.Fatalf("request counter missing:\n%s", rec.Body.String())
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodGet, "/static/styles.css", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "max-age=3600") {
		t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodGet, "/api/transactions", "")
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("security headers missing: %v", rec.Header())
	}
	if !strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_") {
		t.Fatalf("request id missing: %v", rec.Header())
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	srv := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec, nil); env.Success || env.Error == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	rec = do(t, srv, http.MethodPatch, "/api/transactions", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH status = %d", rec.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})
	body := `{"amount": -5, "description": "coffee", "date": "2024-05-01"}`

	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodPost, "/api/transactions", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
	if env := decodeEnvelope(t, rec, nil); env.Success {
		t.Fatal("limited response must not be successful")
	}

	// reads are not limited
	if rec := do(t, srv, http.MethodGet, "/api/transactions", ""); rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	srv := newTestServerWithStore(t, unavailableStore{memory.New()}, Options{})
	for _, target := range []string{
		"/api/transactions",
		"/api/budgets",
		"/api/analytics/summary",
		"/api/analytics/insights?month=2024-05",
	} {
		rec := do(t, srv, http.MethodGet, target, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d", target, rec.Code)
			continue
		}
		env := decodeEnvelope(t, rec, nil)
		if env.Success || !strings.Contains(env.Error, "unavailable") {
			t.Errorf("%s: envelope %+v", target, env)
		}
	}
}

func TestShutdownIdempotent(t *testing.T) {
	srv := newTestServer(t, Options{})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
