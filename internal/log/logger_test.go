package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentAnalytics, Output: &buf})

	logger.Info("computed", FieldMonth, "2024-05")
	out := buf.String()
	if !strings.Contains(out, "component=analytics") || !strings.Contains(out, "month=2024-05") {
		t.Fatalf("unexpected output: %s", out)
	}

	buf.Reset()
	logger.WithComponent(ComponentWorker).Warn("late")
	if !strings.Contains(buf.String(), "component=worker") {
		t.Fatalf("component not switched: %s", buf.String())
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})
	logger.Info("hidden")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
	logger.Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("error not logged: %s", buf.String())
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithBudget("b1", "Food", "2024-05", decimal.RequireFromString("200")).
		WithError(errors.New("boom")).
		WithError(nil).
		WithRequestID("")

	if f[FieldBudgetID] != "b1" || f[FieldAmount] != "200" || f[FieldError] != "boom" {
		t.Fatalf("unexpected fields: %v", f)
	}
	if _, ok := f[FieldRequestID]; ok {
		t.Fatal("empty request id should be omitted")
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Fatalf("ToSlice length = %d", got)
	}

	resp := NewFields().WithHTTPResponse(404, 12)
	if resp[FieldSuccess] != false {
		t.Fatal("404 should not be success")
	}
}

func TestMiddlewareAndFromContext(t *testing.T) {
	logger := New(Config{Component: ComponentHTTP, Output: &bytes.Buffer{}})

	var got *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("logger not propagated: %+v", got)
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}
}

func TestStatusLevel(t *testing.T) {
	if StatusLevel(200) != slog.LevelInfo || StatusLevel(422) != slog.LevelWarn || StatusLevel(503) != slog.LevelError {
		t.Fatal("unexpected level mapping")
	}
}
