package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/dashboards/{id}/summarize", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h := MetricsMiddleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "POST /v1/dashboards/{id}/summarize", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/dashboards/42/summarize", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "POST /v1/dashboards/{id}/summarize", "200"))
	if after-before != 1 {
		t.Fatalf("route counter delta = %v, want 1", after-before)
	}
}

func TestUserContextHelpers(t *testing.T) {
	if got := UserFromContext(context.Background()); got != "" {
		t.Fatalf("UserFromContext() = %q, want empty", got)
	}
	ctx := ContextWithUser(context.Background(), "alice")
	if got := UserFromContext(ctx); got != "alice" {
		t.Fatalf("UserFromContext() = %q", got)
	}
}

func TestWithTraceAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WithTrace(ContextWithTraceID(context.Background(), "t-9"), logger).Info("hello")
	if !strings.Contains(buf.String(), `"trace_id":"t-9"`) {
		t.Fatalf("log output = %s", buf.String())
	}
}
