package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/api/v1/documents/":       "/api/v1/documents/",
		"/api/v1/documents/upload": "/api/v1/documents/upload",
		"/api/v1/documents/abc":    "/api/v1/documents/{document_id}",
		"/api/v1/status/abc":       "/api/v1/status/{document_id}",
		"/api/v1/reanalyze/abc":    "/api/v1/reanalyze/{document_id}",
		"/api/v1/chat":             "/api/v1/chat",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-1", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/api/v1/documents/{document_id}", "404"))
	if got != 1 {
		t.Fatalf("expected one recorded request, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "dcs_http_requests_total") {
		t.Fatalf("expected exported metric, got %s", rec.Body.String())
	}
}

func TestChatAndWorkerRecorders(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordChat("api", "chat", "document", "ok", 3, time.Second)
	m.RecordChat("api", "chat", "", "document_not_ready", 0, time.Millisecond)
	if got := testutil.ToFloat64(m.chatRequestsTotal.WithLabelValues("api", "chat", "none", "document_not_ready")); got != 1 {
		t.Fatalf("expected failed chat recorded under source none, got %v", got)
	}

	w := NewWorkerMetrics("worker")
	w.StartDocument()
	w.FinishDocument("worker", "ok", time.Second)
	w.RecordSweep("worker", 2, 0)
	w.SetBreakerState("ollama.generate", 2)
	if got := testutil.ToFloat64(w.processInFlight); got != 0 {
		t.Fatalf("expected in-flight back to zero, got %v", got)
	}
	if got := testutil.ToFloat64(w.sweeperActions.WithLabelValues("worker", "republished")); got != 2 {
		t.Fatalf("expected two republished, got %v", got)
	}
	if got := testutil.ToFloat64(w.breakerState.WithLabelValues("ollama.generate")); got != 2 {
		t.Fatalf("expected open breaker gauge, got %v", got)
	}
}

func TestApproxTokens(t *testing.T) {
	if ApproxTokens("  ") != 0 || ApproxTokens("ab") != 1 || ApproxTokens("마감 날짜 알려줘") != 2 {
		t.Fatalf("unexpected token estimates")
	}
}

func TestHandlerIncludesWorkerRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	workerMetrics := NewWorkerMetrics("api")
	httpMetrics.Include(workerMetrics.Registry())

	workerMetrics.FinishDocument("api", "ok", 2*time.Second)
	httpMetrics.SetBreakerState("ollama.generate", 2)

	res := httptest.NewRecorder()
	httpMetrics.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := res.Body.String()
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, body)
	}
	for _, name := range []string{"dcs_worker_document_process_total", "dcs_resilience_breaker_state"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}
