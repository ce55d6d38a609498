package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	NewLedgerMetrics(metrics.Registerer()).ObservePosting("manual", OutcomeOK, time.Millisecond)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `gl_postings_total{outcome="ok",source="manual"} 1`) {
		t.Fatalf("expected body to contain gl_postings_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "gl_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "gl_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "gl_http_problems_total{class=\"4xx\",method=\"GET\"} 1") {
		t.Fatalf("expected problem counter to record 4xx, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "gl_http_requests_in_flight 0") {
		t.Fatalf("expected in-flight gauge back at zero, got: %s", metricsBody)
	}
}

func TestStatusClass(t *testing.T) {
	for status, want := range map[int]string{200: "2xx", 404: "4xx", 422: "4xx", 503: "5xx"} {
		if got := statusClass(status); got != want {
			t.Fatalf("statusClass(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObservePosting("manual", OutcomeFailed, 0)
	m.ObserveSettlement("jumia", OutcomeOK)
	m.ObserveMappingCache(true)
}
