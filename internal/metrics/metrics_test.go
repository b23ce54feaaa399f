package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	return w.Body.String()
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("GET", "/api/v1/status", 200, 100*time.Millisecond)
	m.RecordRequest("GET", "/api/v1/status", 200, 150*time.Millisecond)
	m.RecordRequest("GET", "/api/v1/status", 500, 50*time.Millisecond)

	body := scrape(t, m)

	if !strings.Contains(body, "lpc_http_requests_total") {
		t.Error("expected lpc_http_requests_total metric")
	}
	if !strings.Contains(body, "lpc_http_request_duration_seconds") {
		t.Error("expected lpc_http_request_duration_seconds metric")
	}
	if !strings.Contains(body, "lpc_http_errors_total") {
		t.Error("expected lpc_http_errors_total metric")
	}
}

func TestMetrics_RecordRun(t *testing.T) {
	m := New()

	m.RecordRun("personal", "success", 8, 2)
	m.RecordRun("personal", "success", 0, 0)
	m.RecordRun("company", "failed", 0, 0)

	body := scrape(t, m)

	if !strings.Contains(body, `lpc_runs_total{flow="personal",status="success"} 2`) {
		t.Errorf("expected personal success count 2, got:\n%s", body)
	}
	if !strings.Contains(body, `lpc_runs_total{flow="company",status="failed"} 1`) {
		t.Errorf("expected company failed count 1, got:\n%s", body)
	}
	if !strings.Contains(body, "lpc_posts_processed_total 8") {
		t.Errorf("expected 8 posts processed, got:\n%s", body)
	}
	if !strings.Contains(body, "lpc_posts_failed_total 2") {
		t.Errorf("expected 2 posts failed, got:\n%s", body)
	}
}

func TestMetrics_WSConnections(t *testing.T) {
	m := New()

	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	body := scrape(t, m)

	if !strings.Contains(body, "lpc_websocket_connections_active 1") {
		t.Errorf("expected lpc_websocket_connections_active 1, got:\n%s", body)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/v1/status", "/api/v1/status"},
		{"/api/v1/runs/42", "/api/v1/runs/{id}"},
		{"/api/v1/runs/550e8400-e29b-41d4-a716-446655440000", "/api/v1/runs/{id}"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.in); got != tt.want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHistogram_Observe(t *testing.T) {
	h := NewHistogram()

	h.Observe(0.003)
	h.Observe(0.2)
	h.Observe(30)

	if h.count != 3 {
		t.Errorf("count = %d, want 3", h.count)
	}
	// 0.003 falls in every bucket, 0.2 from 0.25 up, 30 in none.
	if h.bucketVals[0] != 1 {
		t.Errorf("le=0.005 bucket = %d, want 1", h.bucketVals[0])
	}
	if h.bucketVals[10] != 2 {
		t.Errorf("le=10 bucket = %d, want 2", h.bucketVals[10])
	}
}
