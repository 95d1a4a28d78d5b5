package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		status     HealthStatus
		wantCode   int
		wantStatus string
	}{
		{"healthy", HealthStatus{Status: "healthy", State: "Focused"}, http.StatusOK, "healthy"},
		{"degraded", HealthStatus{Status: "degraded", State: "Focused", StalledKinds: []string{"cam"}}, http.StatusOK, "degraded"},
		{"stopped", HealthStatus{Status: "stopped"}, http.StatusServiceUnavailable, "stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.status
			srv := NewServer("127.0.0.1:0", func() HealthStatus { return status }, zerolog.Nop())

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}

			var body HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestHealthEndpoint_NoReporter(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("got %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	IntakeQueueDepth.Set(2)

	srv := NewServer("127.0.0.1:0", nil, zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "attentiond_intake_queue_depth 2") {
		t.Error("expected queue depth gauge in exposition")
	}
}
