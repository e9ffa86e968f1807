package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecordRequestAndExposition(t *testing.T) {
	m := New()
	m.RecordRequest("GET", "/api/patients", 200, 12*time.Millisecond)
	m.RecordRequest("GET", "/api/patients", 200, 30*time.Millisecond)
	m.RecordRequest("POST", "/api/users/login", 401, 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler()(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "rpm_uptime_seconds") {
		t.Error("exposition missing uptime gauge")
	}
	if !strings.Contains(body, `rpm_http_requests_total{endpoint="/api/patients",method="GET"} 2`) {
		t.Errorf("exposition missing request count:\n%s", body)
	}
	if !strings.Contains(body, `rpm_http_errors_total{endpoint="/api/users/login",method="POST",status_class="4xx"} 1`) {
		t.Errorf("exposition missing error count:\n%s", body)
	}
	if !strings.Contains(body, "rpm_http_request_duration_seconds_bucket") {
		t.Error("exposition missing latency histogram")
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/patients/42", "/api/patients/{id}"},
		{"/api/patients/42/devices", "/api/patients/{id}/devices"},
		{"/api/patients", "/api/patients"},
		{"/health", "/health"},
	}

	for _, tt := range tests {
		if got := normalizeEndpoint(tt.path); got != tt.want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIncCounter(t *testing.T) {
	m := New()
	m.IncCounter("logins_total")
	m.IncCounter("logins_total")
	m.IncCounter("token_refreshes_total")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler()(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `rpm_counter{name="logins_total"} 2`) {
		t.Errorf("exposition missing logins counter:\n%s", body)
	}
	if !strings.Contains(body, `rpm_counter{name="token_refreshes_total"} 1`) {
		t.Errorf("exposition missing refresh counter:\n%s", body)
	}
}

func TestRecordRequestConcurrent(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Interleave a shared key with first inserts of fresh keys.
			for j := 0; j < 50; j++ {
				m.RecordRequest("GET", "/api/patients", 200, time.Millisecond)
				m.RecordRequest("GET", fmt.Sprintf("/w%d/r%d", n, j), 500, time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler()(w, req)

	if !strings.Contains(w.Body.String(), `rpm_http_requests_total{endpoint="/api/patients",method="GET"} 400`) {
		t.Errorf("lost increments on the shared key:\n%s", w.Body.String())
	}
}

func TestHistogramObserve(t *testing.T) {
	h := NewHistogram()
	h.Observe(0.003)
	h.Observe(0.2)
	h.Observe(8)

	if h.count != 3 {
		t.Errorf("count = %d, want 3", h.count)
	}
	// 0.003 lands in every bucket from 5ms up; 8 only in the 10s bucket.
	if h.bucketVals[0] != 1 {
		t.Errorf("5ms bucket = %d, want 1", h.bucketVals[0])
	}
	if h.bucketVals[len(h.bucketVals)-1] != 3 {
		t.Errorf("10s bucket = %d, want 3", h.bucketVals[len(h.bucketVals)-1])
	}
}
