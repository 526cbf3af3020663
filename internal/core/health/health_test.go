package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type fakeReporter struct {
	ready bool
	parts []int32
}

func (f fakeReporter) Readiness() (bool, []int32) { return f.ready, f.parts }

func TestReadiness_Handler(t *testing.T) {
	cases := []struct {
		name     string
		rep      fakeReporter
		wantCode int
		wantBody string
	}{
		{"ready", fakeReporter{true, []int32{0, 2}}, http.StatusOK, `{"status":"ready","partitions":[0,2]}`},
		{"not ready", fakeReporter{false, []int32{1}}, http.StatusServiceUnavailable, `{"status":"not_ready"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Readiness(tc.rep)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.wantCode {
				t.Fatalf("status=%d want %d", rr.Code, tc.wantCode)
			}
			if got := strings.TrimSpace(rr.Body.String()); got != tc.wantBody {
				t.Fatalf("body=%s want %s", got, tc.wantBody)
			}
		})
	}
}

func TestReadiness_AllReportersMustBeReady(t *testing.T) {
	rr := httptest.NewRecorder()
	Readiness(fakeReporter{true, []int32{0}}, fakeReporter{false, nil})(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}

	rr = httptest.NewRecorder()
	Readiness(fakeReporter{true, []int32{0}}, fakeReporter{true, []int32{3}})(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if got := strings.TrimSpace(rr.Body.String()); got != `{"status":"ready","partitions":[0,3]}` {
		t.Fatalf("body=%s", got)
	}
}
