package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
)

func testConfig() config.Config {
	return config.Config{
		LLMProvider:         config.LLMProviderGroq,
		GroqAPIKey:          "gsk_test",
		EscalationCountdown: 5 * time.Second,
		InactivityTimeout:   10 * time.Second,
		CORSAllowedOrigins:  map[string]struct{}{},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := New(testConfig(), testLogger(), Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestServer_HealthAndReady(t *testing.T) {
	s := New(testConfig(), testLogger(), Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestServer_ReadyReportsDraining(t *testing.T) {
	s := New(testConfig(), testLogger(), Options{})
	s.Lifecycle().SetDraining(true)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestServer_WebsocketRoutes_Reachable(t *testing.T) {
	s := New(testConfig(), testLogger(), Options{})
	for _, path := range []string{"/ws/chat", "/ws/twilio"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		// Not an upgrade request, so the upgrader refuses it.
		if rr.Code == http.StatusNotFound {
			t.Fatalf("%s unexpectedly returned 404", path)
		}
	}
}

func TestServer_DownloadRejectsBadName(t *testing.T) {
	s := New(testConfig(), testLogger(), Options{})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/download/passwd", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	m := metrics.New("calyx_test")
	s := New(testConfig(), testLogger(), Options{Metrics: m})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "calyx_test_http_requests_total") {
		t.Fatalf("request counter missing from exposition")
	}
}
