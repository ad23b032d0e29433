package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/lifecycle"
)

func readyConfig() config.Config {
	return config.Config{
		LLMProvider:         config.LLMProviderGroq,
		GroqAPIKey:          "gsk_test",
		EscalationCountdown: 5 * time.Second,
		InactivityTimeout:   10 * time.Second,
	}
}

func serveReady(t *testing.T, h ReadyHandler) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rr, resp
}

func TestHealthHandler_OK(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_MissingLLMKey_NotReady(t *testing.T) {
	cfg := readyConfig()
	cfg.GroqAPIKey = ""
	rr, resp := serveReady(t, ReadyHandler{Config: cfg})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Fatalf("expected ok=false, got ok=true")
	}
}

func TestReadyHandler_Ready(t *testing.T) {
	h := ReadyHandler{
		Config: readyConfig(),
		Checks: []ReadyCheck{{Name: "vault", Ping: func(context.Context) error { return nil }}},
	}
	rr, resp := serveReady(t, h)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	checks, _ := resp["checks"].(map[string]any)
	if checks["vault"] != "ok" {
		t.Fatalf("checks=%v", resp["checks"])
	}
	if resp["llm_provider"] != "groq" {
		t.Fatalf("llm_provider=%v", resp["llm_provider"])
	}
}

func TestReadyHandler_FailingCheck_NotReady(t *testing.T) {
	h := ReadyHandler{
		Config: readyConfig(),
		Checks: []ReadyCheck{{Name: "directory", Ping: func(context.Context) error { return errors.New("connection refused") }}},
	}
	rr, resp := serveReady(t, h)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	checks, _ := resp["checks"].(map[string]any)
	if checks["directory"] != "connection refused" {
		t.Fatalf("checks=%v", resp["checks"])
	}
}

func TestReadyHandler_Draining(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	rr, resp := serveReady(t, ReadyHandler{Config: readyConfig(), Lifecycle: lc})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if d, _ := resp["draining"].(bool); !d {
		t.Fatalf("expected draining=true")
	}
}
