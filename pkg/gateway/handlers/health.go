package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyCheck pings one backing store.
type ReadyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Checks    []ReadyCheck
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK        bool              `json:"ok"`
		Draining  bool              `json:"draining,omitempty"`
		Since     *time.Time        `json:"draining_since,omitempty"`
		LLM       string            `json:"llm_provider"`
		Speech    bool              `json:"speech"`
		Telephony bool              `json:"telephony"`
		Checks    map[string]string `json:"checks,omitempty"`
		Issues    []string          `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	switch h.Config.LLMProvider {
	case config.LLMProviderGroq:
		if h.Config.GroqAPIKey == "" {
			issues = append(issues, "GROQ_API_KEY is not set")
		}
	case config.LLMProviderGemini:
		if h.Config.GeminiAPIKey == "" {
			issues = append(issues, "GEMINI_API_KEY is not set")
		}
	default:
		issues = append(issues, "invalid llm provider")
	}
	if h.Config.EscalationCountdown <= 0 || h.Config.InactivityTimeout <= 0 {
		issues = append(issues, "escalation timers must be > 0")
	}
	if h.Config.TwilioConfigured() && h.Config.PublicDomain == "" {
		issues = append(issues, "telephony configured without a public domain")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := make(map[string]string, len(h.Checks))
	for _, c := range h.Checks {
		if c.Ping == nil {
			continue
		}
		if err := c.Ping(ctx); err != nil {
			checks[c.Name] = err.Error()
			issues = append(issues, c.Name+" unreachable")
			continue
		}
		checks[c.Name] = "ok"
	}

	draining := h.Lifecycle.IsDraining()
	var since *time.Time
	if t, ok := h.Lifecycle.DrainingSince(); ok {
		since = &t
	}
	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	switch {
	case draining:
		status = http.StatusServiceUnavailable
	case !ok:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:        ok,
		Draining:  draining,
		Since:     since,
		LLM:       string(h.Config.LLMProvider),
		Speech:    h.Config.DeepgramAPIKey != "" && h.Config.MurfAPIKey != "",
		Telephony: h.Config.TwilioConfigured(),
		Checks:    checks,
		Issues:    issues,
	})
}
