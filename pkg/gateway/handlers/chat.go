package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/escalation"
	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/lifecycle"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/session"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/sessions"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
	"github.com/sanchita-suni/Calyx/pkg/gateway/mw"
)

// ChatHandler upgrades /ws/chat and runs one browser session per
// connection.
type ChatHandler struct {
	Config    config.Config
	Runtime   *Runtime
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Registry
	Metrics   *metrics.Metrics
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, mw.ErrTypeInvalidRequest, "method not allowed", "")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeError(w, r, http.StatusServiceUnavailable, mw.ErrTypeOverloaded, "server is draining", "")
		return
	}
	if !originAllowed(h.Config, r) {
		h.Metrics.RecordRejected(metrics.ChannelBrowser, "origin")
		writeError(w, r, http.StatusForbidden, mw.ErrTypeInvalidRequest, "origin is not allowed", "Origin")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := h.Runtime
	if rt == nil {
		rt = &Runtime{}
	}
	sessionID := uuid.NewString()
	logger = logger.With("request_id", requestIDFromContext(r))

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Provider:  rt.Provider,
		STT:       rt.STT,
		TTS:       rt.TTS,
		Relay:     rt.Relay,
		Vault:     rt.Vault,
		Directory: rt.Directory,
		Metrics:   h.Metrics,
		Modes:     rt.Modes,
		Clock:     rt.Clock,
		SessionID: sessionID,
		Config: session.Config{
			Companion: companionConfig(h.Config),
			Escalation: escalation.Config{
				Countdown:  h.Config.EscalationCountdown,
				Inactivity: h.Config.InactivityTimeout,
			},
			MaxMessageBytes:        h.Config.WSMaxMessageBytes,
			PingInterval:           h.Config.WSPingInterval,
			WriteTimeout:           h.Config.WSWriteTimeout,
			ReadTimeout:            readTimeout(h.Config),
			MaxAudioFPS:            browserMaxAudioFPS,
			MaxAudioBytesPerSecond: browserMaxAudioBytesPerSec,
			AudioBurstSeconds:      browserAudioBurstSeconds,
		},
	})
	if err != nil {
		logger.Error("failed to initialize session", "error", err)
		return
	}

	unregister := h.Sessions.Register(sessionID, sessions.Handle{
		Cancel:    s.Cancel,
		Warn:      s.SendWarning,
		Fork:      s.Fork,
		CallEnded: s.CallEnded,
	})
	defer unregister()

	logger.Info("session opened", "session_id", sessionID)
	if err := s.Run(); err != nil {
		logger.Warn("session ended with error", "session_id", sessionID, "error", err)
	}
}

func originAllowed(cfg config.Config, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(cfg.CORSAllowedOrigins) == 0 {
		return true
	}
	_, ok := cfg.CORSAllowedOrigins[origin]
	return ok
}

func requestIDFromContext(r *http.Request) string {
	if id, ok := mw.RequestIDFrom(r.Context()); ok {
		return id
	}
	return ""
}
