package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
	"github.com/sanchita-suni/Calyx/pkg/core/directory"
	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/lifecycle"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/phone"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/sessions"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
	"github.com/sanchita-suni/Calyx/pkg/gateway/mw"
)

// TwilioHandler accepts the carrier's media stream for a live call placed
// by an escalation.
type TwilioHandler struct {
	Config    config.Config
	Runtime   *Runtime
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Registry
	Metrics   *metrics.Metrics
}

func (h TwilioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, mw.ErrTypeInvalidRequest, "method not allowed", "")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeError(w, r, http.StatusServiceUnavailable, mw.ErrTypeOverloaded, "server is draining", "")
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
	logger = logger.With("request_id", requestIDFromContext(r), "channel", metrics.ChannelPhone)
	rt := h.Runtime
	if rt == nil {
		rt = &Runtime{}
	}

	call, err := phone.New(phone.Dependencies{
		Conn:     conn,
		Logger:   logger,
		Provider: rt.Provider,
		STT:      rt.STT,
		TTS:      rt.TTS,
		Intro:    rt.Intro,
		Resolve:  h.resolver(rt, logger),
		Metrics:  h.Metrics,
		Config: phone.Config{
			Companion:       companionConfig(h.Config),
			WriteTimeout:    h.Config.WSWriteTimeout,
			MaxMessageBytes: h.Config.WSMaxMessageBytes,
		},
	})
	if err != nil {
		logger.Error("failed to initialize call", "error", err)
		return
	}

	// Calls share the parent's session id, so they register under their own.
	unregister := h.Sessions.Register("call_"+uuid.NewString(), sessions.Handle{Cancel: call.Cancel})
	defer unregister()

	if err := call.Run(); err != nil {
		logger.Warn("call ended with error", "error", err)
	}
}

// resolver finds the conversation behind a call: the live browser session
// when it is still connected, otherwise whatever the directory kept.
func (h TwilioHandler) resolver(rt *Runtime, logger *slog.Logger) phone.Resolver {
	return func(ctx context.Context, sessionID string) (phone.Bridge, error) {
		if sessionID == "" {
			return phone.Bridge{}, phone.ErrSessionNotFound
		}
		if hd, ok := h.Sessions.Lookup(sessionID); ok && hd.Fork != nil {
			return phone.Bridge{Session: hd.Fork(), OnEnd: hd.CallEnded}, nil
		}
		if rt.Directory == nil {
			return phone.Bridge{}, phone.ErrSessionNotFound
		}
		rec, err := rt.Directory.Get(ctx, sessionID)
		if err != nil {
			if !errors.Is(err, directory.ErrNotFound) {
				logger.Warn("directory lookup failed", "session_id", sessionID, "error", err)
			}
			return phone.Bridge{}, phone.ErrSessionNotFound
		}
		sess := state.NewSession(rt.Modes)
		sess.SetUserProfile(rec.Profile)
		if rec.Location != nil {
			sess.SetLocation(*rec.Location)
		}
		if len(rec.Profile.Contacts) > 0 {
			sess.Conversation().SetFirstResponder(rec.Profile.Contacts[0].Name)
		}
		logger.Info("call resolved from directory", "session_id", sessionID)
		return phone.Bridge{Session: sess.Fork()}, nil
	}
}
