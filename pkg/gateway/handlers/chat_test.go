package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/lifecycle"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/sessions"
)

type cannedStream struct{ frags []string }

func (s *cannedStream) Next() (string, error) {
	if len(s.frags) == 0 {
		return "", io.EOF
	}
	f := s.frags[0]
	s.frags = s.frags[1:]
	return f, nil
}

func (s *cannedStream) Close() error { return nil }

type cannedProvider struct{ reply string }

func (p cannedProvider) Name() string { return "canned" }

func (p cannedProvider) StreamCompletion(context.Context, *core.CompletionRequest) (core.TextStream, error) {
	return &cannedStream{frags: []string{p.reply}}, nil
}

func chatConfig() config.Config {
	return config.Config{
		LLMProvider:         config.LLMProviderGroq,
		EscalationCountdown: 5 * time.Second,
		InactivityTimeout:   time.Minute,
		WSWriteTimeout:      time.Second,
		WSMaxMessageBytes:   1 << 20,
	}
}

func TestChatHandler_TextTurn(t *testing.T) {
	reg := sessions.NewRegistry()
	srv := httptest.NewServer(ChatHandler{
		Config:   chatConfig(),
		Runtime:  &Runtime{Provider: cannedProvider{reply: "I'm here with you."}},
		Sessions: reg,
	})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text_message","content":"is anyone there?"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg["type"] != "ai_text_response" {
			continue
		}
		if msg["content"] != "I'm here with you." {
			t.Fatalf("content=%v", msg["content"])
		}
		break
	}
	if n := reg.Count(); n != 1 {
		t.Fatalf("registered sessions=%d", n)
	}

	_ = conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if !reg.Wait(ctx) {
		t.Fatalf("session did not unregister")
	}
}

func TestChatHandler_DrainingRejected(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ChatHandler{Config: chatConfig(), Lifecycle: lc, Sessions: sessions.NewRegistry()}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestChatHandler_OriginRejected(t *testing.T) {
	cfg := chatConfig()
	cfg.CORSAllowedOrigins = map[string]struct{}{"https://calyx.example": {}}
	h := ChatHandler{Config: cfg, Sessions: sessions.NewRegistry()}

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	ChatHandler{Sessions: sessions.NewRegistry()}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ws/chat", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}
