package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepgram_ListenURL(t *testing.T) {
	p := NewDeepgram("key")
	u, err := p.listenURL(PhoneOptions())
	require.NoError(t, err)
	for _, want := range []string{
		"model=nova-2-phonecall",
		"sample_rate=8000",
		"encoding=linear16",
		"endpointing=200",
		"interim_results=false",
		"channels=1",
	} {
		assert.Contains(t, u, want)
	}
	assert.True(t, strings.HasPrefix(u, deepgramListenURL))
}

func TestDeepgram_NameAndMissingKey(t *testing.T) {
	p := NewDeepgram("")
	assert.Equal(t, "deepgram", p.Name())
	_, err := p.NewStreamingSTT(context.Background(), BrowserOptions())
	assert.Error(t, err)
}

func TestDeepgram_StreamsFinalTranscripts(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAudio := make(chan []byte, 1)
	gotAuth := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		gotAudio <- frame

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  "}]}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"someone is following me"}]}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	p := NewDeepgram("secret", WithListenURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	s, err := p.NewStreamingSTT(context.Background(), BrowserOptions())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "Token secret", <-gotAuth)
	require.NoError(t, s.SendAudio([]byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, <-gotAudio)

	select {
	case d := <-s.Transcripts():
		assert.Equal(t, "someone is following me", d.Text)
		assert.True(t, d.IsFinal)
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript")
	}

	require.NoError(t, s.Close())
	<-s.Done()
	assert.Error(t, s.SendAudio([]byte{0}))
}
