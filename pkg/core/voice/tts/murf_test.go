package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMurf_SynthesizeStream(t *testing.T) {
	var got murfStreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-mp3-bytes"))
	}))
	defer srv.Close()

	p := NewMurf("k", WithEndpoints(srv.URL, ""))
	s, err := p.SynthesizeStream(context.Background(), "Stay calm.", SynthesizeOptions{Voice: "en-US-natalie", Style: "Meditative", Rate: -10})
	require.NoError(t, err)
	audio, err := s.Collect()
	require.NoError(t, err)

	assert.Equal(t, "ID3-mp3-bytes", string(audio))
	assert.Equal(t, "FALCON", got.Model)
	assert.Equal(t, "MP3", got.Format)
	assert.Equal(t, 24000, got.SampleRate)
	assert.Equal(t, -10, got.Rate)
	assert.Equal(t, "Meditative", got.Style)
}

func TestMurf_SynthesizeDownloadsAudioFile(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	var got murfGenerateRequest
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"audioFile": srvURL + "/file.wav"})
	})
	mux.HandleFunc("/file.wav", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFF....WAVE"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	p := NewMurf("k", WithEndpoints("", srv.URL+"/generate"))
	out, err := p.Synthesize(context.Background(), "Hello there.", PhoneOptions())
	require.NoError(t, err)

	assert.Equal(t, "RIFF....WAVE", string(out.Audio))
	assert.Equal(t, "wav", out.Format)
	assert.Equal(t, 8000, got.SampleRate)
	assert.Equal(t, "MONO", got.ChannelType)
	assert.Equal(t, "en-US-natalie", got.VoiceID)
}

func TestMurf_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewMurf("k", WithEndpoints(srv.URL, srv.URL))
	_, err := p.SynthesizeStream(context.Background(), "x", SynthesizeOptions{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode())
	assert.Equal(t, "quota exceeded", se.Body)
}

func TestMurf_MissingKey(t *testing.T) {
	p := NewMurf("")
	assert.Equal(t, "murf", p.Name())
	_, err := p.Synthesize(context.Background(), "x", PhoneOptions())
	assert.Error(t, err)
}
