package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// DeepgramProvider implements Provider over Deepgram's live WebSocket API.
type DeepgramProvider struct {
	apiKey  string
	baseURL string
	dialer  *websocket.Dialer
}

// DeepgramOption customizes a DeepgramProvider.
type DeepgramOption func(*DeepgramProvider)

// WithListenURL overrides the WebSocket endpoint.
func WithListenURL(u string) DeepgramOption {
	return func(p *DeepgramProvider) {
		if strings.TrimSpace(u) != "" {
			p.baseURL = u
		}
	}
}

// NewDeepgram creates a Deepgram STT provider.
func NewDeepgram(apiKey string, opts ...DeepgramOption) *DeepgramProvider {
	p := &DeepgramProvider{
		apiKey:  apiKey,
		baseURL: deepgramListenURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (d *DeepgramProvider) Name() string {
	return "deepgram"
}

func (d *DeepgramProvider) listenURL(opts TranscribeOptions) (string, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse websocket URL: %w", err)
	}
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Encoding == "" {
		opts.Encoding = "linear16"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}

	q := u.Query()
	q.Set("model", opts.Model)
	q.Set("language", opts.Language)
	q.Set("encoding", opts.Encoding)
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	if opts.Endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(opts.Endpointing.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// StreamingSTT is a live transcription session.
type StreamingSTT struct {
	conn        *websocket.Conn
	transcripts chan TranscriptDelta
	done        chan struct{}
	closed      atomic.Bool
	writeMu     sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc

	errMu sync.Mutex
	err   error
}

// NewStreamingSTT dials Deepgram and starts the read loop.
func (d *DeepgramProvider) NewStreamingSTT(ctx context.Context, opts TranscribeOptions) (*StreamingSTT, error) {
	if strings.TrimSpace(d.apiKey) == "" {
		return nil, fmt.Errorf("deepgram api key is not configured")
	}
	target, err := d.listenURL(opts)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &StreamingSTT{
		conn:        conn,
		transcripts: make(chan TranscriptDelta, 100),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r deepgramResult) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
}

func (s *StreamingSTT) readLoop() {
	defer func() {
		close(s.transcripts)
		close(s.done)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setErr(err)
			}
			return
		}

		var msg deepgramResult
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "Results" {
			continue
		}
		text := msg.transcript()
		if text == "" {
			continue
		}
		select {
		case s.transcripts <- TranscriptDelta{Text: text, IsFinal: msg.IsFinal}:
		case <-s.ctx.Done():
			return
		}
	}
}

// SendAudio forwards one PCM frame.
func (s *StreamingSTT) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Transcripts returns the channel of transcript deltas. It is closed when
// the session ends.
func (s *StreamingSTT) Transcripts() <-chan TranscriptDelta {
	return s.transcripts
}

// Done is closed when the read loop exits.
func (s *StreamingSTT) Done() <-chan struct{} {
	return s.done
}

// Err reports an abnormal disconnect.
func (s *StreamingSTT) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *StreamingSTT) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// Close asks Deepgram to finish and tears the connection down.
func (s *StreamingSTT) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
