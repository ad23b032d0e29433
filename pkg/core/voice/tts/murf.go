package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	murfStreamURL   = "https://api.murf.ai/v1/speech/stream"
	murfGenerateURL = "https://api.murf.ai/v1/speech/generate"
)

// MurfProvider implements Provider over Murf's HTTP API. The streaming
// endpoint serves browser audio; the generate endpoint serves telephone WAV.
type MurfProvider struct {
	apiKey      string
	httpClient  *http.Client
	streamURL   string
	generateURL string
}

// MurfOption customizes a MurfProvider.
type MurfOption func(*MurfProvider)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) MurfOption {
	return func(p *MurfProvider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithEndpoints overrides both Murf endpoints.
func WithEndpoints(streamURL, generateURL string) MurfOption {
	return func(p *MurfProvider) {
		if streamURL != "" {
			p.streamURL = streamURL
		}
		if generateURL != "" {
			p.generateURL = generateURL
		}
	}
}

// NewMurf creates a Murf provider.
func NewMurf(apiKey string, opts ...MurfOption) *MurfProvider {
	p := &MurfProvider{
		apiKey:      strings.TrimSpace(apiKey),
		httpClient:  &http.Client{Timeout: 12 * time.Second},
		streamURL:   murfStreamURL,
		generateURL: murfGenerateURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (m *MurfProvider) Name() string {
	return "murf"
}

type murfStreamRequest struct {
	Text       string `json:"text"`
	VoiceID    string `json:"voiceId"`
	Style      string `json:"style,omitempty"`
	Rate       int    `json:"rate"`
	Pitch      int    `json:"pitch"`
	Model      string `json:"model"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
}

type murfGenerateRequest struct {
	VoiceID     string `json:"voiceId"`
	Style       string `json:"style,omitempty"`
	Text        string `json:"text"`
	Rate        int    `json:"rate"`
	Pitch       int    `json:"pitch"`
	SampleRate  int    `json:"sampleRate"`
	Format      string `json:"format"`
	ChannelType string `json:"channelType"`
}

type murfGenerateResponse struct {
	AudioFile string `json:"audioFile"`
}

// SynthesizeStream posts to the streaming endpoint and forwards the body as
// it arrives.
func (m *MurfProvider) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if m.apiKey == "" {
		return nil, errors.New("murf api key is not configured")
	}
	if opts.Model == "" {
		opts.Model = "FALCON"
	}
	if opts.Format == "" {
		opts.Format = "MP3"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 24000
	}
	body := murfStreamRequest{
		Text:       text,
		VoiceID:    opts.Voice,
		Style:      opts.Style,
		Rate:       opts.Rate,
		Pitch:      opts.Pitch,
		Model:      opts.Model,
		Format:     opts.Format,
		SampleRate: opts.SampleRate,
	}
	resp, err := m.post(ctx, m.streamURL, body)
	if err != nil {
		return nil, err
	}

	stream := NewSynthesisStream()
	go func() {
		defer stream.FinishSending()
		defer resp.Body.Close()
		buf := make([]byte, 16*1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !stream.Send(chunk) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				stream.SetError(fmt.Errorf("read murf stream: %w", err))
				return
			}
		}
	}()
	return stream, nil
}

// Synthesize renders a complete file through the generate endpoint and
// downloads it.
func (m *MurfProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if m.apiKey == "" {
		return nil, errors.New("murf api key is not configured")
	}
	if opts.Format == "" {
		opts.Format = "WAV"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}
	body := murfGenerateRequest{
		VoiceID:     opts.Voice,
		Style:       opts.Style,
		Text:        text,
		Rate:        opts.Rate,
		Pitch:       opts.Pitch,
		SampleRate:  opts.SampleRate,
		Format:      opts.Format,
		ChannelType: "MONO",
	}
	resp, err := m.post(ctx, m.generateURL, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gen murfGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("parse murf response: %w", err)
	}
	if gen.AudioFile == "" {
		return nil, errors.New("murf response has no audio file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gen.AudioFile, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	fileResp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download murf audio: %w", err)
	}
	defer fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(fileResp.Body, 1024))
		return nil, &StatusError{Status: fileResp.StatusCode, Body: string(b)}
	}
	audio, err := io.ReadAll(fileResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read murf audio: %w", err)
	}
	return &Synthesis{Audio: audio, Format: strings.ToLower(opts.Format)}, nil
}

func (m *MurfProvider) post(ctx context.Context, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("api-key", m.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}
