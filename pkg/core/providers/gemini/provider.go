// Package gemini implements streamed completions on the Google Gemini API
// through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/sanchita-suni/Calyx/pkg/core"
)

const (
	// DefaultModel is used when a request names none.
	DefaultModel = "gemini-2.0-flash"

	// DefaultMaxTokens is the default max tokens if not specified.
	DefaultMaxTokens = 150
)

type streamFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

// Provider implements core.Provider on Gemini.
type Provider struct {
	client *genai.Client
	model  string
	stream streamFunc
}

// New creates a Gemini provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	p := &Provider{model: DefaultModel}
	for _, opt := range opts {
		opt(p)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	p.client = client
	if p.stream == nil {
		p.stream = client.Models.GenerateContentStream
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// StreamCompletion starts a streamed generation.
func (p *Provider) StreamCompletion(ctx context.Context, req *core.CompletionRequest) (core.TextStream, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	contents := buildContents(req.Messages)
	if len(contents) == 0 {
		return nil, core.CompletionError("gemini.stream", errors.New("no messages"))
	}

	ctx, cancel := context.WithCancel(ctx)
	next, stop := iter.Pull2(p.stream(ctx, model, contents, buildConfig(req)))
	return &textStream{next: next, stop: stop, cancel: cancel}, nil
}

func buildContents(msgs []core.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == core.ChatAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func buildConfig(req *core.CompletionRequest) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

// textStream adapts the SDK's push iterator to core.TextStream.
type textStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc
	done   bool
}

func (s *textStream) Next() (string, error) {
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			s.done = true
			return "", core.CompletionError("gemini.stream", err)
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *textStream) Close() error {
	s.cancel()
	s.stop()
	return nil
}
