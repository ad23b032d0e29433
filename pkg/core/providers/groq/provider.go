// Package groq implements the Groq API provider.
// Groq uses an OpenAI-compatible API, so this provider wraps the OpenAI provider
// with a different base URL.
package groq

import (
	"context"
	"net/http"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/providers/openai"
)

const (
	// DefaultBaseURL is the Groq API endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the low-latency model used for live conversation.
	DefaultModel = "llama-3.1-8b-instant"
)

// Provider implements the Groq API using the OpenAI-compatible interface.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	inner      *openai.Provider
}

// New creates a new Groq provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.inner = openai.New(apiKey,
		openai.WithName("groq"),
		openai.WithBaseURL(p.baseURL),
		openai.WithHTTPClient(p.httpClient),
	)
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "groq"
}

// StreamCompletion streams a completion, filling in the default model.
func (p *Provider) StreamCompletion(ctx context.Context, req *core.CompletionRequest) (core.TextStream, error) {
	if req.Model == "" {
		reqCopy := *req
		reqCopy.Model = p.model
		req = &reqCopy
	}
	return p.inner.StreamCompletion(ctx, req)
}
