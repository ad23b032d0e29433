// Package openai implements streamed completions against OpenAI-compatible
// Chat Completions endpoints.
package openai

import (
	"context"
	"net/http"

	"github.com/sanchita-suni/Calyx/pkg/core"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultMaxTokens is the default max tokens if not specified.
	DefaultMaxTokens = 150
)

// Provider implements core.Provider over Chat Completions.
type Provider struct {
	name                string
	apiKey              string
	baseURL             string
	chatCompletionsPath string
	httpClient          *http.Client
	extraHeaders        map[string]string
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		name:                "openai",
		apiKey:              apiKey,
		baseURL:             DefaultBaseURL,
		chatCompletionsPath: "/chat/completions",
		httpClient:          &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// StreamCompletion sends a streaming request and returns the text stream.
func (p *Provider) StreamCompletion(ctx context.Context, req *core.CompletionRequest) (core.TextStream, error) {
	body, err := p.doStreamRequest(ctx, p.buildRequest(req))
	if err != nil {
		return nil, core.CompletionError(p.name+".stream", err)
	}
	return newEventStream(body), nil
}
