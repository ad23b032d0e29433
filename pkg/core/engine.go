package core

import (
	"context"
	"fmt"
	"strings"
)

// Engine routes completions to a registered provider. A request model of
// the form "provider/model" selects the provider explicitly; a bare model
// goes to the default provider.
type Engine struct {
	registry        ProviderRegistry
	defaultProvider string
}

// NewEngine creates an Engine whose bare-model requests go to
// defaultProvider.
func NewEngine(defaultProvider string) *Engine {
	return &Engine{
		registry:        NewProviderRegistry(),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider adds a provider to the engine.
func (e *Engine) RegisterProvider(provider Provider) {
	e.registry.Register(provider)
}

// GetProvider returns a provider by name.
func (e *Engine) GetProvider(name string) (Provider, bool) {
	return e.registry.Get(name)
}

// ProviderNames returns the list of registered provider names.
func (e *Engine) ProviderNames() []string {
	return e.registry.List()
}

// Name reports the default provider, so an Engine is itself a Provider.
func (e *Engine) Name() string {
	return e.defaultProvider
}

// StreamCompletion routes the request to the appropriate provider.
func (e *Engine) StreamCompletion(ctx context.Context, req *CompletionRequest) (TextStream, error) {
	providerName, modelName := e.route(req.Model)
	provider, ok := e.registry.Get(providerName)
	if !ok {
		return nil, CompletionError("route", fmt.Errorf("provider %q not registered", providerName))
	}

	reqCopy := *req
	reqCopy.Model = modelName
	return provider.StreamCompletion(ctx, &reqCopy)
}

func (e *Engine) route(model string) (provider, name string) {
	if p, m, ok := ParseModelString(model); ok {
		if _, registered := e.registry.Get(p); registered {
			return p, m
		}
	}
	return e.defaultProvider, model
}

// ParseModelString splits "provider/model-name". Model names may themselves
// contain slashes.
func ParseModelString(model string) (provider string, modelName string, ok bool) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
