package core

import (
	"context"
	"sort"
	"sync"
)

// ChatRole is the author of a completion message.
type ChatRole string

const (
	ChatSystem    ChatRole = "system"
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of completion input.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// CompletionRequest is a streamed chat completion.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Provider is the interface that all LLM providers must implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "groq", "gemini").
	Name() string

	// StreamCompletion starts a streamed completion.
	StreamCompletion(ctx context.Context, req *CompletionRequest) (TextStream, error)
}

// TextStream is an iterator over completion text fragments.
type TextStream interface {
	// Next returns the next fragment. Returns "", io.EOF when done.
	Next() (string, error)

	// Close releases resources.
	Close() error
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(provider Provider)

	// Get returns a provider by name.
	Get(name string) (Provider, bool)

	// List returns all registered provider names, sorted.
	List() []string
}

type defaultRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry() ProviderRegistry {
	return &defaultRegistry{
		providers: make(map[string]Provider),
	}
}

func (r *defaultRegistry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

func (r *defaultRegistry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *defaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
