package gemini

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the model used when a request does not name one.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

func withStream(f streamFunc) Option {
	return func(p *Provider) {
		p.stream = f
	}
}
