package llm

import "context"

// xaiProvider implements Provider for xAI (Grok), speaking the same
// OpenAI-compatible wire format as the rest of this package. In practice
// this provider is wired for the dispatcher's chat role only: Grok does not
// publish an embedding model sized to embedworker.Dimension, so
// config.DefaultConfig leaves the embedding role on a different provider.
type xaiProvider struct {
	base openAICompatClient
}

// NewXAI creates a provider for xAI (Grok).
func NewXAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.x.ai"
	}
	return &xaiProvider{base: newOpenAICompatClient(cfg)}
}

func (p *xaiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

// Embed is implemented for interface completeness; callers should route
// embedding traffic to a provider config.go actually assigns the encoder
// role to.
func (p *xaiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
