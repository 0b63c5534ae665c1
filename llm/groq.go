package llm

import "context"

// groqProvider implements Provider for Groq's inference API. Groq uses the
// OpenAI-compatible API format and provides extremely fast inference for
// open-source chat models (Llama, Mixtral, Gemma, etc.) — a reasonable
// choice for the dispatcher's chat role, which re-prompts the LLM on every
// /enhanced_knowledge call and benefits from low latency.
//
// API key: set via Config.APIKey (cmd/server fills it from OPENAI_API_KEY
// when that is set).
type groqProvider struct {
	base openAICompatClient
}

// NewGroq creates a provider for Groq.
func NewGroq(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	return &groqProvider{base: newOpenAICompatClient(cfg)}
}

func (p *groqProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *groqProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
