// Package config holds the service's configuration: a plain struct and its
// DefaultConfig constructor. cmd/server loads it from an optional JSON file
// and applies flag and environment-variable overrides.
package config

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// Config holds all configuration for the service.
type Config struct {
	// Addr is the HTTP listen address. Falls back to 127.0.0.1:0 if
	// binding fails.
	Addr string `json:"addr" yaml:"addr"`

	// Chat is the LLM provider used for grounding-prompt completions and
	// the enhanced_knowledge answer synthesis.
	Chat LLMConfig `json:"chat" yaml:"chat"`

	// Embedding is the LLM provider used as the sentence-embedding
	// encoder; its model must produce embedworker.Dimension-length
	// vectors.
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// GraphDBPath is the path to the SQLite file backing the bundled
	// graphworker/sqlitegraph reference graph database.
	GraphDBPath string `json:"graph_db_path" yaml:"graph_db_path"`

	// GraphQueueCapacity and RelationsQueueCapacity bound the graph_in
	// and relations_out channels (100 is a reasonable default for both).
	GraphQueueCapacity     int `json:"graph_queue_capacity" yaml:"graph_queue_capacity"`
	RelationsQueueCapacity int `json:"relations_queue_capacity" yaml:"relations_queue_capacity"`

	// TextQueueCapacity/EmbeddingQueueCapacity/IndexQueueCapacity bound
	// channels that would otherwise grow unbounded with large fixed
	// buffers, since Go channels have no unbounded mode.
	TextQueueCapacity      int `json:"text_queue_capacity" yaml:"text_queue_capacity"`
	EmbeddingQueueCapacity int `json:"embedding_queue_capacity" yaml:"embedding_queue_capacity"`
	IndexQueueCapacity     int `json:"index_queue_capacity" yaml:"index_queue_capacity"`
}

// DefaultConfig returns a Config with sensible defaults for local use.
func DefaultConfig() Config {
	return Config{
		Addr: "127.0.0.1:3000",
		Chat: LLMConfig{
			Provider: "custom",
			Model:    "gpt-3.5-turbo",
		},
		Embedding: LLMConfig{
			Provider: "custom",
			Model:    "all-minilm",
		},
		GraphDBPath:            "graphrag.db",
		GraphQueueCapacity:     100,
		RelationsQueueCapacity: 100,
		TextQueueCapacity:      4096,
		EmbeddingQueueCapacity: 4096,
		IndexQueueCapacity:     4096,
	}
}
