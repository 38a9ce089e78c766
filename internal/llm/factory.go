package llm

import (
	"fmt"
	"time"
)

// Config selects and configures the model providers.
type Config struct {
	// Provider is the text generator: "none" (or empty), "ollama", "openai"
	// or "anthropic". Without one, extraction is heuristic and think
	// answers are extractive.
	Provider string
	Model    string
	BaseURL  string
	APIKey   string

	// EmbeddingProvider is "hash" (default), "ollama", "openai" or "cohere".
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDims     int

	CohereAPIKey string
	Timeout      time.Duration
}

// NewTextGenerator creates the configured TextGenerator. It returns (nil, nil)
// when no provider is configured.
func NewTextGenerator(cfg Config) (TextGenerator, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the configured EmbeddingGenerator.
func NewEmbeddingGenerator(cfg Config) (EmbeddingGenerator, error) {
	switch cfg.EmbeddingProvider {
	case "", "hash":
		return NewHashEmbedder(cfg.EmbeddingDims), nil
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.EmbeddingModel, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case "ollama":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: model, Timeout: cfg.Timeout}), nil
	case "cohere":
		if cfg.CohereAPIKey == "" {
			return nil, fmt.Errorf("cohere embeddings require an API key")
		}
		return NewCohereEmbedder(CohereConfig{APIKey: cfg.CohereAPIKey, Model: cfg.EmbeddingModel}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.EmbeddingProvider)
	}
}

// NewExtractor returns an LLM-backed extractor when gen is set and the
// heuristic extractor otherwise.
func NewExtractor(gen TextGenerator) Extractor {
	if gen == nil {
		return NewHeuristicExtractor()
	}
	return NewLLMExtractor(gen)
}
