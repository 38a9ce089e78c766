package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OllamaClient talks to a local Ollama server for completions and embeddings.
// Every call runs through a circuit breaker.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the Ollama API root (default: http://localhost:11434)
	BaseURL string

	// Model is used for completions or embeddings (default: qwen2.5:7b)
	Model string

	// Timeout bounds a single request (default: 30s)
	Timeout time.Duration
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResponse carries one embedding per input; we send one input.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates an Ollama client, applying defaults to zero fields.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &OllamaClient{
		baseURL:        config.BaseURL,
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreaker("ollama"),
		model:          config.Model,
		timeout:        config.Timeout,
	}
}

// Complete sends a non-streaming generate request and returns the text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := Call(ctx, c.circuitBreaker, func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var resp ollamaGenerateResponse
		err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/generate", nil,
			ollamaGenerateRequest{Model: c.model, Prompt: prompt, Format: "json"}, &resp, "ollama")
		return resp.Response, err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return "", fmt.Errorf("ollama circuit breaker open: %w", err)
	}
	return text, err
}

// Embed returns the embedding of text under the configured model.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := Call(ctx, c.circuitBreaker, func() ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var resp ollamaEmbedResponse
		if err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/embed", nil,
			ollamaEmbedRequest{Model: c.model, Input: text}, &resp, "ollama"); err != nil {
			return nil, err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding vector")
		}
		return resp.Embeddings[0], nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
	}
	return vec, err
}

// HealthCheck verifies that Ollama answers on /api/version. It bypasses the
// breaker since it is a probe itself.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := doJSON(ctx, c.client, http.MethodGet, c.baseURL+"/api/version", nil, nil, nil, "ollama"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

var _ TextGenerator = (*OllamaClient)(nil)
var _ EmbeddingGenerator = (*OllamaClient)(nil)
