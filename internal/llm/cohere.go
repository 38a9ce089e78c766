package llm

import (
	"context"
	"errors"
	"fmt"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// CohereConfig configures the Cohere embedding client.
type CohereConfig struct {
	APIKey string
	Model  string // default: embed-english-v3.0
}

// CohereEmbedder implements EmbeddingGenerator with the Cohere embed API.
type CohereEmbedder struct {
	client         *cohereclient.Client
	model          string
	circuitBreaker *CircuitBreaker
}

// NewCohereEmbedder creates a Cohere embedder.
func NewCohereEmbedder(cfg CohereConfig) *CohereEmbedder {
	if cfg.Model == "" {
		cfg.Model = "embed-english-v3.0"
	}
	return &CohereEmbedder{
		client:         cohereclient.NewClient(cohereclient.WithToken(cfg.APIKey)),
		model:          cfg.Model,
		circuitBreaker: NewCircuitBreaker("cohere-embed"),
	}
}

// Embed embeds text as a search document. Queries and documents share one
// space so the same call serves both.
func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := Call(ctx, e.circuitBreaker, func() ([]float32, error) {
		model := e.model
		inputType := cohere.EmbedInputType("search_document")
		resp, err := e.client.Embed(ctx, &cohere.EmbedRequest{
			Model:     &model,
			Texts:     []string{text},
			InputType: &inputType,
		})
		if err != nil {
			return nil, fmt.Errorf("cohere embed: %w", err)
		}
		if resp.EmbeddingsFloats == nil || len(resp.EmbeddingsFloats.Embeddings) == 0 {
			return nil, fmt.Errorf("cohere returned no float embeddings")
		}
		return toFloat32(resp.EmbeddingsFloats.Embeddings[0]), nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("cohere circuit breaker open: %w", err)
	}
	return vec, err
}

// GetModel returns the configured model name.
func (e *CohereEmbedder) GetModel() string {
	return e.model
}

var _ EmbeddingGenerator = (*CohereEmbedder)(nil)
