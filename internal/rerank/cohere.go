package rerank

import (
	"context"
	"fmt"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"github.com/scrypster/memora/internal/llm"
)

// DefaultCohereModel is the rerank model used when none is configured.
const DefaultCohereModel = "rerank-english-v3.0"

// CohereScorer is a PairScorer backed by the Cohere rerank API. Calls run
// through a circuit breaker.
type CohereScorer struct {
	client  *cohereclient.Client
	model   string
	breaker *llm.CircuitBreaker
}

// NewCohereScorer creates a scorer for the given API key and model.
func NewCohereScorer(apiKey, model string) *CohereScorer {
	if model == "" {
		model = DefaultCohereModel
	}
	return &CohereScorer{
		client:  cohereclient.NewClient(cohereclient.WithToken(apiKey)),
		model:   model,
		breaker: llm.NewCircuitBreaker("cohere-rerank"),
	}
}

// ScorePairs implements PairScorer. Documents the API leaves out score 0.
func (c *CohereScorer) ScorePairs(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}
	return llm.Call(ctx, c.breaker, func() ([]float64, error) {
		items := make([]*cohere.RerankRequestDocumentsItem, len(docs))
		for i, d := range docs {
			items[i] = &cohere.RerankRequestDocumentsItem{String: d}
		}
		model := c.model
		topN := len(docs)

		resp, err := c.client.Rerank(ctx, &cohere.RerankRequest{
			Model:     &model,
			Query:     query,
			Documents: items,
			TopN:      &topN,
		})
		if err != nil {
			return nil, fmt.Errorf("cohere rerank: %w", err)
		}

		scores := make([]float64, len(docs))
		for _, r := range resp.Results {
			if r == nil || r.Index < 0 || r.Index >= len(docs) {
				return nil, fmt.Errorf("cohere rerank: result index out of range")
			}
			scores[r.Index] = r.RelevanceScore
		}
		return scores, nil
	})
}

var _ PairScorer = (*CohereScorer)(nil)
