// Package engine is the agent-memory core. It ingests memory units
// asynchronously through a per-agent job pipeline and answers queries by
// running four retrieval strategies concurrently, spreading activation over
// the memory graph, fusing and reranking the candidates, and optionally
// synthesizing an answer from them.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/scrypster/memora/pkg/types"
)

// Config holds configuration for the memory engine.
type Config struct {
	// NumWorkers is the number of indexing worker goroutines (default: 4).
	NumWorkers int

	// MaxBatchSize caps the items of one PutBatch call (default: 1000).
	MaxBatchSize int

	// MaxRetries is how many times a failed indexing job is retried before
	// it is dead-lettered (default: 3).
	MaxRetries int

	// RetryBaseDelay scales the quadratic retry backoff attempt²×base (default: 100ms).
	RetryBaseDelay time.Duration

	// DependencyTimeout bounds each embedding, extraction or linking call (default: 30s).
	DependencyTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for workers to drain (default: 30s).
	ShutdownTimeout time.Duration

	// SearchTimeout is the shared deadline of the retrieval fan-out (default: 10s).
	SearchTimeout time.Duration

	// ThinkTimeout bounds answer synthesis (default: 60s).
	ThinkTimeout time.Duration

	// MaxCandidates caps each strategy's candidate list (default: 100).
	MaxCandidates int

	// GraphSeedCount is how many top semantic and lexical candidates seed
	// spreading activation (default: 5 each).
	GraphSeedCount int

	// TemporalHalfLife is the age at which the temporal score halves (default: 30 days).
	TemporalHalfLife time.Duration

	// ActivationDecay multiplies every pulse per hop, in (0,1) (default: 0.5).
	ActivationDecay float64

	// ActivationThreshold drops pulses below it (default: 0.01).
	ActivationThreshold float64

	// MaxHops is the deepest level that is still visited (default: 3).
	MaxHops int

	// Weights combine normalized strategy scores.
	Weights FusionWeights

	// SemanticLinkTopK and SemanticLinkThreshold control the semantic links
	// added between similar units at indexing time (defaults: 3, 0.75).
	SemanticLinkTopK      int
	SemanticLinkThreshold float64

	// EmbeddingCacheSize is the number of query embeddings kept (default: 10000).
	EmbeddingCacheSize int64

	// DefaultBudget and DefaultMaxTokens apply when a request leaves them at zero.
	DefaultBudget    int
	DefaultMaxTokens int

	// ThinkBudget is the default activation budget of Think (default: 50).
	ThinkBudget int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:            4,
		MaxBatchSize:          1000,
		MaxRetries:            3,
		RetryBaseDelay:        100 * time.Millisecond,
		DependencyTimeout:     30 * time.Second,
		ShutdownTimeout:       30 * time.Second,
		SearchTimeout:         10 * time.Second,
		ThinkTimeout:          60 * time.Second,
		MaxCandidates:         100,
		GraphSeedCount:        5,
		TemporalHalfLife:      30 * 24 * time.Hour,
		ActivationDecay:       0.5,
		ActivationThreshold:   0.01,
		MaxHops:               3,
		Weights:               DefaultFusionWeights(),
		SemanticLinkTopK:      3,
		SemanticLinkThreshold: 0.75,
		EmbeddingCacheSize:    10000,
		DefaultBudget:         100,
		DefaultMaxTokens:      4096,
		ThinkBudget:           50,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers must be >= 1, got %d", c.NumWorkers)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("MaxBatchSize must be >= 1, got %d", c.MaxBatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RetryBaseDelay must be >= 0, got %v", c.RetryBaseDelay)
	}
	for name, d := range map[string]time.Duration{
		"DependencyTimeout": c.DependencyTimeout,
		"SearchTimeout":     c.SearchTimeout,
		"ThinkTimeout":      c.ThinkTimeout,
		"TemporalHalfLife":  c.TemporalHalfLife,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0, got %v", name, d)
		}
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ShutdownTimeout must be >= 0, got %v", c.ShutdownTimeout)
	}
	if c.MaxCandidates < 1 {
		return fmt.Errorf("MaxCandidates must be >= 1, got %d", c.MaxCandidates)
	}
	if c.GraphSeedCount < 1 {
		return fmt.Errorf("GraphSeedCount must be >= 1, got %d", c.GraphSeedCount)
	}
	if !(c.ActivationDecay > 0 && c.ActivationDecay < 1) {
		return fmt.Errorf("ActivationDecay must be in (0,1), got %v", c.ActivationDecay)
	}
	if !(c.ActivationThreshold > 0) || math.IsInf(c.ActivationThreshold, 0) {
		return fmt.Errorf("ActivationThreshold must be > 0, got %v", c.ActivationThreshold)
	}
	if c.MaxHops < 0 {
		return fmt.Errorf("MaxHops must be >= 0, got %d", c.MaxHops)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.SemanticLinkTopK < 0 {
		return fmt.Errorf("SemanticLinkTopK must be >= 0, got %d", c.SemanticLinkTopK)
	}
	if c.SemanticLinkThreshold < 0 || c.SemanticLinkThreshold > 1 {
		return fmt.Errorf("SemanticLinkThreshold must be in [0,1], got %v", c.SemanticLinkThreshold)
	}
	if c.EmbeddingCacheSize < 1 {
		return fmt.Errorf("EmbeddingCacheSize must be >= 1, got %d", c.EmbeddingCacheSize)
	}
	if c.DefaultBudget < 1 || c.DefaultMaxTokens < 1 || c.ThinkBudget < 1 {
		return fmt.Errorf("DefaultBudget, DefaultMaxTokens and ThinkBudget must be >= 1")
	}
	return nil
}

// activationBounds derives traversal bounds for a request budget.
func (c *Config) activationBounds(budget int) ActivationBounds {
	return ActivationBounds{
		Budget:    budget,
		Decay:     c.ActivationDecay,
		Threshold: c.ActivationThreshold,
		MaxHops:   c.MaxHops,
	}
}

// PutBatchResult is returned by PutBatch.
type PutBatchResult struct {
	AcceptedCount int    `json:"accepted_count"`
	DocumentID    string `json:"document_id"`
}

// SearchRequest describes one search call.
type SearchRequest struct {
	AgentID   string
	Query     string
	Budget    int              // activation node visits; 0 selects the default
	MaxTokens int              // result token budget; 0 selects the default
	FactTypes []types.FactType // empty means all
	Reranker  string           // "heuristic" (default) or "cross-encoder"
	Trace     bool
}

// SearchResponse is the result of Search.
type SearchResponse struct {
	Results []types.SearchResult `json:"results"`
	Trace   *SearchTrace         `json:"trace,omitempty"`
}

// ThinkResult is the synthesized answer of Think.
type ThinkResult struct {
	Text        string         `json:"text"`
	BasedOn     []types.NodeID `json:"based_on"`
	NewOpinions []string       `json:"new_opinions"`
	Truncated   bool           `json:"truncated"`

	// Extractive is set when the text quotes the top facts instead of
	// a synthesized answer.
	Extractive bool `json:"extractive"`
}

// WaitOptions configures WaitForBacklog. Zero fields take defaults.
type WaitOptions struct {
	PollInterval time.Duration // default: 1s
	Timeout      time.Duration // default: 300s
}
