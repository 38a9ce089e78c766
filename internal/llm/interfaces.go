package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// Extractor pulls entities and the relations between them out of a memory's
// content.
type Extractor interface {
	Extract(ctx context.Context, text string) (*Extraction, error)
}

// ExtractedEntity is an entity mention with the extractor's confidence in [0,1].
type ExtractedEntity struct {
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	Confidence float64  `json:"confidence"`
}

// ExtractedRelation links two extracted entities by name.
type ExtractedRelation struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Extraction is the result of one Extract call.
type Extraction struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}
