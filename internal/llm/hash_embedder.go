package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/scrypster/memora/internal/textutil"
)

// DefaultHashDimensions is the vector size of HashEmbedder.
const DefaultHashDimensions = 256

// HashEmbedder is a deterministic, dependency-free embedder. It hashes terms
// and their character trigrams into a fixed-size vector and L2-normalises it,
// so texts that share words or word stems have positive cosine similarity.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder. dims <= 0 selects DefaultHashDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed never fails for non-empty input. Text with no terms embeds to the
// zero vector, which vector search ignores.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, h.dims)
	for _, term := range textutil.Terms(text) {
		vec[h.bucket("w:"+term)] += 1.0
		padded := "^" + term + "$"
		for i := 0; i+3 <= len(padded); i++ {
			vec[h.bucket("g:"+padded[i:i+3])] += 0.5
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dims)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *HashEmbedder) bucket(feature string) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(feature))
	return int(f.Sum32() % uint32(h.dims))
}

// GetModel identifies the embedding space; vectors from different
// dimensions are not comparable.
func (h *HashEmbedder) GetModel() string {
	return fmt.Sprintf("hash-%d", h.dims)
}

var _ EmbeddingGenerator = (*HashEmbedder)(nil)
