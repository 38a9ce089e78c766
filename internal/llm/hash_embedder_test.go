package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/storage"
)

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(0)
	assert.Equal(t, "hash-256", h.GetModel())

	a, err := h.Embed(ctx, "Alice moved to Paris")
	require.NoError(t, err)
	require.Len(t, a, DefaultHashDimensions)

	again, err := h.Embed(ctx, "Alice moved to Paris")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.InDelta(t, 1.0, storage.CosineSimilarity(a, again), 1e-6)

	q, err := h.Embed(ctx, "Where does Alice live?")
	require.NoError(t, err)
	related := storage.CosineSimilarity(a, q)
	assert.Greater(t, related, 0.0)

	other, err := h.Embed(ctx, "quarterly revenue forecast")
	require.NoError(t, err)
	assert.Greater(t, related, storage.CosineSimilarity(other, q))

	empty, err := h.Embed(ctx, "the and of")
	require.NoError(t, err)
	assert.True(t, storage.IsZeroVector(empty))
}
