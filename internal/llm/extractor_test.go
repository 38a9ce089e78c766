package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entityNames(x *Extraction) []string {
	names := make([]string, len(x.Entities))
	for i, e := range x.Entities {
		names[i] = e.Name
	}
	return names
}

func TestHeuristicExtractor(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		text string
		want []string
	}{
		{"Alice moved to Paris", []string{"Alice", "Paris"}},
		{"The meeting with Bob Smith, Alice and bob smith.", []string{"Bob Smith", "Alice"}},
		{"Alice's cat visited New York City.", []string{"Alice", "New York City"}},
		{"nothing capitalised here", []string{}},
		{"I think A is fine", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := HeuristicExtractor{}.Extract(ctx, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, entityNames(got))
		})
	}
}

func TestHeuristicExtractorRelations(t *testing.T) {
	got, err := HeuristicExtractor{}.Extract(context.Background(), "Alice met Bob in Paris")
	require.NoError(t, err)
	require.Len(t, got.Entities, 3)
	require.Len(t, got.Relations, 3)
	for _, r := range got.Relations {
		assert.Equal(t, "co_occurs", r.Type)
		assert.Equal(t, heuristicRelationConfidence, r.Confidence)
	}
	assert.Equal(t, "Alice", got.Relations[0].From)
	assert.Equal(t, "Bob", got.Relations[0].To)
}

type stubGenerator struct {
	out string
	err error
}

func (s stubGenerator) Complete(context.Context, string) (string, error) { return s.out, s.err }
func (s stubGenerator) GetModel() string                                 { return "stub" }

func TestLLMExtractor(t *testing.T) {
	ext := NewLLMExtractor(stubGenerator{out: `{"entities":[{"name":"Alice","confidence":0.9}],"relations":[]}`})
	got, err := ext.Extract(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, entityNames(got))

	boom := errors.New("boom")
	_, err = NewLLMExtractor(stubGenerator{err: boom}).Extract(context.Background(), "Alice")
	assert.ErrorIs(t, err, boom)
}

func TestNewExtractor(t *testing.T) {
	assert.IsType(t, &HeuristicExtractor{}, NewExtractor(nil))
	assert.IsType(t, &LLMExtractor{}, NewExtractor(stubGenerator{}))
}
