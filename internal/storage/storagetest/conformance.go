// Package storagetest holds a behavioural test suite that every
// storage.MemoryStore implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/pkg/types"
)

// Factory returns a fresh, empty store. It should register cleanup with t.
type Factory func(t *testing.T) storage.MemoryStore

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ReplaceDocumentIsIdempotent", func(t *testing.T) { testReplaceDocument(t, newStore(t)) })
	t.Run("AgentIsolation", func(t *testing.T) { testAgentIsolation(t, newStore(t)) })
	t.Run("EntitiesAndLinks", func(t *testing.T) { testEntitiesAndLinks(t, newStore(t)) })
	t.Run("LexicalSearch", func(t *testing.T) { testLexicalSearch(t, newStore(t)) })
	t.Run("VectorSearch", func(t *testing.T) { testVectorSearch(t, newStore(t)) })
	t.Run("RecentUnits", func(t *testing.T) { testRecentUnits(t, newStore(t)) })
	t.Run("DeleteAgent", func(t *testing.T) { testDeleteAgent(t, newStore(t)) })
	t.Run("DeleteDocument", func(t *testing.T) { testDeleteDocument(t, newStore(t)) })
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC)
}

func unit(content string, d int) *types.MemoryUnit {
	return &types.MemoryUnit{Content: content, EventDate: day(d)}
}

func put(t *testing.T, s storage.MemoryStore, agentID, docID string, units ...*types.MemoryUnit) []types.NodeID {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnsureAgent(ctx, agentID))
	ids, err := s.ReplaceDocument(ctx, agentID, docID, units)
	require.NoError(t, err)
	require.Len(t, ids, len(units))
	return ids
}

func testReplaceDocument(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()

	first := put(t, s, "a1", "doc", unit("Alice moved to Paris", 1), unit("Alice likes tea", 2))
	for i := 0; i < 3; i++ {
		u := unit("Alice moved to Berlin", 3)
		u.Metadata = map[string]string{"round": "latest"}
		put(t, s, "a1", "doc", u, unit("Alice likes coffee", 4))
	}

	doc, err := s.GetDocument(ctx, "a1", "doc")
	require.NoError(t, err)
	assert.Len(t, doc.UnitIDs, 2)
	for _, id := range first {
		assert.NotContains(t, doc.UnitIDs, id, "replaced units must not survive")
	}

	units, err := s.GetUnits(ctx, "a1", doc.UnitIDs)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Alice moved to Berlin", units[0].Content)
	assert.Equal(t, map[string]string{"round": "latest"}, units[0].Metadata)
	assert.Equal(t, types.UnitPending, units[0].Status)
	assert.Equal(t, types.FactWorld, units[0].FactType)
	assert.True(t, units[0].EventDate.Equal(day(3)))

	counts, err := s.Counts(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.MemoryUnits)
	assert.Equal(t, 1, counts.Documents)

	_, err = s.GetUnit(ctx, "a1", first[0])
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func testAgentIsolation(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()

	idsA := put(t, s, "agent-a", "doc", unit("Alice moved to Paris", 1))
	idsB := put(t, s, "agent-b", "doc", unit("Bob moved to Paris", 1))

	_, err := s.GetUnit(ctx, "agent-a", idsB[0])
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	res, err := s.LexicalSearch(ctx, "agent-a", "Paris", storage.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, idsA[0], res[0].Unit.ID)

	err = s.AddLinks(ctx, "agent-a", []types.Link{{SourceID: idsA[0], TargetID: idsB[0], Type: types.LinkSemantic, Weight: 1}})
	assert.True(t, errors.Is(err, storage.ErrInvalidInput), "cross-agent link must be rejected, got %v", err)

	got, err := s.GetUnits(ctx, "agent-b", []types.NodeID{idsA[0], idsB[0]})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent-b", got[0].AgentID)
}

func testEntitiesAndLinks(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	ids := put(t, s, "a1", "doc", unit("Alice moved to Paris", 1))

	alice, err := s.UpsertEntity(ctx, "a1", "Alice", []string{"Ally"})
	require.NoError(t, err)
	again, err := s.UpsertEntity(ctx, "a1", "ALICE", []string{"A."})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, again.ID)
	assert.Equal(t, "Alice", again.CanonicalName)
	assert.ElementsMatch(t, []string{"Ally", "A."}, again.Aliases)

	paris, err := s.UpsertEntity(ctx, "a1", "Paris", nil)
	require.NoError(t, err)

	require.NoError(t, s.AddLinks(ctx, "a1", []types.Link{
		{SourceID: ids[0], TargetID: paris.ID, Type: types.LinkMentions, Weight: 0.9},
		{SourceID: ids[0], TargetID: alice.ID, Type: types.LinkMentions, Weight: 0.4},
		{SourceID: ids[0], TargetID: alice.ID, Type: types.LinkMentions, Weight: 0.8},
		{SourceID: ids[0], TargetID: alice.ID, Type: types.LinkCoOccurs, Weight: 7},
	}))

	links, err := s.Neighbors(ctx, "a1", ids[0])
	require.NoError(t, err)
	require.Len(t, links, 3)

	// Sorted by target then type; duplicate (target, type) keeps the max weight.
	first, second := alice.ID, paris.ID
	if paris.ID < alice.ID {
		first, second = paris.ID, alice.ID
	}
	assert.Equal(t, first, links[0].TargetID)
	assert.Equal(t, second, links[2].TargetID)
	for _, l := range links {
		assert.GreaterOrEqual(t, l.Weight, 0.0)
		assert.LessOrEqual(t, l.Weight, 1.0)
		if l.TargetID == alice.ID && l.Type == types.LinkMentions {
			assert.InDelta(t, 0.8, l.Weight, 1e-9)
		}
	}

	counts, err := s.Counts(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Entities)
	assert.Equal(t, 3, counts.Links)

	// Replacing the document drops links incident to the old unit.
	put(t, s, "a1", "doc", unit("Alice moved to Rome", 2))
	counts, err = s.Counts(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Links)
	assert.Equal(t, 2, counts.Entities, "entities outlive the units that mentioned them")
}

func testLexicalSearch(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	ids := put(t, s, "a1", "doc",
		unit("Alice moved to Paris", 1),
		unit("Paris is the capital of France and Paris is large", 2),
		unit("Bob likes tea", 3))

	res, err := s.LexicalSearch(ctx, "a1", "Paris?", storage.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Greater(t, r.Score, 0.0)
		assert.NotEqual(t, ids[2], r.Unit.ID)
	}
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

	res, err = s.LexicalSearch(ctx, "a1", "what is it?", storage.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res, "stop-word-only queries match nothing")

	opinion := unit("Paris is overrated", 4)
	opinion.FactType = types.FactOpinion
	put(t, s, "a1", "opinions", opinion)
	res, err = s.LexicalSearch(ctx, "a1", "Paris", storage.SearchOptions{FactTypes: []types.FactType{types.FactOpinion}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Paris is overrated", res[0].Unit.Content)
}

func testVectorSearch(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	ids := put(t, s, "a1", "doc",
		unit("north", 1),
		unit("north-east", 2),
		unit("no embedding", 3))

	require.NoError(t, s.SetUnitEmbedding(ctx, "a1", ids[0], []float32{1, 0, 0}))
	require.NoError(t, s.SetUnitEmbedding(ctx, "a1", ids[1], []float32{1, 1, 0}))

	res, err := s.VectorSearch(ctx, "a1", []float32{1, 0, 0}, storage.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, ids[0], res[0].Unit.ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
	assert.InDelta(t, 0.7071, res[1].Score, 1e-3)

	res, err = s.VectorSearch(ctx, "a1", []float32{0, 0, 0}, storage.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	// Replaced units disappear from vector results.
	put(t, s, "a1", "doc", unit("fresh", 4))
	res, err = s.VectorSearch(ctx, "a1", []float32{1, 0, 0}, storage.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testRecentUnits(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	put(t, s, "a1", "doc", unit("old", 1), unit("newest", 9), unit("middle", 5))

	units, err := s.RecentUnits(ctx, "a1", storage.SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "newest", units[0].Content)
	assert.Equal(t, "middle", units[1].Content)
}

func testDeleteAgent(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	ids := put(t, s, "a1", "doc", unit("Alice moved to Paris", 1))
	put(t, s, "a2", "doc", unit("Bob moved to Rome", 1))
	e, err := s.UpsertEntity(ctx, "a1", "Paris", nil)
	require.NoError(t, err)
	require.NoError(t, s.AddLinks(ctx, "a1", []types.Link{{SourceID: ids[0], TargetID: e.ID, Type: types.LinkMentions, Weight: 1}}))

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, agents)

	require.NoError(t, s.DeleteAgent(ctx, "a1"))
	exists, err := s.AgentExists(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, exists)

	counts, err := s.Counts(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, storage.AgentCounts{}, *counts)

	res, err := s.LexicalSearch(ctx, "a1", "Paris", storage.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	err = s.DeleteAgent(ctx, "a1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	counts, err = s.Counts(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.MemoryUnits, "other agents are untouched")
}

func testDeleteDocument(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	put(t, s, "a1", "keep", unit("kept", 1))
	put(t, s, "a1", "drop", unit("dropped", 1))

	require.NoError(t, s.DeleteDocument(ctx, "a1", "drop"))
	_, err := s.GetDocument(ctx, "a1", "drop")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	err = s.DeleteDocument(ctx, "a1", "drop")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	counts, err := s.Counts(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.MemoryUnits)
	assert.Equal(t, 1, counts.Documents)
}
