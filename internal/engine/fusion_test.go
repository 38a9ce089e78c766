package engine

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/pkg/types"
)

var fusionEpoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func unit(id types.NodeID, content string, daysAgo int) types.MemoryUnit {
	return types.MemoryUnit{
		ID:        id,
		AgentID:   "agent",
		Content:   content,
		FactType:  types.FactWorld,
		EventDate: fusionEpoch.AddDate(0, 0, -daysAgo),
	}
}

func cand(u types.MemoryUnit, score float64) candidate {
	return candidate{unit: u, score: score}
}

func TestFuse_WeightedNormalizedSum(t *testing.T) {
	a, b, c := unit(1, "a", 0), unit(2, "b", 0), unit(3, "c", 0)
	lists := map[types.Strategy][]candidate{
		types.StrategySemantic: {cand(a, 0.9), cand(b, 0.5), cand(c, 0.1)},
		types.StrategyLexical:  {cand(b, 4.0), cand(c, 2.0)},
	}

	got := fuse(lists, DefaultFusionWeights(), false)
	require.Len(t, got, 3)

	scores := map[types.NodeID]float64{}
	for _, r := range got {
		scores[r.ID] = r.Score
	}
	assert.InDelta(t, 0.30*1.0, scores[1], 1e-9)
	assert.InDelta(t, 0.30*0.5+0.25*1.0, scores[2], 1e-9)
	assert.InDelta(t, 0.30*0.0+0.25*0.0, scores[3], 1e-9)

	assert.Equal(t, types.NodeID(2), got[0].ID)
	assert.Equal(t, types.NodeID(1), got[1].ID)

	sem := got[0].Scores[types.StrategySemantic]
	assert.InDelta(t, 0.5, sem.Raw, 1e-9)
	assert.InDelta(t, 0.5, sem.Normalized, 1e-9)
	_, hasGraph := got[0].Scores[types.StrategyGraph]
	assert.False(t, hasGraph)
}

func TestFuse_DedupeKeepsMaxScore(t *testing.T) {
	a, b := unit(1, "a", 0), unit(2, "b", 0)
	lists := map[types.Strategy][]candidate{
		types.StrategyLexical: {cand(a, 1), cand(b, 2), cand(a, 3)},
	}
	got := fuse(lists, DefaultFusionWeights(), false)
	require.Len(t, got, 2)
	assert.Equal(t, types.NodeID(1), got[0].ID)
	assert.InDelta(t, 3.0, got[0].Scores[types.StrategyLexical].Raw, 1e-9)
}

func TestFuse_DegenerateRange(t *testing.T) {
	a, b := unit(1, "a", 0), unit(2, "b", 0)
	got := fuse(map[types.Strategy][]candidate{
		types.StrategyGraph: {cand(a, 0.4), cand(b, 0.4)},
	}, DefaultFusionWeights(), false)
	for _, r := range got {
		assert.InDelta(t, 1.0, r.Scores[types.StrategyGraph].Normalized, 1e-9)
	}

	got = fuse(map[types.Strategy][]candidate{
		types.StrategyGraph: {cand(a, 0)},
	}, DefaultFusionWeights(), false)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Score)
}

func TestFuse_TieBreaks(t *testing.T) {
	older, newer := unit(5, "x", 10), unit(9, "y", 1)
	sameDateLow, sameDateHigh := unit(3, "p", 20), unit(4, "q", 20)
	lists := map[types.Strategy][]candidate{
		types.StrategySemantic: {cand(older, 1), cand(newer, 1), cand(sameDateLow, 1), cand(sameDateHigh, 1)},
	}
	got := fuse(lists, DefaultFusionWeights(), false)
	ids := []types.NodeID{}
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []types.NodeID{9, 5, 3, 4}, ids, "equal scores order by event date desc, then id asc")
}

func TestFuse_DeterministicAcrossInputOrder(t *testing.T) {
	var units []types.MemoryUnit
	for i := range 40 {
		units = append(units, unit(types.NodeID(i+1), strings.Repeat("w", i%7+1), i%5))
	}
	build := func(r *rand.Rand) map[types.Strategy][]candidate {
		lists := map[types.Strategy][]candidate{}
		for si, s := range types.AllStrategies {
			for i, u := range units {
				if (i+si)%3 == 0 {
					continue
				}
				lists[s] = append(lists[s], cand(u, float64((i*7+si*3)%11)/10))
			}
			r.Shuffle(len(lists[s]), func(i, j int) { lists[s][i], lists[s][j] = lists[s][j], lists[s][i] })
		}
		return lists
	}

	reference, err := json.Marshal(fuse(build(rand.New(rand.NewPCG(1, 1))), DefaultFusionWeights(), true))
	require.NoError(t, err)
	for seed := range uint64(10) {
		again, err := json.Marshal(fuse(build(rand.New(rand.NewPCG(seed, 7))), DefaultFusionWeights(), true))
		require.NoError(t, err)
		assert.JSONEq(t, string(reference), string(again))
	}
}

func TestFuse_TraceRecordsStrategiesAndHop(t *testing.T) {
	a := unit(1, "a", 0)
	hop := 2
	lists := map[types.Strategy][]candidate{
		types.StrategySemantic: {cand(a, 0.5)},
		types.StrategyGraph:    {{unit: a, score: 0.2, hop: &hop}},
	}
	got := fuse(lists, DefaultFusionWeights(), true)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Trace)
	assert.Equal(t, []types.Strategy{types.StrategySemantic, types.StrategyGraph}, got[0].Trace.Strategies)
	require.NotNil(t, got[0].Trace.GraphHop)
	assert.Equal(t, 2, *got[0].Trace.GraphHop)

	untraced := fuse(lists, DefaultFusionWeights(), false)
	assert.Nil(t, untraced[0].Trace)
}

func TestTruncateByTokens(t *testing.T) {
	results := []types.SearchResult{
		{ID: 1, Content: strings.Repeat("a", 40)}, // 10 tokens
		{ID: 2, Content: strings.Repeat("b", 40)},
		{ID: 3, Content: strings.Repeat("c", 4)}, // 1 token
	}

	kept, dropped := truncateByTokens(results, 20)
	assert.Len(t, kept, 2)
	assert.Equal(t, 1, dropped)

	kept, dropped = truncateByTokens(results, 10)
	require.Len(t, kept, 1)
	assert.Equal(t, types.NodeID(1), kept[0].ID)
	assert.Equal(t, 2, dropped)

	kept, dropped = truncateByTokens(results, 5)
	assert.Empty(t, kept, "an oversized first result is dropped too")
	assert.Equal(t, 3, dropped)

	kept, dropped = truncateByTokens(results, 1000)
	assert.Len(t, kept, 3)
	assert.Zero(t, dropped)

	kept, dropped = truncateByTokens(nil, 10)
	assert.Empty(t, kept)
	assert.Zero(t, dropped)
}

func TestFusionWeights_Validate(t *testing.T) {
	require.NoError(t, DefaultFusionWeights().Validate())
	require.NoError(t, FusionWeights{Graph: 1}.Validate())

	for name, w := range map[string]FusionWeights{
		"negative": {Semantic: -0.1, Lexical: 1},
		"zero sum": {},
		"nan":      {Semantic: math.NaN(), Lexical: 1},
		"inf":      {Temporal: math.Inf(1)},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, w.Validate())
		})
	}
}

func TestTemporalScore(t *testing.T) {
	now := fusionEpoch
	halfLife := 24 * time.Hour

	assert.InDelta(t, 1.0, TemporalScore(now, now, halfLife), 1e-9)
	assert.InDelta(t, 0.5, TemporalScore(now, now.Add(-halfLife), halfLife), 1e-9)
	assert.InDelta(t, 0.25, TemporalScore(now, now.Add(-2*halfLife), halfLife), 1e-9)
	assert.InDelta(t, 1.0, TemporalScore(now, now.Add(time.Hour), halfLife), 1e-9, "future events are not boosted past 1")
	assert.Zero(t, TemporalScore(now, now, 0))

	older := TemporalScore(now, now.AddDate(0, 0, -30), halfLife)
	newer := TemporalScore(now, now.AddDate(0, 0, -3), halfLife)
	assert.Less(t, older, newer)
}
