package engine

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/pkg/types"
)

// graphOf builds a NeighborFunc over a fixed adjacency list.
func graphOf(adj map[types.NodeID][]types.Link) NeighborFunc {
	return func(ctx context.Context, id types.NodeID) ([]types.Link, error) {
		return adj[id], nil
	}
}

func link(src, dst types.NodeID, w float64) types.Link {
	return types.Link{SourceID: src, TargetID: dst, Type: types.LinkRelatesTo, Weight: w}
}

// chain: 1 -> 2 -> 3 -> 4 -> 5, plus 1 -> 6 and 6 -> 3.
func testGraph() map[types.NodeID][]types.Link {
	return map[types.NodeID][]types.Link{
		1: {link(1, 2, 1), link(1, 6, 0.8)},
		2: {link(2, 3, 1)},
		3: {link(3, 4, 1)},
		4: {link(4, 5, 1)},
		6: {link(6, 3, 0.5)},
	}
}

func defaultBounds(budget int) ActivationBounds {
	return ActivationBounds{Budget: budget, Decay: 0.5, Threshold: 0.01, MaxHops: 3}
}

func visitedIDs(res *ActivationResult) []types.NodeID {
	ids := make([]types.NodeID, len(res.Nodes))
	for i, n := range res.Nodes {
		ids[i] = n.ID
	}
	slices.Sort(ids)
	return ids
}

func TestSpreadActivation_Basic(t *testing.T) {
	res, err := SpreadActivation(context.Background(), []types.NodeID{1}, defaultBounds(100), graphOf(testGraph()))
	require.NoError(t, err)
	assert.False(t, res.Exhausted)
	assert.False(t, res.Cancelled)

	byID := map[types.NodeID]ActivatedNode{}
	for _, n := range res.Nodes {
		byID[n.ID] = n
	}

	assert.InDelta(t, 1.0, byID[1].Activation, 1e-9)
	assert.Equal(t, 0, byID[1].Hop)
	assert.InDelta(t, 0.5, byID[2].Activation, 1e-9)
	assert.InDelta(t, 0.4, byID[6].Activation, 1e-9)
	// 3 is reached from 2 (0.25) and from 6 (0.1) at hop 2.
	assert.InDelta(t, 0.35, byID[3].Activation, 1e-9)
	assert.Equal(t, 2, byID[3].Hop)
	// 4 is at MaxHops: visited, never propagated, so 5 is never reached.
	assert.InDelta(t, 0.175, byID[4].Activation, 1e-9)
	assert.Equal(t, 3, byID[4].Hop)
	_, reached5 := byID[5]
	assert.False(t, reached5)

	// Sorted by activation descending.
	for i := 1; i < len(res.Nodes); i++ {
		assert.GreaterOrEqual(t, res.Nodes[i-1].Activation, res.Nodes[i].Activation)
	}
}

func TestSpreadActivation_SeedsAreDedupedAndSorted(t *testing.T) {
	a, err := SpreadActivation(context.Background(), []types.NodeID{6, 1, 6}, defaultBounds(100), graphOf(testGraph()))
	require.NoError(t, err)
	b, err := SpreadActivation(context.Background(), []types.NodeID{1, 6}, defaultBounds(100), graphOf(testGraph()))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSpreadActivation_HopIsStrongestPulse(t *testing.T) {
	// 10 reaches 12 weakly in one hop and strongly in two.
	adj := map[types.NodeID][]types.Link{
		10: {link(10, 11, 1), link(10, 12, 0.1)},
		11: {link(11, 12, 1)},
	}
	res, err := SpreadActivation(context.Background(), []types.NodeID{10}, defaultBounds(100), graphOf(adj))
	require.NoError(t, err)
	for _, n := range res.Nodes {
		if n.ID == 12 {
			assert.Equal(t, 2, n.Hop)
			assert.InDelta(t, 0.05+0.25, n.Activation, 1e-9)
		}
	}
}

func TestSpreadActivation_ThresholdStopsPropagation(t *testing.T) {
	adj := map[types.NodeID][]types.Link{
		1: {link(1, 2, 0.01)},
		2: {link(2, 3, 1)},
	}
	res, err := SpreadActivation(context.Background(), []types.NodeID{1}, defaultBounds(100), graphOf(adj))
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{1}, visitedIDs(res), "pulse 0.005 is below threshold and dropped")
}

func TestSpreadActivation_BudgetMonotonicity(t *testing.T) {
	g := graphOf(testGraph())
	seeds := []types.NodeID{1}

	var prev []types.NodeID
	for budget := 1; budget <= 8; budget++ {
		res, err := SpreadActivation(context.Background(), seeds, defaultBounds(budget), g)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Visits, budget)

		ids := visitedIDs(res)
		for _, id := range prev {
			assert.Contains(t, ids, id, "budget %d lost node %d", budget, id)
		}
		prev = ids
	}

	small, err := SpreadActivation(context.Background(), seeds, defaultBounds(2), g)
	require.NoError(t, err)
	assert.True(t, small.Exhausted)
	assert.Equal(t, 2, small.Visits)
	assert.Equal(t, []types.NodeID{1, 2}, visitedIDs(small), "level 1 is expanded in id order")
}

func TestSpreadActivation_Deterministic(t *testing.T) {
	g := graphOf(testGraph())
	first, err := SpreadActivation(context.Background(), []types.NodeID{1, 6}, defaultBounds(4), g)
	require.NoError(t, err)
	for range 20 {
		again, err := SpreadActivation(context.Background(), []types.NodeID{6, 1}, defaultBounds(4), g)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSpreadActivation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	neighbors := func(ctx context.Context, id types.NodeID) ([]types.Link, error) {
		calls++
		cancel()
		return testGraph()[id], nil
	}
	res, err := SpreadActivation(ctx, []types.NodeID{1}, defaultBounds(100), neighbors)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []types.NodeID{1}, visitedIDs(res))
}

func TestSpreadActivation_NeighborError(t *testing.T) {
	boom := errors.New("adjacency unavailable")
	_, err := SpreadActivation(context.Background(), []types.NodeID{1}, defaultBounds(100),
		func(ctx context.Context, id types.NodeID) ([]types.Link, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestSpreadActivation_NoSeeds(t *testing.T) {
	res, err := SpreadActivation(context.Background(), nil, defaultBounds(10), graphOf(testGraph()))
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
	assert.Zero(t, res.Visits)
}
