package engine

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/pkg/types"
)

// ActivationBounds limits one spreading-activation traversal.
type ActivationBounds struct {
	// Budget is the maximum number of node visits (expansions).
	Budget int

	// Decay multiplies every pulse passed along a link.
	Decay float64

	// Threshold drops pulses below it; a node reached with a weaker pulse
	// does not propagate.
	Threshold float64

	// MaxHops is the deepest level that is still visited. Nodes at MaxHops
	// do not propagate.
	MaxHops int
}

// ActivatedNode is a visited node with its summed activation.
type ActivatedNode struct {
	ID         types.NodeID
	Activation float64
	// Hop is the level at which the node received its strongest single pulse.
	Hop int
}

// ActivationResult is the outcome of SpreadActivation.
type ActivationResult struct {
	// Nodes holds every visited node by activation descending, then id ascending.
	Nodes []ActivatedNode

	// Visits is the number of expansions performed.
	Visits int

	// Exhausted is set when the visit budget stopped the traversal.
	Exhausted bool

	// Cancelled is set when the context ended the traversal early.
	Cancelled bool
}

// NeighborFunc returns the outgoing links of a node sorted by target, then type.
type NeighborFunc func(ctx context.Context, id types.NodeID) ([]types.Link, error)

// visitBudget counts expansions against the bound.
type visitBudget struct {
	limit  int
	visits int
}

// canVisit returns ErrGraphBoundsExceeded once the budget is spent.
func (b *visitBudget) canVisit() error {
	if b.visits >= b.limit {
		return fmt.Errorf("%w: max visits (%d) reached", storage.ErrGraphBoundsExceeded, b.limit)
	}
	return nil
}

func (b *visitBudget) record() { b.visits++ }

// SpreadActivation propagates energy from seeds through the graph, breadth
// first by hop level. Every seed starts with energy 1.0.
//
// Within a level, nodes are expanded in ascending id order and links in the
// order neighbors returns them, so the visit sequence depends only on the
// graph and the bounds. Each expansion costs one visit; a pulse crossing a
// link is pulse×weight×decay. Traversal state lives in this call only.
//
// Cancelling ctx returns the state reached so far with Cancelled set.
// A neighbor lookup failure is returned as an error.
func SpreadActivation(ctx context.Context, seeds []types.NodeID, bounds ActivationBounds, neighbors NeighborFunc) (*ActivationResult, error) {
	budget := &visitBudget{limit: bounds.Budget}
	activation := make(map[types.NodeID]float64)
	strongest := make(map[types.NodeID]float64)
	hops := make(map[types.NodeID]int)
	visited := make(map[types.NodeID]bool)
	result := &ActivationResult{}

	frontier := make(map[types.NodeID]float64)
	for _, id := range seeds {
		if _, dup := frontier[id]; dup {
			continue
		}
		frontier[id] = 1.0
		activation[id] = 1.0
		strongest[id] = 1.0
		hops[id] = 0
	}

traverse:
	for hop := 0; len(frontier) > 0 && hop <= bounds.MaxHops; hop++ {
		next := make(map[types.NodeID]float64)

		for _, id := range slices.Sorted(maps.Keys(frontier)) {
			if ctx.Err() != nil {
				result.Cancelled = true
				break traverse
			}
			if budget.canVisit() != nil {
				result.Exhausted = true
				break traverse
			}
			budget.record()
			visited[id] = true

			pulse := frontier[id]
			if pulse < bounds.Threshold || hop >= bounds.MaxHops {
				continue
			}

			links, err := neighbors(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					result.Cancelled = true
					break traverse
				}
				return nil, fmt.Errorf("neighbors of %d: %w", id, err)
			}
			for _, l := range links {
				out := pulse * l.Weight * bounds.Decay
				if out < bounds.Threshold {
					continue
				}
				activation[l.TargetID] += out
				next[l.TargetID] += out
				if out > strongest[l.TargetID] {
					strongest[l.TargetID] = out
					hops[l.TargetID] = hop + 1
				}
			}
		}
		frontier = next
	}

	result.Visits = budget.visits
	result.Nodes = make([]ActivatedNode, 0, len(visited))
	for id := range visited {
		result.Nodes = append(result.Nodes, ActivatedNode{ID: id, Activation: activation[id], Hop: hops[id]})
	}
	slices.SortFunc(result.Nodes, func(a, b ActivatedNode) int {
		if c := cmp.Compare(b.Activation, a.Activation); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}
