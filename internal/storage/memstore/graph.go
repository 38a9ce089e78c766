package memstore

import (
	"maps"
	"slices"

	"github.com/scrypster/memora/internal/textutil"
	"github.com/scrypster/memora/pkg/types"
)

// agentGraph is an immutable snapshot of one agent's memory graph. Writers
// build a modified copy and publish it atomically; readers hold whichever
// snapshot they loaded for the duration of a call.
type agentGraph struct {
	units       map[types.NodeID]*types.MemoryUnit
	terms       map[types.NodeID]map[string]int // per-unit term frequencies
	entities    map[types.NodeID]*types.Entity
	entityByKey map[string]types.NodeID
	adjacency   map[types.NodeID][]types.Link // outgoing, sorted by (target, type)
	documents   map[string]*types.Document
	linkCount   int
}

func newAgentGraph() *agentGraph {
	return &agentGraph{
		units:       map[types.NodeID]*types.MemoryUnit{},
		terms:       map[types.NodeID]map[string]int{},
		entities:    map[types.NodeID]*types.Entity{},
		entityByKey: map[string]types.NodeID{},
		adjacency:   map[types.NodeID][]types.Link{},
		documents:   map[string]*types.Document{},
	}
}

// clone returns a copy whose maps can be modified without affecting g.
// Map values are treated as immutable and shared.
func (g *agentGraph) clone() *agentGraph {
	return &agentGraph{
		units:       maps.Clone(g.units),
		terms:       maps.Clone(g.terms),
		entities:    maps.Clone(g.entities),
		entityByKey: maps.Clone(g.entityByKey),
		adjacency:   maps.Clone(g.adjacency),
		documents:   maps.Clone(g.documents),
		linkCount:   g.linkCount,
	}
}

func (g *agentGraph) hasNode(id types.NodeID) bool {
	if _, ok := g.units[id]; ok {
		return true
	}
	_, ok := g.entities[id]
	return ok
}

func (g *agentGraph) addUnit(u *types.MemoryUnit) {
	g.units[u.ID] = u
	tf := make(map[string]int)
	for _, term := range textutil.Tokenize(u.Content) {
		tf[term]++
	}
	g.terms[u.ID] = tf
}

// removeNodes deletes units and every link touching them.
func (g *agentGraph) removeNodes(ids []types.NodeID) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[types.NodeID]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
		delete(g.units, id)
		delete(g.terms, id)
		if e, ok := g.entities[id]; ok {
			delete(g.entityByKey, types.CanonicalKey(e.CanonicalName))
			delete(g.entities, id)
		}
		g.linkCount -= len(g.adjacency[id])
		delete(g.adjacency, id)
	}
	for src, links := range g.adjacency {
		kept := slices.DeleteFunc(slices.Clone(links), func(l types.Link) bool { return gone[l.TargetID] })
		if len(kept) != len(links) {
			g.linkCount -= len(links) - len(kept)
			if len(kept) == 0 {
				delete(g.adjacency, src)
			} else {
				g.adjacency[src] = kept
			}
		}
	}
}

// upsertLink inserts l into the source's adjacency, keeping the larger weight
// when (target, type) already exists.
func (g *agentGraph) upsertLink(l types.Link) {
	links := g.adjacency[l.SourceID]
	idx, found := slices.BinarySearchFunc(links, l, compareLinks)
	if found {
		if l.Weight > links[idx].Weight {
			updated := slices.Clone(links)
			updated[idx].Weight = l.Weight
			g.adjacency[l.SourceID] = updated
		}
		return
	}
	updated := make([]types.Link, 0, len(links)+1)
	updated = append(updated, links[:idx]...)
	updated = append(updated, l)
	updated = append(updated, links[idx:]...)
	g.adjacency[l.SourceID] = updated
	g.linkCount++
}

func compareLinks(a, b types.Link) int {
	switch {
	case a.TargetID < b.TargetID:
		return -1
	case a.TargetID > b.TargetID:
		return 1
	}
	switch {
	case a.Type < b.Type:
		return -1
	case a.Type > b.Type:
		return 1
	}
	return 0
}
