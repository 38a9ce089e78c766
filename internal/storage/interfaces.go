// Package storage defines the agent-scoped storage contracts of the memory
// graph. Interfaces are small and composable so back-ends can be swapped
// (in-memory arena, SQLite, PostgreSQL) without touching engine logic.
//
// Every method takes the owning agent id. Implementations must never return,
// link, or traverse a node that belongs to a different agent.
package storage

import (
	"context"

	"github.com/scrypster/memora/pkg/types"
)

// AgentStore tracks which agents exist and removes them wholesale.
type AgentStore interface {
	// EnsureAgent registers the agent if it is not known yet.
	EnsureAgent(ctx context.Context, agentID string) error

	// AgentExists reports whether the agent has been registered.
	AgentExists(ctx context.Context, agentID string) (bool, error)

	// ListAgents returns all registered agent ids in ascending order.
	ListAgents(ctx context.Context) ([]string, error)

	// DeleteAgent removes every unit, entity, link and document of the agent.
	// Returns ErrNotFound if the agent is unknown.
	DeleteAgent(ctx context.Context, agentID string) error

	// Counts returns node, link and document totals for the agent.
	Counts(ctx context.Context, agentID string) (*AgentCounts, error)
}

// DocumentStore provides upsert-by-key semantics over groups of memory units.
type DocumentStore interface {
	// ReplaceDocument atomically removes the units previously stored under
	// documentID (with their incident links) and inserts units in their place.
	// Assigned node ids are written back into units and returned in order.
	ReplaceDocument(ctx context.Context, agentID, documentID string, units []*types.MemoryUnit) ([]types.NodeID, error)

	// GetDocument returns the document and the ids of its live units.
	GetDocument(ctx context.Context, agentID, documentID string) (*types.Document, error)

	// DeleteDocument removes the document, its units and their links.
	DeleteDocument(ctx context.Context, agentID, documentID string) error
}

// UnitStore provides access to individual memory units.
type UnitStore interface {
	// GetUnit returns ErrNotFound when the unit does not exist for the agent.
	GetUnit(ctx context.Context, agentID string, id types.NodeID) (*types.MemoryUnit, error)

	// GetUnits returns the units among ids that exist for the agent, in the
	// order of ids. Unknown ids and entity ids are skipped.
	GetUnits(ctx context.Context, agentID string, ids []types.NodeID) ([]types.MemoryUnit, error)

	// SetUnitEmbedding stores the embedding vector of a unit.
	SetUnitEmbedding(ctx context.Context, agentID string, id types.NodeID, embedding []float32) error

	// SetUnitStatus updates the indexing status of a unit.
	SetUnitStatus(ctx context.Context, agentID string, id types.NodeID, status types.UnitStatus) error

	// RecentUnits returns units ordered by event date descending, then id ascending.
	RecentUnits(ctx context.Context, agentID string, opts SearchOptions) ([]types.MemoryUnit, error)
}

// EntityStore upserts entities by canonical name.
type EntityStore interface {
	// UpsertEntity returns the agent's entity whose canonical name matches
	// name case-insensitively, creating it if needed and merging aliases.
	UpsertEntity(ctx context.Context, agentID, name string, aliases []string) (*types.Entity, error)
}

// LinkStore writes weighted edges between nodes of one agent.
type LinkStore interface {
	// AddLinks inserts links, keeping the larger weight when a link with the
	// same (source, target, type) already exists. Both endpoints must belong
	// to the agent, otherwise ErrInvalidInput is returned.
	AddLinks(ctx context.Context, agentID string, links []types.Link) error
}

// GraphProvider exposes adjacency for traversal.
type GraphProvider interface {
	// Neighbors returns the outgoing links of a node, sorted by target id
	// ascending, then type ascending. Unknown nodes have no neighbors.
	Neighbors(ctx context.Context, agentID string, id types.NodeID) ([]types.Link, error)
}

// SearchProvider provides lexical and vector search over memory units.
type SearchProvider interface {
	// LexicalSearch scores units with a BM25-style ranking. Higher is better.
	LexicalSearch(ctx context.Context, agentID, query string, opts SearchOptions) ([]ScoredUnit, error)

	// VectorSearch scores units by cosine similarity to the query vector.
	// Units without an embedding are skipped.
	VectorSearch(ctx context.Context, agentID string, query []float32, opts SearchOptions) ([]ScoredUnit, error)
}

// MemoryStore is the full storage contract consumed by the engine.
type MemoryStore interface {
	AgentStore
	DocumentStore
	UnitStore
	EntityStore
	LinkStore
	GraphProvider
	SearchProvider

	// Close releases resources held by the store.
	Close() error
}
