// Package types defines the core data structures for the Memora memory system.
// These types represent memory units, entities, links and the indexing job
// lifecycle shared by the storage, engine and transport layers.
package types

// NodeID is the opaque integer identity of a node in an agent's memory graph.
// Memory units and entities share one id space within a store.
type NodeID int64

// NodeKind distinguishes the two kinds of graph node.
type NodeKind string

const (
	// NodeMemoryUnit is a stored memory item.
	NodeMemoryUnit NodeKind = "memory_unit"

	// NodeEntity is an entity extracted from memory unit content.
	NodeEntity NodeKind = "entity"
)

// FactType is a coarse category used to filter search scope.
type FactType string

// Fact type constants
const (
	FactWorld   FactType = "world"   // General world knowledge
	FactAgent   FactType = "agent"   // Facts about the agent itself
	FactOpinion FactType = "opinion" // Derived opinions re-ingested from think
)

// ValidFactTypes contains all valid fact type values
var ValidFactTypes = []FactType{FactWorld, FactAgent, FactOpinion}

// IsValidFactType checks if the given fact type is known.
// Empty string is considered valid (means default).
func IsValidFactType(ft FactType) bool {
	if ft == "" {
		return true
	}
	for _, valid := range ValidFactTypes {
		if ft == valid {
			return true
		}
	}
	return false
}

// UnitStatus represents the indexing status of a memory unit.
type UnitStatus string

// Memory unit status constants
const (
	// UnitPending indicates the unit is stored but not yet indexed
	UnitPending UnitStatus = "pending"

	// UnitIndexed indicates embedding, extraction and linking completed
	UnitIndexed UnitStatus = "indexed"

	// UnitFailed indicates indexing was dead-lettered
	UnitFailed UnitStatus = "failed"
)

// Link type constants
const (
	LinkMentions    = "mentions"     // memory unit -> entity
	LinkMentionedIn = "mentioned_in" // entity -> memory unit
	LinkRelatesTo   = "relates_to"   // entity -> entity (extracted)
	LinkCoOccurs    = "co_occurs"    // entity -> entity (same unit)
	LinkSemantic    = "semantic"     // memory unit <-> memory unit (embedding similarity)
)
