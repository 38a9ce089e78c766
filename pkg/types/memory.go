package types

import "time"

// MemoryUnit is a single timestamped memory item owned by one agent.
// A unit is immutable once indexed; re-upserting its document replaces it.
type MemoryUnit struct {
	ID         NodeID            `json:"id"`
	AgentID    string            `json:"agent_id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Context    string            `json:"context,omitempty"`
	FactType   FactType          `json:"fact_type"`
	EventDate  time.Time         `json:"event_date"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     UnitStatus        `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Document groups the memory units submitted under one external upsert key.
type Document struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	UnitIDs   []NodeID  `json:"unit_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IngestItem is one element of a put_batch request.
type IngestItem struct {
	Content   string            `json:"content"`
	EventDate *time.Time        `json:"event_date,omitempty"` // Defaults to submission time
	Context   string            `json:"context,omitempty"`
	FactType  FactType          `json:"fact_type,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AgentStats summarizes an agent's memory graph and ingestion backlog.
type AgentStats struct {
	AgentID                string `json:"agent_id"`
	TotalNodes             int    `json:"total_nodes"`
	TotalLinks             int    `json:"total_links"`
	PendingOperations      int64  `json:"pending_operations"`
	MemoryUnits            int    `json:"memory_units"`
	Entities               int    `json:"entities"`
	Documents              int    `json:"documents"`
	DeadLetteredOperations int64  `json:"dead_lettered_operations"`
}
