package handlers

import (
	"time"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// SuccessResponse acknowledges a destructive operation.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// BatchItem is one memory of a batch_async request.
type BatchItem struct {
	Content   string            `json:"content"`
	EventDate *time.Time        `json:"event_date,omitempty"`
	Context   string            `json:"context,omitempty"`
	FactType  string            `json:"fact_type,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// BatchRequest is the request format for POST /api/memories/batch_async.
type BatchRequest struct {
	AgentID    string      `json:"agent_id"`
	Items      []BatchItem `json:"items"`
	DocumentID string      `json:"document_id,omitempty"`
}

// toIngestItems converts request items to engine items.
func (r BatchRequest) toIngestItems() []types.IngestItem {
	items := make([]types.IngestItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = types.IngestItem{
			Content:   it.Content,
			EventDate: it.EventDate,
			Context:   it.Context,
			FactType:  types.FactType(it.FactType),
			Metadata:  it.Metadata,
		}
	}
	return items
}

// SearchRequest is the request format for POST /api/search.
type SearchRequest struct {
	AgentID        string   `json:"agent_id"`
	Query          string   `json:"query"`
	ThinkingBudget *int     `json:"thinking_budget,omitempty"` // default: 100
	MaxTokens      *int     `json:"max_tokens,omitempty"`      // default: 4096
	FactType       []string `json:"fact_type,omitempty"`
	Reranker       string   `json:"reranker,omitempty"` // default: heuristic
	Trace          bool     `json:"trace,omitempty"`
}

// toEngine converts the body to an engine request. Absent budgets map to
// zero, which selects the engine defaults; explicit values pass through so
// the engine can reject negatives.
func (r SearchRequest) toEngine() engine.SearchRequest {
	req := engine.SearchRequest{
		AgentID:  r.AgentID,
		Query:    r.Query,
		Reranker: r.Reranker,
		Trace:    r.Trace,
	}
	if r.ThinkingBudget != nil {
		req.Budget = *r.ThinkingBudget
	}
	if r.MaxTokens != nil {
		req.MaxTokens = *r.MaxTokens
	}
	for _, ft := range r.FactType {
		req.FactTypes = append(req.FactTypes, types.FactType(ft))
	}
	return req
}

// ThinkRequest is the request format for POST /api/think.
type ThinkRequest struct {
	AgentID        string `json:"agent_id"`
	Query          string `json:"query"`
	ThinkingBudget *int   `json:"thinking_budget,omitempty"` // default: 50
}

// AgentsResponse is the response format for GET /api/agents.
type AgentsResponse struct {
	Agents []string `json:"agents"`
}

// QueueResponse is the response format for GET /api/queue/{agent_id}.
type QueueResponse struct {
	AgentID      string            `json:"agent_id"`
	QueueSize    int               `json:"queue_size"`
	Jobs         []engine.IndexJob `json:"jobs"`
	DeadLettered []engine.IndexJob `json:"dead_lettered"`
}
