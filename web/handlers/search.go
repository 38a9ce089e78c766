package handlers

import (
	"net/http"
)

// Search handles POST /api/search.
//
// Body fields:
//   - agent_id, query   required
//   - thinking_budget   activation visits (default 100)
//   - max_tokens        result token budget (default 4096)
//   - fact_type         list of world, agent, opinion; empty means all
//   - reranker          heuristic (default) or cross-encoder
//   - trace             include the retrieval trace
func (h *APIHandlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.memory.Search(r.Context(), req.toEngine())
	if err != nil {
		h.respondEngineError(w, "search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Think handles POST /api/think.
func (h *APIHandlers) Think(w http.ResponseWriter, r *http.Request) {
	var req ThinkRequest
	if !h.decode(w, r, &req) {
		return
	}
	budget := 0
	if req.ThinkingBudget != nil {
		budget = *req.ThinkingBudget
	}
	result, err := h.memory.Think(r.Context(), req.AgentID, req.Query, budget)
	if err != nil {
		h.respondEngineError(w, "think failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
