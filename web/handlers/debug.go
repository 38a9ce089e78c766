package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/pkg/types"
)

// RecallTrace handles GET /api/debug/recall-trace, a query-string form of
// search that always returns the retrieval trace.
//
// Query parameters:
//   - agent_id (string) – required
//   - query    (string) – required; "q" is accepted as an alias
//   - budget   (int)    – activation visits (default from config)
//   - max_tokens (int)  – result token budget (default from config)
//   - fact_type (string) – comma-separated fact types
//   - reranker (string) – heuristic or cross-encoder
func (h *APIHandlers) RecallTrace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := q.Get("query")
	if query == "" {
		query = q.Get("q")
	}

	req := engine.SearchRequest{
		AgentID:  q.Get("agent_id"),
		Query:    query,
		Reranker: q.Get("reranker"),
		Trace:    true,
	}
	for name, dst := range map[string]*int{"budget": &req.Budget, "max_tokens": &req.MaxTokens} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be an integer", err)
			return
		}
		*dst = n
	}
	if v := q.Get("fact_type"); v != "" {
		for _, ft := range strings.Split(v, ",") {
			req.FactTypes = append(req.FactTypes, types.FactType(strings.TrimSpace(ft)))
		}
	}

	resp, err := h.memory.Search(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, "recall trace failed", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
