package handlers

import (
	"net/http"
)

// GetStats handles GET /api/stats/{agent_id}.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.memory.GetStats(r.Context(), r.PathValue("agent_id"))
	if err != nil {
		h.respondEngineError(w, "failed to get stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetQueue handles GET /api/queue/{agent_id}: the global queue depth plus the
// agent's live and dead-lettered index jobs.
func (h *APIHandlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	if _, err := h.memory.GetStats(r.Context(), agentID); err != nil {
		h.respondEngineError(w, "failed to get queue", err)
		return
	}
	respondJSON(w, http.StatusOK, QueueResponse{
		AgentID:      agentID,
		QueueSize:    h.memory.QueueSize(),
		Jobs:         h.memory.Jobs(agentID),
		DeadLettered: h.memory.DeadLetters(agentID),
	})
}
