package handlers

import "net/http"

// Register mounts the API routes on mux. Paths are relative to the API
// root; the server wraps them with auth.
func (h *APIHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/memories/batch_async", h.PutBatch)
	mux.HandleFunc("POST /api/search", h.Search)
	mux.HandleFunc("POST /api/think", h.Think)
	mux.HandleFunc("GET /api/stats/{agent_id}", h.GetStats)
	mux.HandleFunc("GET /api/queue/{agent_id}", h.GetQueue)
	mux.HandleFunc("GET /api/agents", h.ListAgents)
	mux.HandleFunc("DELETE /api/agents/{agent_id}", h.DeleteAgent)
	mux.HandleFunc("GET /api/documents/{agent_id}/{document_id}", h.GetDocument)
	mux.HandleFunc("DELETE /api/documents/{agent_id}/{document_id}", h.DeleteDocument)
	mux.HandleFunc("GET /api/debug/recall-trace", h.RecallTrace)
}
