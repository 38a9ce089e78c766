// Package handlers provides the HTTP handlers and middleware of the Memora API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/pkg/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// MemoryService is the engine surface the handlers need.
type MemoryService interface {
	PutBatch(ctx context.Context, agentID string, items []types.IngestItem, documentID string) (*engine.PutBatchResult, error)
	Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResponse, error)
	Think(ctx context.Context, agentID, query string, budget int) (*engine.ThinkResult, error)
	GetStats(ctx context.Context, agentID string) (*types.AgentStats, error)
	ListAgents(ctx context.Context) ([]string, error)
	DeleteAgent(ctx context.Context, agentID string) error
	GetDocument(ctx context.Context, agentID, documentID string) (*types.Document, error)
	DeleteDocument(ctx context.Context, agentID, documentID string) error
	Jobs(agentID string) []engine.IndexJob
	DeadLetters(agentID string) []engine.IndexJob
	QueueSize() int
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	memory MemoryService
	logger *log.Logger
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(memory MemoryService, logger *log.Logger) *APIHandlers {
	if logger == nil {
		logger = log.Default()
	}
	return &APIHandlers{memory: memory, logger: logger.With("component", "api")}
}

// PutBatch handles POST /api/memories/batch_async. Units are stored before
// the response; indexing continues in the background.
func (h *APIHandlers) PutBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.memory.PutBatch(r.Context(), req.AgentID, req.toIngestItems(), req.DocumentID)
	if err != nil {
		h.respondEngineError(w, "failed to store memories", err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}

// ListAgents handles GET /api/agents.
func (h *APIHandlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.memory.ListAgents(r.Context())
	if err != nil {
		h.respondEngineError(w, "failed to list agents", err)
		return
	}
	respondJSON(w, http.StatusOK, AgentsResponse{Agents: agents})
}

// DeleteAgent handles DELETE /api/agents/{agent_id}.
func (h *APIHandlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.memory.DeleteAgent(r.Context(), r.PathValue("agent_id")); err != nil {
		h.respondEngineError(w, "failed to delete agent", err)
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// GetDocument handles GET /api/documents/{agent_id}/{document_id}.
func (h *APIHandlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.memory.GetDocument(r.Context(), r.PathValue("agent_id"), r.PathValue("document_id"))
	if err != nil {
		h.respondEngineError(w, "failed to get document", err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/{agent_id}/{document_id}.
func (h *APIHandlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.memory.DeleteDocument(r.Context(), r.PathValue("agent_id"), r.PathValue("document_id")); err != nil {
		h.respondEngineError(w, "failed to delete document", err)
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Health handles GET /health. No auth.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *APIHandlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", err)
		return false
	}
	return true
}

// statusForError maps the engine error taxonomy onto HTTP statuses and codes.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, engine.ErrStrategyUnavailable):
		return http.StatusServiceUnavailable, "STRATEGY_UNAVAILABLE"
	case errors.Is(err, engine.ErrNotStarted):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, engine.ErrDependencyTimeout), errors.Is(err, engine.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondEngineError writes err with the status statusForError picks.
// Internal errors are logged and their details withheld.
func (h *APIHandlers) respondEngineError(w http.ResponseWriter, message string, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, "err", err)
		respondError(w, status, code, message, nil)
		return
	}
	respondError(w, status, code, message, err)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		log.Error("failed to encode JSON response", "err", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, code, message string, err error) {
	errResp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		errResp.Details = map[string]any{"error": err.Error()}
	}
	respondJSON(w, statusCode, errResp)
}
