package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/internal/logging"
	"github.com/scrypster/memora/internal/storage/memstore"
	"github.com/scrypster/memora/pkg/types"
	"github.com/scrypster/memora/web/handlers"
)

// newTestAPI starts an engine over an in-memory store and mounts the routes.
func newTestAPI(t *testing.T) (http.Handler, *engine.MemoryEngine) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.NumWorkers = 2
	cfg.RetryBaseDelay = time.Millisecond

	eng, err := engine.NewMemoryEngine(memstore.New(logging.Discard()), cfg, engine.Dependencies{Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	mux := http.NewServeMux()
	handlers.NewAPIHandlers(eng, logging.Discard()).Register(mux)
	return mux, eng
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func ingest(t *testing.T, h http.Handler, eng *engine.MemoryEngine, agentID, documentID string, contents ...string) string {
	t.Helper()
	req := handlers.BatchRequest{AgentID: agentID, DocumentID: documentID}
	for _, c := range contents {
		req.Items = append(req.Items, handlers.BatchItem{Content: c})
	}
	w := do(t, h, http.MethodPost, "/api/memories/batch_async", req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	res := decodeBody[engine.PutBatchResult](t, w)
	assert.Equal(t, len(contents), res.AcceptedCount)

	require.NoError(t, eng.WaitForBacklog(context.Background(), agentID, engine.WaitOptions{
		PollInterval: 5 * time.Millisecond,
		Timeout:      10 * time.Second,
	}))
	return res.DocumentID
}

func TestAPI_BatchSearchThink(t *testing.T) {
	h, eng := newTestAPI(t)
	docID := ingest(t, h, eng, "alice-agent", "", "Alice lives in Paris.", "Bob plays chess on Sundays.")
	assert.NotEmpty(t, docID)

	w := do(t, h, http.MethodPost, "/api/search", map[string]any{
		"agent_id": "alice-agent",
		"query":    "Where does Alice live?",
		"trace":    true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[engine.SearchResponse](t, w)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "Alice lives in Paris.", resp.Results[0].Content)
	require.NotNil(t, resp.Trace)
	assert.Equal(t, "heuristic", resp.Trace.Reranker)

	w = do(t, h, http.MethodPost, "/api/think", map[string]any{
		"agent_id": "alice-agent",
		"query":    "Where does Alice live?",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	think := decodeBody[engine.ThinkResult](t, w)
	assert.Contains(t, think.Text, "Paris")
	assert.NotEmpty(t, think.BasedOn)
}

func TestAPI_SearchWithoutTraceOmitsIt(t *testing.T) {
	h, eng := newTestAPI(t)
	ingest(t, h, eng, "a", "", "The server room is on floor three.")

	w := do(t, h, http.MethodPost, "/api/search", map[string]any{"agent_id": "a", "query": "server room"})
	require.Equal(t, http.StatusOK, w.Code)
	raw := decodeBody[map[string]any](t, w)
	_, hasTrace := raw["trace"]
	assert.False(t, hasTrace)
}

func TestAPI_ErrorMapping(t *testing.T) {
	h, eng := newTestAPI(t)
	ingest(t, h, eng, "a", "doc", "Some fact.")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"empty batch", http.MethodPost, "/api/memories/batch_async", map[string]any{"agent_id": "a", "items": []any{}}, 400, "VALIDATION_ERROR"},
		{"bad fact type", http.MethodPost, "/api/memories/batch_async", map[string]any{"agent_id": "a", "items": []any{map[string]any{"content": "x", "fact_type": "rumor"}}}, 400, "VALIDATION_ERROR"},
		{"negative budget", http.MethodPost, "/api/search", map[string]any{"agent_id": "a", "query": "fact", "thinking_budget": -1}, 400, "VALIDATION_ERROR"},
		{"unknown reranker", http.MethodPost, "/api/search", map[string]any{"agent_id": "a", "query": "fact", "reranker": "magic"}, 400, "VALIDATION_ERROR"},
		{"unknown agent search", http.MethodPost, "/api/search", map[string]any{"agent_id": "ghost", "query": "fact"}, 404, "NOT_FOUND"},
		{"unknown agent think", http.MethodPost, "/api/think", map[string]any{"agent_id": "ghost", "query": "fact"}, 404, "NOT_FOUND"},
		{"unknown agent stats", http.MethodGet, "/api/stats/ghost", nil, 404, "NOT_FOUND"},
		{"unknown document", http.MethodGet, "/api/documents/a/nope", nil, 404, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			errResp := decodeBody[handlers.ErrorResponse](t, w)
			assert.Equal(t, tt.code, errResp.Code)
			assert.NotEmpty(t, errResp.Error)
			assert.NotEmpty(t, errResp.Details["error"])
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewBufferString("{not json"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/search", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestAPI_AgentsStatsAndDeletion(t *testing.T) {
	h, eng := newTestAPI(t)
	ingest(t, h, eng, "b-agent", "", "Fact one.", "Fact two.")
	ingest(t, h, eng, "a-agent", "", "Other fact.")

	w := do(t, h, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a-agent", "b-agent"}, decodeBody[handlers.AgentsResponse](t, w).Agents)

	w = do(t, h, http.MethodGet, "/api/stats/b-agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody[types.AgentStats](t, w)
	assert.Equal(t, "b-agent", stats.AgentID)
	assert.Equal(t, 2, stats.MemoryUnits)
	assert.Zero(t, stats.PendingOperations)

	w = do(t, h, http.MethodGet, "/api/queue/b-agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	queue := decodeBody[handlers.QueueResponse](t, w)
	assert.Empty(t, queue.Jobs)
	assert.Empty(t, queue.DeadLettered)

	w = do(t, h, http.MethodDelete, "/api/agents/b-agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[handlers.SuccessResponse](t, w).Success)

	w = do(t, h, http.MethodGet, "/api/stats/b-agent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/agents", nil)
	assert.Equal(t, []string{"a-agent"}, decodeBody[handlers.AgentsResponse](t, w).Agents)
}

func TestAPI_Documents(t *testing.T) {
	h, eng := newTestAPI(t)
	ingest(t, h, eng, "a", "notes", "First note.", "Second note.")

	w := do(t, h, http.MethodGet, "/api/documents/a/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := decodeBody[types.Document](t, w)
	assert.Equal(t, "notes", doc.ID)
	assert.Len(t, doc.UnitIDs, 2)

	w = do(t, h, http.MethodDelete, "/api/documents/a/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/documents/a/notes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodDelete, "/api/documents/a/notes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_RecallTrace(t *testing.T) {
	h, eng := newTestAPI(t)
	ingest(t, h, eng, "a", "", "The deploy key rotates monthly.")

	w := do(t, h, http.MethodGet, "/api/debug/recall-trace?agent_id=a&q=deploy+key&budget=10&fact_type=world", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[engine.SearchResponse](t, w)
	require.NotNil(t, resp.Trace)
	assert.Equal(t, 10, resp.Trace.Budget)
	assert.NotEmpty(t, resp.Trace.Events)

	w = do(t, h, http.MethodGet, "/api/debug/recall-trace?agent_id=a&q=x&budget=lots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
