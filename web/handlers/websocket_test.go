package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/internal/logging"
	"github.com/scrypster/memora/pkg/types"
	"github.com/scrypster/memora/web/handlers"
)

// fakeStats reports a fixed pending count for known agents.
type fakeStats map[string]int64

func (f fakeStats) GetStats(ctx context.Context, agentID string) (*types.AgentStats, error) {
	pending, ok := f[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: agent %q", engine.ErrNotFound, agentID)
	}
	return &types.AgentStats{AgentID: agentID, PendingOperations: pending}, nil
}

func upgradeRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}

func TestWebSocketHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub(fakeStats{"a": 0}, logging.Discard())
	defer hub.Stop()

	req := upgradeRequest("/ws/stats?agent_id=a")
	req.Header.Set("Origin", "http://evil.com")
	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestWebSocketHub_RequiresKnownAgent(t *testing.T) {
	hub := handlers.NewWebSocketHub(fakeStats{"a": 0}, logging.Discard())
	defer hub.Stop()

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, upgradeRequest("/ws/stats"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	hub.ServeHTTP(w, upgradeRequest("/ws/stats?agent_id=ghost"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketHub_NotifiesOnlySubscribers(t *testing.T) {
	hub := handlers.NewWebSocketHub(fakeStats{"a": 3, "b": 0}, logging.Discard())
	go hub.Run()
	defer hub.Stop()

	forA := &handlers.MockClient{SendChan: make(chan []byte, 4)}
	forB := &handlers.MockClient{SendChan: make(chan []byte, 4)}
	hub.Register(forA, "a")
	hub.Register(forB, "b")

	hub.NotifyAgent("a")

	select {
	case msg := <-forA.SendChan:
		var got handlers.StatsMessage
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "stats", got.Type)
		assert.Equal(t, "a", got.AgentID)
		require.NotNil(t, got.Stats)
		assert.Equal(t, int64(3), got.Stats.PendingOperations)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stats message")
	}

	select {
	case msg := <-forB.SendChan:
		t.Fatalf("unexpected message for other agent: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocketHub_UnregisterClosesChannel(t *testing.T) {
	hub := handlers.NewWebSocketHub(fakeStats{"a": 0}, logging.Discard())
	go hub.Run()
	defer hub.Stop()

	client := &handlers.MockClient{SendChan: make(chan []byte, 1)}
	hub.Register(client, "a")
	hub.Unregister(client)

	select {
	case _, ok := <-client.SendChan:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}
