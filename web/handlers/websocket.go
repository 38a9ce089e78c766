package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/memora/pkg/types"
)

// StatsSource reads an agent's stats.
type StatsSource interface {
	GetStats(ctx context.Context, agentID string) (*types.AgentStats, error)
}

// StatsMessage is pushed to subscribers whenever one of the agent's index
// jobs terminates.
type StatsMessage struct {
	Type    string            `json:"type"` // always "stats"
	AgentID string            `json:"agent_id"`
	Stats   *types.AgentStats `json:"stats"`
}

// WebSocketHub streams per-agent stats to websocket subscribers.
type WebSocketHub struct {
	clients    map[clientInterface]string // client -> subscribed agent
	notify     chan string
	register   chan subscription
	unregister chan clientInterface
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	stats          StatsSource
	logger         *log.Logger
	originPatterns []string
}

type subscription struct {
	client  clientInterface
	agentID string
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewWebSocketHub creates a new WebSocket hub. originPatterns lists the
// cross-origin hosts allowed to connect, as accepted by websocket.AcceptOptions.
func NewWebSocketHub(stats StatsSource, logger *log.Logger, originPatterns ...string) *WebSocketHub {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:        make(map[clientInterface]string),
		notify:         make(chan string, 256),
		register:       make(chan subscription),
		unregister:     make(chan clientInterface),
		ctx:            ctx,
		cancel:         cancel,
		stats:          stats,
		logger:         logger.With("component", "ws"),
		originPatterns: originPatterns,
	}
}

// Run starts the hub's message processing loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.clients[sub.client] = sub.agentID
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "agent", sub.agentID, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "total", count)

		case agentID := <-h.notify:
			h.publish(agentID)

		case <-h.ctx.Done():
			h.logger.Debug("websocket hub stopping")
			return
		}
	}
}

// publish fetches the agent's stats and fans them out to its subscribers.
func (h *WebSocketHub) publish(agentID string) {
	if !h.hasSubscribers(agentID) {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	stats, err := h.stats.GetStats(ctx, agentID)
	cancel()
	if err != nil {
		h.logger.Warn("failed to read stats for broadcast", "agent", agentID, "err", err)
		return
	}
	data, err := json.Marshal(StatsMessage{Type: "stats", AgentID: agentID, Stats: stats})
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "err", err)
		return
	}

	// Full Lock because slow clients are dropped from the map.
	h.mu.Lock()
	defer h.mu.Unlock()
	for client, sub := range h.clients {
		if sub != agentID {
			continue
		}
		sendChan := client.getSendChannel()
		select {
		case sendChan <- data:
		default:
			close(sendChan)
			delete(h.clients, client)
		}
	}
}

func (h *WebSocketHub) hasSubscribers(agentID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.clients {
		if sub == agentID {
			return true
		}
	}
	return false
}

// NotifyAgent schedules a stats push to the agent's subscribers. It never
// blocks, so it is safe to call from ingestion workers.
func (h *WebSocketHub) NotifyAgent(agentID string) {
	select {
	case h.notify <- agentID:
	default:
		h.logger.Warn("websocket notify channel full, dropping update", "agent", agentID)
	}
}

// Stop gracefully shuts down the hub.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]string)
	h.mu.Unlock()
}

// Register subscribes a client to an agent's stats.
func (h *WebSocketHub) Register(client clientInterface, agentID string) {
	select {
	case h.register <- subscription{client: client, agentID: agentID}:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(client clientInterface) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// originAllowed accepts same-host requests and the configured patterns.
func (h *WebSocketHub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host || slices.Contains(h.originPatterns, u.Host)
}

// ServeHTTP handles GET /ws/stats?agent_id=. The first message is the
// current snapshot; later ones follow job completions.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "agent_id is required", nil)
		return
	}
	snapshot, err := h.stats.GetStats(r.Context(), agentID)
	if err != nil {
		status, code := statusForError(err)
		respondError(w, status, code, "failed to get stats", err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	if data, err := json.Marshal(StatsMessage{Type: "stats", AgentID: agentID, Stats: snapshot}); err == nil {
		client.send <- data
	}

	h.Register(client, agentID)

	go client.writePump()
	go client.readPump()
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(c.hub.ctx, 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()

		if err != nil {
			c.hub.logger.Debug("websocket write failed", "err", err)
			return
		}
	}
}

// readPump drains client messages to detect disconnections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) close() {}
