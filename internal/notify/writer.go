// Package notify carries job-completion events between Memora processes that
// share a data directory, so the HTTP server's stats stream also reflects
// indexing done by memora-mcp.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EventJobComplete is emitted when an index job reaches Done or DeadLettered.
const EventJobComplete = "job_complete"

// Event is the payload written to an event file.
type Event struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
	Time    int64  `json:"time"`
}

// EventWriter writes event files to {dataPath}/events/.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events")}
}

// Notify writes one event file. Safe to call concurrently.
func (w *EventWriter) Notify(eventType, agentID string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{Type: eventType, AgentID: agentID, Time: time.Now().UnixNano()}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	// Write under a temporary name and rename, so watchers never read a
	// half-written file.
	tmp, err := os.CreateTemp(w.dir, "*.tmp")
	if err != nil {
		return fmt.Errorf("notify: create: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: close: %w", err)
	}
	name := fmt.Sprintf("%d-%s-%s.event", evt.Time, sanitizeID(agentID), strings.TrimSuffix(filepath.Base(tmp.Name()), ".tmp"))
	if err := os.Rename(tmp.Name(), filepath.Join(w.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: rename: %w", err)
	}
	return nil
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.', 0:
			return '_'
		}
		return r
	}, id)
}
