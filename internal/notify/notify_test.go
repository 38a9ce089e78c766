package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/logging"
)

type eventMsg struct {
	eventType string
	agentID   string
}

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	require.NoError(t, w.Notify(EventJobComplete, "team/alpha"))

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".event", filepath.Ext(entries[0].Name()))
	assert.NotContains(t, entries[0].Name(), "/")
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()
	received := make(chan eventMsg, 1)

	watcher := NewEventWatcher(dir, func(eventType, agentID string) {
		received <- eventMsg{eventType, agentID}
	}, logging.Discard())
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	require.NoError(t, NewEventWriter(dir).Notify(EventJobComplete, "agent-1"))

	select {
	case msg := <-received:
		assert.Equal(t, eventMsg{EventJobComplete, "agent-1"}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Consumed files are removed.
	assert.Eventually(t, func() bool {
		entries, _ := os.ReadDir(filepath.Join(dir, "events"))
		return len(entries) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)
	require.NoError(t, w.Notify(EventJobComplete, "a"))
	require.NoError(t, w.Notify(EventJobComplete, "b"))

	received := make(chan eventMsg, 4)
	watcher := NewEventWatcher(dir, func(eventType, agentID string) {
		received <- eventMsg{eventType, agentID}
	}, logging.Discard())
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	got := map[string]bool{}
	for range 2 {
		select {
		case msg := <-received:
			got[msg.agentID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for drained events")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
}

func TestEventWatcherIgnoresGarbage(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events")
	require.NoError(t, os.MkdirAll(events, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(events, "1-x.event"), []byte("{not json"), 0o600))

	called := false
	watcher := NewEventWatcher(dir, func(string, string) { called = true }, logging.Discard())
	require.NoError(t, watcher.Start())
	watcher.Stop()

	assert.False(t, called)
	_, err := os.Stat(filepath.Join(events, "1-x.event"))
	assert.True(t, os.IsNotExist(err))
}

func TestStopWithoutStart(t *testing.T) {
	NewEventWatcher(t.TempDir(), nil, logging.Discard()).Stop()
}
