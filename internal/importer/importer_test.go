package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/internal/logging"
	"github.com/scrypster/memora/internal/storage/memstore"
	"github.com/scrypster/memora/pkg/types"
)

const travelNote = `---
title: Travel
tags: [trips, europe]
date: 2025-04-12
fact_type: agent
---
# Travel

Alice moved to [[Paris]] in 2019.
She works at the [[Louvre|museum]].

## Plans

- Visit Lyon in May
- [ ] Book the train #todo

` + "```" + `
not a fact
` + "```" + `
`

func TestParseMarkdownFile(t *testing.T) {
	pf, err := ParseMarkdownFile([]byte(travelNote), filepath.Join("notes", "travel.md"))
	require.NoError(t, err)

	assert.Equal(t, "notes/travel.md", pf.RelativePath)
	assert.Equal(t, "Travel", pf.Title)
	assert.Equal(t, []string{"trips", "europe", "todo"}, pf.Tags)
	assert.Equal(t, []WikiLink{{Target: "Paris"}, {Target: "Louvre", Alias: "museum"}}, pf.WikiLinks)
	assert.Equal(t, time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC), pf.Timestamp.UTC())
	assert.Equal(t, types.FactType("agent"), pf.FactType)

	require.Len(t, pf.Sections, 2)
	assert.Equal(t, Section{Heading: "Travel", Facts: []string{"Alice moved to Paris in 2019. She works at the Louvre."}}, pf.Sections[0])
	assert.Equal(t, Section{Heading: "Plans", Facts: []string{"Visit Lyon in May", "Book the train #todo"}}, pf.Sections[1])
}

func TestParsedFile_Items(t *testing.T) {
	pf, err := ParseMarkdownFile([]byte(travelNote), "travel.md")
	require.NoError(t, err)

	items := pf.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "Travel", items[0].Context)
	assert.Equal(t, "Travel / Plans", items[1].Context)
	require.NotNil(t, items[0].EventDate)
	assert.Equal(t, "travel.md", items[0].Metadata["path"])
	assert.Equal(t, "Paris,Louvre", items[0].Metadata["wiki_links"])

	items[0].Metadata["path"] = "changed"
	assert.Equal(t, "travel.md", items[1].Metadata["path"], "items do not share metadata")
}

func TestParseMarkdownFile_Fallbacks(t *testing.T) {
	pf, err := ParseMarkdownFile([]byte("just one line"), "daily_log-2025.md")
	require.NoError(t, err)
	assert.Equal(t, "daily log 2025", pf.Title)
	assert.True(t, pf.Timestamp.IsZero())
	require.Len(t, pf.Sections, 1)
	assert.Equal(t, []string{"just one line"}, pf.Sections[0].Facts)

	_, err = ParseMarkdownFile([]byte("---\ntags: [unclosed\n---\nbody"), "bad.md")
	assert.Error(t, err)
}

func TestStripWikiLinks(t *testing.T) {
	assert.Equal(t, "see Paris and Louvre", StripWikiLinks("see [[Paris]] and [[Louvre|the museum]]"))
}

func newEngine(t *testing.T) *engine.MemoryEngine {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.NumWorkers = 2
	eng, err := engine.NewMemoryEngine(memstore.New(logging.Discard()), cfg, engine.Dependencies{Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })
	return eng
}

func writeVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"travel.md":              travelNote,
		"people/bob.markdown":    "Bob plays chess on Sundays.",
		"empty.md":               "   \n",
		"broken.md":              "---\nkey: [oops\n---\ntext",
		".obsidian/workspace.md": "ignored",
		"image.png":              "not markdown",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	return dir
}

func TestImport(t *testing.T) {
	eng := newEngine(t)
	imp := New(eng, logging.Discard())
	dir := writeVault(t)

	result, err := imp.Import(context.Background(), "a1", dir)
	require.NoError(t, err)

	assert.Equal(t, 4, result.FilesFound)
	assert.Equal(t, 2, result.FilesImported)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Equal(t, 1, result.FilesFailed)
	assert.Equal(t, 4, result.Facts)
	assert.Equal(t, 2, result.WikiLinks)
	assert.ElementsMatch(t, []string{"travel.md", "people/bob.markdown"}, result.Documents)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken.md")

	wait := engine.WaitOptions{PollInterval: 5 * time.Millisecond, Timeout: 10 * time.Second}
	require.NoError(t, eng.WaitForBacklog(context.Background(), "a1", wait))

	// Re-importing replaces each document's facts instead of duplicating them.
	_, err = imp.Import(context.Background(), "a1", dir)
	require.NoError(t, err)
	require.NoError(t, eng.WaitForBacklog(context.Background(), "a1", wait))

	stats, err := eng.GetStats(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.MemoryUnits)

	doc, err := eng.GetDocument(context.Background(), "a1", "people/bob.markdown")
	require.NoError(t, err)
	assert.Len(t, doc.UnitIDs, 1)
}

func TestImport_MissingDir(t *testing.T) {
	_, err := New(newEngine(t), logging.Discard()).Import(context.Background(), "a1", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
