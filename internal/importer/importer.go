package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/pkg/types"
)

// Ingester is the engine surface the importer writes through.
type Ingester interface {
	PutBatch(ctx context.Context, agentID string, items []types.IngestItem, documentID string) (*engine.PutBatchResult, error)
}

// Result summarizes one import run.
type Result struct {
	FilesFound    int           `json:"files_found"`
	FilesImported int           `json:"files_imported"`
	FilesSkipped  int           `json:"files_skipped"`
	FilesFailed   int           `json:"files_failed"`
	Facts         int           `json:"facts"`
	WikiLinks     int           `json:"wiki_links"`
	Documents     []string      `json:"documents"`
	Errors        []string      `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Importer loads Markdown folders into an agent's memory.
type Importer struct {
	memory Ingester
	logger *log.Logger
}

// New returns an Importer writing through memory.
func New(memory Ingester, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.Default()
	}
	return &Importer{memory: memory, logger: logger.With("component", "importer")}
}

// Import walks dir and stores every Markdown file as one document of agentID,
// keyed by its relative path. Per-file failures are collected in the result;
// only an unreadable root or a cancelled context fail the whole run.
func (imp *Importer) Import(ctx context.Context, agentID, dir string) (*Result, error) {
	start := time.Now()
	files, err := collectMarkdownFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	result := &Result{FilesFound: len(files), Documents: []string{}}

	for _, absPath := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rel, _ := filepath.Rel(dir, absPath)

		data, err := os.ReadFile(absPath)
		if err != nil {
			result.fail(rel, "read", err)
			continue
		}
		if strings.TrimSpace(string(data)) == "" {
			result.FilesSkipped++
			continue
		}
		parsed, err := ParseMarkdownFile(data, rel)
		if err != nil {
			result.fail(rel, "parse", err)
			continue
		}
		items := parsed.Items()
		if len(items) == 0 {
			result.FilesSkipped++
			continue
		}

		stored, err := imp.memory.PutBatch(ctx, agentID, items, parsed.RelativePath)
		if err != nil {
			result.fail(rel, "store", err)
			imp.logger.Warn("file not imported", "path", rel, "err", err)
			continue
		}
		result.FilesImported++
		result.Facts += stored.AcceptedCount
		result.WikiLinks += len(parsed.WikiLinks)
		result.Documents = append(result.Documents, stored.DocumentID)
		imp.logger.Debug("file imported", "path", rel, "facts", stored.AcceptedCount)
	}

	result.Duration = time.Since(start)
	imp.logger.Info("import finished",
		"agent", agentID,
		"files", result.FilesImported,
		"facts", result.Facts,
		"failed", result.FilesFailed,
		"duration", result.Duration)
	return result, nil
}

func (r *Result) fail(rel, stage string, err error) {
	r.FilesFailed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s error: %v", rel, stage, err))
}

// collectMarkdownFiles returns the .md and .markdown files under dir in
// lexical order. Hidden directories such as .obsidian are skipped.
func collectMarkdownFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".md", ".markdown":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
