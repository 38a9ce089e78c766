package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/internal/textutil"
)

// vectorSearchMaxCandidates caps the rows scanned by VectorSearch. The most
// recent units are considered first.
const vectorSearchMaxCandidates = 10000

// LexicalSearch ranks units with FTS5's bm25(). bm25 values are negative
// (more negative is better), so the returned score is the negation.
func (s *MemoryStore) LexicalSearch(ctx context.Context, agentID, query string, opts storage.SearchOptions) ([]storage.ScoredUnit, error) {
	opts.Normalize()

	ftsQuery := sanitiseFTSQuery(query)
	if ftsQuery == "" {
		return []storage.ScoredUnit{}, nil
	}

	where, args := unitFilter(agentID, opts)
	args = append([]any{ftsQuery}, args...)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unitColumns+`, -bm25(memory_units_fts) AS score
		FROM memory_units_fts
		JOIN memory_units m ON m.id = memory_units_fts.rowid
		WHERE memory_units_fts MATCH ? AND `+where+`
		ORDER BY score DESC, m.id ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lexical search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []storage.ScoredUnit{}
	for rows.Next() {
		var score float64
		u, err := scanUnit(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("sqlite: lexical search: %w", err)
		}
		if score < 0 {
			score = 0
		}
		results = append(results, storage.ScoredUnit{Unit: *u, Score: score})
	}
	return results, rows.Err()
}

// VectorSearch computes cosine similarity in Go over the agent's embedded
// units. SQLite has no native vector index in this build.
func (s *MemoryStore) VectorSearch(ctx context.Context, agentID string, query []float32, opts storage.SearchOptions) ([]storage.ScoredUnit, error) {
	opts.Normalize()
	if storage.IsZeroVector(query) {
		return []storage.ScoredUnit{}, nil
	}

	where, args := unitFilter(agentID, opts)
	args = append(args, vectorSearchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unitColumns+` FROM memory_units m
		WHERE `+where+` AND m.embedding IS NOT NULL
		ORDER BY m.event_date DESC, m.id ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []storage.ScoredUnit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: vector search: %w", err)
		}
		sim := storage.CosineSimilarity(query, u.Embedding)
		if sim <= 0 {
			continue
		}
		results = append(results, storage.ScoredUnit{Unit: *u, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector search: %w", err)
	}

	storage.SortScored(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// sanitiseFTSQuery converts a free-form user query into a safe FTS5 MATCH
// expression: special characters and stop words are dropped and each
// remaining term becomes a prefix match, OR-ed together.
//
// Example: "Where does Alice live?" → `"alice"* OR "live"*`
func sanitiseFTSQuery(query string) string {
	terms := textutil.UniqueTerms(query)
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		terms[i] = `"` + t + `"*`
	}
	return strings.Join(terms, " OR ")
}
