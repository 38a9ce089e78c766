// Package sqlite provides a SQLite implementation of the storage interfaces
// using the CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/pkg/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Ensure *MemoryStore implements storage.MemoryStore at compile time.
var _ storage.MemoryStore = (*MemoryStore)(nil)

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewMemoryStore opens the database at dsn, configures WAL mode and applies
// pending migrations. If the initial open fails because of stale WAL files
// left behind by a crashed process, the files are removed and the open is
// retried once.
func NewMemoryStore(dsn string, logger *log.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("component", "sqlite")

	store, err := openMemoryStore(dsn, logger)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath, logger)

	store, retryErr := openMemoryStore(dsn, logger)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	logger.Warn("recovered from stale WAL files", "path", dbPath)
	return store, nil
}

func openMemoryStore(dsn string, logger *log.Logger) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite supports one writer. A single connection serialises writes,
	// and keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrations: %w", err)
	}
	mgr, err := storage.NewMigrationManager(db, files, storage.PlaceholderQuestion)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	applied, err := mgr.Up()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if applied > 0 {
		logger.Debug("applied migrations", "count", applied)
	}

	return &MemoryStore{db: db, logger: logger}, nil
}

// GetDB returns the underlying database connection.
func (s *MemoryStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *MemoryStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureAgent registers the agent if it is not known yet.
func (s *MemoryStore) EnsureAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agent ID is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agents (id, created_at) VALUES (?, ?)`,
		agentID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: ensure agent: %w", err)
	}
	return nil
}

// AgentExists reports whether the agent has been registered.
func (s *MemoryStore) AgentExists(ctx context.Context, agentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, agentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: agent exists: %w", err)
	}
	return true, nil
}

// ListAgents returns all registered agent ids in ascending order.
func (s *MemoryStore) ListAgents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	agents := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: list agents: %w", err)
		}
		agents = append(agents, id)
	}
	return agents, rows.Err()
}

// DeleteAgent removes every unit, entity, link and document of the agent.
func (s *MemoryStore) DeleteAgent(ctx context.Context, agentID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, agentID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: agent %q", storage.ErrNotFound, agentID)
		}
		if err != nil {
			return err
		}
		// Explicit deletes, children first, keep the FTS triggers in step
		// with memory_units.
		for _, stmt := range []string{
			`DELETE FROM links WHERE agent_id = ?`,
			`DELETE FROM memory_units WHERE agent_id = ?`,
			`DELETE FROM entities WHERE agent_id = ?`,
			`DELETE FROM nodes WHERE agent_id = ?`,
			`DELETE FROM documents WHERE agent_id = ?`,
			`DELETE FROM agents WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, agentID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Counts returns node, link and document totals for the agent.
func (s *MemoryStore) Counts(ctx context.Context, agentID string) (*storage.AgentCounts, error) {
	var c storage.AgentCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM memory_units WHERE agent_id = ?),
			(SELECT COUNT(*) FROM entities WHERE agent_id = ?),
			(SELECT COUNT(*) FROM links WHERE agent_id = ?),
			(SELECT COUNT(*) FROM documents WHERE agent_id = ?)
	`, agentID, agentID, agentID, agentID).Scan(&c.MemoryUnits, &c.Entities, &c.Links, &c.Documents)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counts: %w", err)
	}
	return &c, nil
}

// ReplaceDocument atomically swaps the units stored under documentID.
func (s *MemoryStore) ReplaceDocument(ctx context.Context, agentID, documentID string, units []*types.MemoryUnit) ([]types.NodeID, error) {
	if agentID == "" || documentID == "" {
		return nil, fmt.Errorf("%w: agent ID and document ID are required", storage.ErrInvalidInput)
	}

	ids := make([]types.NodeID, 0, len(units))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteDocumentUnits(ctx, tx, agentID, documentID); err != nil {
			return err
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (agent_id, id, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(agent_id, id) DO UPDATE SET updated_at = excluded.updated_at
		`, agentID, documentID, now.UnixMilli()); err != nil {
			return err
		}

		for _, u := range units {
			id, err := insertNode(ctx, tx, agentID, types.NodeMemoryUnit)
			if err != nil {
				return err
			}
			u.ID = id
			u.AgentID = agentID
			u.DocumentID = documentID
			if u.CreatedAt.IsZero() {
				u.CreatedAt = now
			}
			if u.Status == "" {
				u.Status = types.UnitPending
			}
			if u.FactType == "" {
				u.FactType = types.FactWorld
			}
			metadata, err := encodeMetadata(u.Metadata)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO memory_units
					(id, agent_id, document_id, content, context, fact_type, event_date, embedding, metadata, status, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, id, agentID, documentID, u.Content, u.Context, string(u.FactType),
				u.EventDate.UnixMilli(), encodeVector(u.Embedding), metadata, string(u.Status), u.CreatedAt.UnixMilli()); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: replace document: %w", err)
	}
	return ids, nil
}

// GetDocument returns the document and the ids of its live units.
func (s *MemoryStore) GetDocument(ctx context.Context, agentID, documentID string) (*types.Document, error) {
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM documents WHERE agent_id = ? AND id = ?`,
		agentID, documentID).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %q", storage.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get document: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM memory_units WHERE agent_id = ? AND document_id = ? ORDER BY id`,
		agentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get document units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	doc := &types.Document{
		ID:        documentID,
		AgentID:   agentID,
		UnitIDs:   []types.NodeID{},
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}
	for rows.Next() {
		var id types.NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: get document units: %w", err)
		}
		doc.UnitIDs = append(doc.UnitIDs, id)
	}
	return doc, rows.Err()
}

// DeleteDocument removes the document, its units and their links.
func (s *MemoryStore) DeleteDocument(ctx context.Context, agentID, documentID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE agent_id = ? AND id = ?`, agentID, documentID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: document %q", storage.ErrNotFound, documentID)
		}
		return deleteDocumentUnits(ctx, tx, agentID, documentID)
	})
}

// GetUnit returns a single memory unit.
func (s *MemoryStore) GetUnit(ctx context.Context, agentID string, id types.NodeID) (*types.MemoryUnit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM memory_units m WHERE m.agent_id = ? AND m.id = ?`, agentID, id)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: memory unit %d", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get unit: %w", err)
	}
	return u, nil
}

// GetUnits returns the existing units among ids in the order of ids.
func (s *MemoryStore) GetUnits(ctx context.Context, agentID string, ids []types.NodeID) ([]types.MemoryUnit, error) {
	if len(ids) == 0 {
		return []types.MemoryUnit{}, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, agentID)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + unitColumns + ` FROM memory_units m WHERE m.agent_id = ? AND m.id IN (` +
		placeholders(len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[types.NodeID]types.MemoryUnit, len(ids))
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: get units: %w", err)
		}
		byID[u.ID] = *u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get units: %w", err)
	}

	out := make([]types.MemoryUnit, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
			delete(byID, id)
		}
	}
	return out, nil
}

// SetUnitEmbedding stores the embedding vector of a unit.
func (s *MemoryStore) SetUnitEmbedding(ctx context.Context, agentID string, id types.NodeID, embedding []float32) error {
	return s.updateUnit(ctx, `UPDATE memory_units SET embedding = ? WHERE agent_id = ? AND id = ?`,
		encodeVector(embedding), agentID, id)
}

// SetUnitStatus updates the indexing status of a unit.
func (s *MemoryStore) SetUnitStatus(ctx context.Context, agentID string, id types.NodeID, status types.UnitStatus) error {
	return s.updateUnit(ctx, `UPDATE memory_units SET status = ? WHERE agent_id = ? AND id = ?`,
		string(status), agentID, id)
}

func (s *MemoryStore) updateUnit(ctx context.Context, query string, value any, agentID string, id types.NodeID) error {
	res, err := s.db.ExecContext(ctx, query, value, agentID, id)
	if err != nil {
		return fmt.Errorf("sqlite: update unit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: memory unit %d", storage.ErrNotFound, id)
	}
	return nil
}

// RecentUnits returns units ordered by event date descending, then id ascending.
func (s *MemoryStore) RecentUnits(ctx context.Context, agentID string, opts storage.SearchOptions) ([]types.MemoryUnit, error) {
	opts.Normalize()

	where, args := unitFilter(agentID, opts)
	args = append(args, opts.Limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unitColumns+` FROM memory_units m
		WHERE `+where+`
		ORDER BY m.event_date DESC, m.id ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	units := []types.MemoryUnit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: recent units: %w", err)
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

// UpsertEntity finds or creates the agent's entity with a matching canonical name.
func (s *MemoryStore) UpsertEntity(ctx context.Context, agentID, name string, aliases []string) (*types.Entity, error) {
	key := types.CanonicalKey(name)
	if agentID == "" || key == "" {
		return nil, fmt.Errorf("%w: agent ID and entity name are required", storage.ErrInvalidInput)
	}

	var entity *types.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			id          types.NodeID
			canonical   string
			aliasesJSON string
			created     int64
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, canonical_name, aliases, created_at FROM entities
			WHERE agent_id = ? AND canonical_key = ?
		`, agentID, key).Scan(&id, &canonical, &aliasesJSON, &created)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err = insertNode(ctx, tx, agentID, types.NodeEntity)
			if err != nil {
				return err
			}
			merged := types.MergeAliases(name, nil, aliases)
			encoded, err := encodeAliases(merged)
			if err != nil {
				return err
			}
			now := time.Now()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities (id, agent_id, canonical_key, canonical_name, aliases, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, id, agentID, key, name, encoded, now.UnixMilli()); err != nil {
				return err
			}
			entity = &types.Entity{ID: id, AgentID: agentID, CanonicalName: name, Aliases: merged, CreatedAt: now.UTC()}
			return nil

		case err != nil:
			return err
		}

		existing, err := decodeAliases(aliasesJSON)
		if err != nil {
			return err
		}
		merged := types.MergeAliases(canonical, existing, append([]string{name}, aliases...))
		if len(merged) != len(existing) {
			encoded, err := encodeAliases(merged)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE entities SET aliases = ? WHERE id = ?`, encoded, id); err != nil {
				return err
			}
		}
		entity = &types.Entity{ID: id, AgentID: agentID, CanonicalName: canonical, Aliases: merged, CreatedAt: time.UnixMilli(created).UTC()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: upsert entity: %w", err)
	}
	return entity, nil
}

// AddLinks inserts links, keeping the larger weight on conflict.
func (s *MemoryStore) AddLinks(ctx context.Context, agentID string, links []types.Link) error {
	if len(links) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, l := range links {
			var owned int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM nodes WHERE agent_id = ? AND id IN (?, ?)`,
				agentID, l.SourceID, l.TargetID).Scan(&owned); err != nil {
				return err
			}
			want := 2
			if l.SourceID == l.TargetID {
				want = 1
			}
			if owned != want {
				return fmt.Errorf("%w: link %d->%d crosses agent boundary", storage.ErrInvalidInput, l.SourceID, l.TargetID)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO links (source_id, target_id, link_type, weight, agent_id)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(source_id, target_id, link_type) DO UPDATE SET weight = MAX(weight, excluded.weight)
			`, l.SourceID, l.TargetID, l.Type, types.ClampWeight(l.Weight), agentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: add links: %w", err)
	}
	return nil
}

// Neighbors returns the outgoing links of a node sorted by target, then type.
func (s *MemoryStore) Neighbors(ctx context.Context, agentID string, id types.NodeID) ([]types.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, link_type, weight FROM links
		WHERE agent_id = ? AND source_id = ?
		ORDER BY target_id ASC, link_type ASC
	`, agentID, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: neighbors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []types.Link
	for rows.Next() {
		var l types.Link
		if err := rows.Scan(&l.SourceID, &l.TargetID, &l.Type, &l.Weight); err != nil {
			return nil, fmt.Errorf("sqlite: neighbors: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *MemoryStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertNode(ctx context.Context, tx *sql.Tx, agentID string, kind types.NodeKind) (types.NodeID, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO nodes (agent_id, kind) VALUES (?, ?)`, agentID, string(kind))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return types.NodeID(id), nil
}

// deleteDocumentUnits removes a document's units, their links and nodes.
// Units are deleted before their nodes so the FTS triggers observe each row.
func deleteDocumentUnits(ctx context.Context, tx *sql.Tx, agentID, documentID string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM memory_units WHERE agent_id = ? AND document_id = ?`, agentID, documentID)
	if err != nil {
		return err
	}
	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	in := placeholders(len(ids))
	linkArgs := append(append([]any{}, ids...), ids...)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM links WHERE source_id IN (`+in+`) OR target_id IN (`+in+`)`, linkArgs...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_units WHERE id IN (`+in+`)`, ids...); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM nodes WHERE id IN (`+in+`)`, ids...)
	return err
}

// unitFilter builds the WHERE clause shared by unit queries.
func unitFilter(agentID string, opts storage.SearchOptions) (string, []any) {
	where := "m.agent_id = ?"
	args := []any{agentID}
	if len(opts.FactTypes) > 0 {
		where += " AND m.fact_type IN (" + placeholders(len(opts.FactTypes)) + ")"
		for _, ft := range opts.FactTypes {
			args = append(args, string(ft))
		}
	}
	return where, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
