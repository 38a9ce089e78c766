// Package memstore provides an in-process implementation of the storage
// interfaces. Each agent's graph is an arena of nodes addressed by NodeID,
// published as a copy-on-write snapshot so searches never wait on ingestion.
// Embeddings are indexed in per-agent chromem-go collections.
package memstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/internal/textutil"
	"github.com/scrypster/memora/pkg/types"
)

// Ensure *Store implements storage.MemoryStore at compile time.
var _ storage.MemoryStore = (*Store)(nil)

// BM25 parameters for LexicalSearch.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bruteForceLimit is the collection size up to which VectorSearch asks
// chromem for every document and filters afterwards.
const bruteForceLimit = 2048

// Store is an in-memory storage.MemoryStore.
type Store struct {
	// writeMu serialises writers. Readers only touch snapshots.
	writeMu sync.Mutex

	agentsMu sync.RWMutex
	agents   map[string]*atomic.Pointer[agentGraph]

	nextID atomic.Int64

	vectors *chromem.DB
	logger  *log.Logger
}

// New creates an empty store.
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		agents:  make(map[string]*atomic.Pointer[agentGraph]),
		vectors: chromem.NewDB(),
		logger:  logger.With("component", "memstore"),
	}
}

// Close is a no-op; everything lives in memory.
func (s *Store) Close() error {
	return nil
}

// snapshot returns the current graph of an agent, or nil if unknown.
func (s *Store) snapshot(agentID string) *agentGraph {
	s.agentsMu.RLock()
	ptr, ok := s.agents[agentID]
	s.agentsMu.RUnlock()
	if !ok {
		return nil
	}
	return ptr.Load()
}

// mutate applies fn to a private copy of the agent's graph and publishes it.
// Must not be called for unknown agents.
func (s *Store) mutate(agentID string, fn func(g *agentGraph) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.agentsMu.RLock()
	ptr, ok := s.agents[agentID]
	s.agentsMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: agent %q", storage.ErrNotFound, agentID)
	}

	next := ptr.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	ptr.Store(next)
	return nil
}

func (s *Store) newID() types.NodeID {
	return types.NodeID(s.nextID.Add(1))
}

func collectionName(agentID string) string {
	return "agent_" + agentID
}

// collection returns the agent's vector collection, creating it on first use.
func (s *Store) collection(agentID string) (*chromem.Collection, error) {
	col, err := s.vectors.GetOrCreateCollection(collectionName(agentID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memstore: vector collection: %w", err)
	}
	return col, nil
}

// EnsureAgent registers the agent if it is not known yet.
func (s *Store) EnsureAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agent ID is required", storage.ErrInvalidInput)
	}
	s.agentsMu.Lock()
	defer s.agentsMu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		ptr := &atomic.Pointer[agentGraph]{}
		ptr.Store(newAgentGraph())
		s.agents[agentID] = ptr
	}
	return nil
}

// AgentExists reports whether the agent has been registered.
func (s *Store) AgentExists(ctx context.Context, agentID string) (bool, error) {
	return s.snapshot(agentID) != nil, nil
}

// ListAgents returns all registered agent ids in ascending order.
func (s *Store) ListAgents(ctx context.Context) ([]string, error) {
	s.agentsMu.RLock()
	defer s.agentsMu.RUnlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteAgent drops the agent's graph and vector collection.
func (s *Store) DeleteAgent(ctx context.Context, agentID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.agentsMu.Lock()
	_, ok := s.agents[agentID]
	delete(s.agents, agentID)
	s.agentsMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: agent %q", storage.ErrNotFound, agentID)
	}

	if err := s.vectors.DeleteCollection(collectionName(agentID)); err != nil {
		s.logger.Warn("failed to drop vector collection", "agent", agentID, "err", err)
	}
	return nil
}

// Counts returns node, link and document totals for the agent.
func (s *Store) Counts(ctx context.Context, agentID string) (*storage.AgentCounts, error) {
	g := s.snapshot(agentID)
	if g == nil {
		return &storage.AgentCounts{}, nil
	}
	return &storage.AgentCounts{
		MemoryUnits: len(g.units),
		Entities:    len(g.entities),
		Links:       g.linkCount,
		Documents:   len(g.documents),
	}, nil
}

// ReplaceDocument atomically swaps the units stored under documentID.
func (s *Store) ReplaceDocument(ctx context.Context, agentID, documentID string, units []*types.MemoryUnit) ([]types.NodeID, error) {
	if agentID == "" || documentID == "" {
		return nil, fmt.Errorf("%w: agent ID and document ID are required", storage.ErrInvalidInput)
	}

	var (
		ids     []types.NodeID
		removed []types.NodeID
	)
	err := s.mutate(agentID, func(g *agentGraph) error {
		now := time.Now().UTC()
		if old, ok := g.documents[documentID]; ok {
			removed = old.UnitIDs
			g.removeNodes(removed)
		}

		ids = make([]types.NodeID, 0, len(units))
		for _, u := range units {
			u.ID = s.newID()
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
			stored := *u
			stored.Metadata = cloneMetadata(u.Metadata)
			g.addUnit(&stored)
			ids = append(ids, u.ID)
		}
		g.documents[documentID] = &types.Document{
			ID:        documentID,
			AgentID:   agentID,
			UnitIDs:   slices.Clone(ids),
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dropVectors(ctx, agentID, removed)
	return ids, nil
}

// GetDocument returns the document and the ids of its live units.
func (s *Store) GetDocument(ctx context.Context, agentID, documentID string) (*types.Document, error) {
	g := s.snapshot(agentID)
	if g == nil {
		return nil, fmt.Errorf("%w: document %q", storage.ErrNotFound, documentID)
	}
	doc, ok := g.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: document %q", storage.ErrNotFound, documentID)
	}
	out := *doc
	out.UnitIDs = slices.Clone(doc.UnitIDs)
	return &out, nil
}

// DeleteDocument removes the document, its units and their links.
func (s *Store) DeleteDocument(ctx context.Context, agentID, documentID string) error {
	var removed []types.NodeID
	err := s.mutate(agentID, func(g *agentGraph) error {
		doc, ok := g.documents[documentID]
		if !ok {
			return fmt.Errorf("%w: document %q", storage.ErrNotFound, documentID)
		}
		removed = doc.UnitIDs
		g.removeNodes(removed)
		delete(g.documents, documentID)
		return nil
	})
	if err != nil {
		return err
	}
	s.dropVectors(ctx, agentID, removed)
	return nil
}

func (s *Store) dropVectors(ctx context.Context, agentID string, ids []types.NodeID) {
	if len(ids) == 0 {
		return
	}
	col := s.vectors.GetCollection(collectionName(agentID), nil)
	if col == nil {
		return
	}
	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = strconv.FormatInt(int64(id), 10)
	}
	if err := col.Delete(ctx, nil, nil, docIDs...); err != nil {
		s.logger.Warn("failed to delete vectors", "agent", agentID, "count", len(docIDs), "err", err)
	}
}

// GetUnit returns a single memory unit.
func (s *Store) GetUnit(ctx context.Context, agentID string, id types.NodeID) (*types.MemoryUnit, error) {
	g := s.snapshot(agentID)
	if g == nil {
		return nil, fmt.Errorf("%w: memory unit %d", storage.ErrNotFound, id)
	}
	u, ok := g.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: memory unit %d", storage.ErrNotFound, id)
	}
	out := copyUnit(u)
	return &out, nil
}

// GetUnits returns the existing units among ids in the order of ids.
func (s *Store) GetUnits(ctx context.Context, agentID string, ids []types.NodeID) ([]types.MemoryUnit, error) {
	out := []types.MemoryUnit{}
	g := s.snapshot(agentID)
	if g == nil {
		return out, nil
	}
	seen := make(map[types.NodeID]bool, len(ids))
	for _, id := range ids {
		if u, ok := g.units[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, copyUnit(u))
		}
	}
	return out, nil
}

// SetUnitEmbedding stores the embedding on the unit and in the agent's
// vector collection.
func (s *Store) SetUnitEmbedding(ctx context.Context, agentID string, id types.NodeID, embedding []float32) error {
	var unit types.MemoryUnit
	err := s.mutate(agentID, func(g *agentGraph) error {
		u, ok := g.units[id]
		if !ok {
			return fmt.Errorf("%w: memory unit %d", storage.ErrNotFound, id)
		}
		updated := *u
		updated.Embedding = slices.Clone(embedding)
		g.units[id] = &updated
		unit = updated
		return nil
	})
	if err != nil {
		return err
	}

	if storage.IsZeroVector(embedding) {
		return nil
	}
	col, err := s.collection(agentID)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        strconv.FormatInt(int64(id), 10),
		Content:   unit.Content,
		Embedding: slices.Clone(embedding),
		Metadata:  map[string]string{"fact_type": string(unit.FactType)},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("memstore: index embedding: %w", err)
	}
	return nil
}

// SetUnitStatus updates the indexing status of a unit.
func (s *Store) SetUnitStatus(ctx context.Context, agentID string, id types.NodeID, status types.UnitStatus) error {
	return s.mutate(agentID, func(g *agentGraph) error {
		u, ok := g.units[id]
		if !ok {
			return fmt.Errorf("%w: memory unit %d", storage.ErrNotFound, id)
		}
		updated := *u
		updated.Status = status
		g.units[id] = &updated
		return nil
	})
}

// RecentUnits returns units ordered by event date descending, then id ascending.
func (s *Store) RecentUnits(ctx context.Context, agentID string, opts storage.SearchOptions) ([]types.MemoryUnit, error) {
	opts.Normalize()
	out := []types.MemoryUnit{}
	g := s.snapshot(agentID)
	if g == nil {
		return out, nil
	}
	for _, u := range g.units {
		if opts.MatchesFactType(u.FactType) {
			out = append(out, copyUnit(u))
		}
	}
	storage.SortRecent(out)
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// UpsertEntity finds or creates the agent's entity with a matching canonical name.
func (s *Store) UpsertEntity(ctx context.Context, agentID, name string, aliases []string) (*types.Entity, error) {
	key := types.CanonicalKey(name)
	if agentID == "" || key == "" {
		return nil, fmt.Errorf("%w: agent ID and entity name are required", storage.ErrInvalidInput)
	}

	var out types.Entity
	err := s.mutate(agentID, func(g *agentGraph) error {
		if id, ok := g.entityByKey[key]; ok {
			existing := g.entities[id]
			merged := types.MergeAliases(existing.CanonicalName, existing.Aliases, append([]string{name}, aliases...))
			updated := *existing
			updated.Aliases = merged
			g.entities[id] = &updated
			out = updated
			return nil
		}
		e := &types.Entity{
			ID:            s.newID(),
			AgentID:       agentID,
			CanonicalName: name,
			Aliases:       types.MergeAliases(name, nil, aliases),
			CreatedAt:     time.Now().UTC(),
		}
		g.entities[e.ID] = e
		g.entityByKey[key] = e.ID
		out = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Aliases = slices.Clone(out.Aliases)
	return &out, nil
}

// AddLinks inserts links, keeping the larger weight on conflict.
func (s *Store) AddLinks(ctx context.Context, agentID string, links []types.Link) error {
	if len(links) == 0 {
		return nil
	}
	return s.mutate(agentID, func(g *agentGraph) error {
		for _, l := range links {
			if !g.hasNode(l.SourceID) || !g.hasNode(l.TargetID) {
				return fmt.Errorf("%w: link %d->%d crosses agent boundary", storage.ErrInvalidInput, l.SourceID, l.TargetID)
			}
			l.Weight = types.ClampWeight(l.Weight)
			g.upsertLink(l)
		}
		return nil
	})
}

// Neighbors returns the outgoing links of a node sorted by target, then type.
func (s *Store) Neighbors(ctx context.Context, agentID string, id types.NodeID) ([]types.Link, error) {
	g := s.snapshot(agentID)
	if g == nil {
		return nil, nil
	}
	return slices.Clone(g.adjacency[id]), nil
}

// LexicalSearch scores units with Okapi BM25 over prefix-matched query terms.
func (s *Store) LexicalSearch(ctx context.Context, agentID, query string, opts storage.SearchOptions) ([]storage.ScoredUnit, error) {
	opts.Normalize()
	results := []storage.ScoredUnit{}
	g := s.snapshot(agentID)
	terms := textutil.UniqueTerms(query)
	if g == nil || len(terms) == 0 || len(g.units) == 0 {
		return results, nil
	}

	// Per-unit matched frequency of each query term.
	type match struct {
		id  types.NodeID
		tfs []int
		len int
	}
	var (
		matches  []match
		totalLen int
		df       = make([]int, len(terms))
	)
	for id, tf := range g.terms {
		docLen := 0
		for _, n := range tf {
			docLen += n
		}
		totalLen += docLen

		u := g.units[id]
		if u == nil || !opts.MatchesFactType(u.FactType) {
			continue
		}
		m := match{id: id, tfs: make([]int, len(terms)), len: docLen}
		hit := false
		for tok, n := range tf {
			for i, term := range terms {
				if strings.HasPrefix(tok, term) {
					m.tfs[i] += n
					hit = true
				}
			}
		}
		if hit {
			for i, n := range m.tfs {
				if n > 0 {
					df[i]++
				}
			}
			matches = append(matches, m)
		}
	}

	n := float64(len(g.terms))
	avgLen := float64(totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}
	for _, m := range matches {
		score := 0.0
		for i, tf := range m.tfs {
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[i])+0.5)/(float64(df[i])+0.5))
			f := float64(tf)
			score += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(m.len)/avgLen))
		}
		results = append(results, storage.ScoredUnit{Unit: copyUnit(g.units[m.id]), Score: score})
	}

	storage.SortScored(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// VectorSearch queries the agent's chromem collection and keeps results
// that are still live in the current snapshot.
func (s *Store) VectorSearch(ctx context.Context, agentID string, query []float32, opts storage.SearchOptions) ([]storage.ScoredUnit, error) {
	opts.Normalize()
	results := []storage.ScoredUnit{}
	g := s.snapshot(agentID)
	if g == nil || storage.IsZeroVector(query) {
		return results, nil
	}
	col := s.vectors.GetCollection(collectionName(agentID), nil)
	if col == nil {
		return results, nil
	}

	// chromem requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return results, nil
	}
	nResults := count
	if count > bruteForceLimit {
		nResults = min(count, opts.Limit*8)
	}

	hits, err := col.QueryEmbedding(ctx, query, nResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memstore: vector search: %w", err)
	}

	for _, hit := range hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		u, ok := g.units[types.NodeID(id)]
		if !ok || !opts.MatchesFactType(u.FactType) || hit.Similarity <= 0 {
			continue
		}
		results = append(results, storage.ScoredUnit{Unit: copyUnit(u), Score: float64(hit.Similarity)})
	}

	storage.SortScored(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func copyUnit(u *types.MemoryUnit) types.MemoryUnit {
	out := *u
	out.Embedding = slices.Clone(u.Embedding)
	out.Metadata = cloneMetadata(u.Metadata)
	return out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
