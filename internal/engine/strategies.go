package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/pkg/types"
)

// candidate is one strategy's scored memory unit.
type candidate struct {
	unit  types.MemoryUnit
	score float64
	hop   *int // graph strategy only
}

// retrievalQuery is the request-scoped state shared by the strategies of
// one fan-out.
type retrievalQuery struct {
	agentID   string
	query     string
	factTypes []types.FactType
	budget    int
	maxTokens int
	limit     int
	now       time.Time

	seeds *seedBoard

	// activation is written by the graph strategy and read after the
	// fan-out has joined.
	activation *ActivationTrace
}

func (q *retrievalQuery) searchOptions() storage.SearchOptions {
	return storage.SearchOptions{FactTypes: q.factTypes, Limit: q.limit}
}

// strategyFunc produces candidates for one strategy.
type strategyFunc func(ctx context.Context, q *retrievalQuery) ([]candidate, error)

// seedSlot is published exactly once by a seed-producing strategy.
type seedSlot struct {
	once sync.Once
	done chan struct{}
	ids  []types.NodeID
	err  error
}

func (s *seedSlot) publish(ids []types.NodeID, err error) {
	s.once.Do(func() {
		s.ids, s.err = ids, err
		close(s.done)
	})
}

// seedBoard collects graph seeds from the semantic and lexical strategies.
type seedBoard struct {
	semantic seedSlot
	lexical  seedSlot
}

func newSeedBoard() *seedBoard {
	return &seedBoard{
		semantic: seedSlot{done: make(chan struct{})},
		lexical:  seedSlot{done: make(chan struct{})},
	}
}

func (b *seedBoard) slot(s types.Strategy) *seedSlot {
	switch s {
	case types.StrategySemantic:
		return &b.semantic
	case types.StrategyLexical:
		return &b.lexical
	}
	return nil
}

// wait blocks until both publishers are done or ctx ends. It fails only
// when both seed sources failed.
func (b *seedBoard) wait(ctx context.Context) ([]types.NodeID, error) {
	for _, s := range []*seedSlot{&b.semantic, &b.lexical} {
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for graph seeds: %w", ctx.Err())
		}
	}
	if b.semantic.err != nil && b.lexical.err != nil {
		return nil, fmt.Errorf("no graph seeds: %w", errors.Join(b.semantic.err, b.lexical.err))
	}
	seeds := make([]types.NodeID, 0, len(b.semantic.ids)+len(b.lexical.ids))
	seeds = append(seeds, b.semantic.ids...)
	seeds = append(seeds, b.lexical.ids...)
	return seeds, nil
}

// topIDs returns the ids of the first n candidates.
func topIDs(cands []candidate, n int) []types.NodeID {
	ids := make([]types.NodeID, 0, min(n, len(cands)))
	for _, c := range cands {
		if len(ids) == n {
			break
		}
		ids = append(ids, c.unit.ID)
	}
	return ids
}

func scoredToCandidates(scored []storage.ScoredUnit) []candidate {
	out := make([]candidate, len(scored))
	for i, s := range scored {
		out[i] = candidate{unit: s.Unit, score: s.Score}
	}
	return out
}

// semanticStrategy ranks units by cosine similarity to the query embedding.
func (e *MemoryEngine) semanticStrategy(ctx context.Context, q *retrievalQuery) ([]candidate, error) {
	vec, err := e.embedQuery(ctx, q.agentID, q.query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if storage.IsZeroVector(vec) {
		return nil, nil
	}
	scored, err := e.store.VectorSearch(ctx, q.agentID, vec, q.searchOptions())
	if err != nil {
		return nil, err
	}
	out := scoredToCandidates(scored)
	for i := range out {
		out[i].score = math.Min(math.Max(out[i].score, 0), 1)
	}
	return out, nil
}

// lexicalStrategy ranks units with the store's BM25 scoring.
func (e *MemoryEngine) lexicalStrategy(ctx context.Context, q *retrievalQuery) ([]candidate, error) {
	scored, err := e.store.LexicalSearch(ctx, q.agentID, q.query, q.searchOptions())
	if err != nil {
		return nil, err
	}
	return scoredToCandidates(scored), nil
}

// temporalStrategy scores the most recent units by half-life decay.
func (e *MemoryEngine) temporalStrategy(ctx context.Context, q *retrievalQuery) ([]candidate, error) {
	units, err := e.store.RecentUnits(ctx, q.agentID, q.searchOptions())
	if err != nil {
		return nil, err
	}
	out := make([]candidate, len(units))
	for i, u := range units {
		out[i] = candidate{unit: u, score: TemporalScore(q.now, u.EventDate, e.config.TemporalHalfLife)}
	}
	return out, nil
}

// graphStrategy spreads activation from the semantic and lexical seeds.
// Entities carry activation between units but are not returned.
func (e *MemoryEngine) graphStrategy(ctx context.Context, q *retrievalQuery) ([]candidate, error) {
	seeds, err := q.seeds.wait(ctx)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	res, err := SpreadActivation(ctx, seeds, e.config.activationBounds(q.budget),
		func(ctx context.Context, id types.NodeID) ([]types.Link, error) {
			return e.store.Neighbors(ctx, q.agentID, id)
		})
	if err != nil {
		return nil, err
	}
	q.activation = &ActivationTrace{
		Seeds:     len(seeds),
		Visits:    res.Visits,
		Activated: len(res.Nodes),
		Exhausted: res.Exhausted,
		Cancelled: res.Cancelled,
	}
	if len(res.Nodes) == 0 {
		if res.Cancelled {
			return nil, ctx.Err()
		}
		return nil, nil
	}

	ids := make([]types.NodeID, len(res.Nodes))
	for i, n := range res.Nodes {
		ids[i] = n.ID
	}
	// The traversal may have been cut short by the deadline; the unit
	// lookup still gets to run so partial activation is not wasted.
	lookupCtx := ctx
	if res.Cancelled {
		lookupCtx = context.WithoutCancel(ctx)
	}
	units, err := e.store.GetUnits(lookupCtx, q.agentID, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[types.NodeID]ActivatedNode, len(res.Nodes))
	for _, n := range res.Nodes {
		byID[n.ID] = n
	}
	opts := q.searchOptions()
	out := make([]candidate, 0, min(len(units), q.limit))
	for _, u := range units {
		if len(out) == q.limit {
			break
		}
		if !opts.MatchesFactType(u.FactType) {
			continue
		}
		n := byID[u.ID]
		hop := n.Hop
		out = append(out, candidate{unit: u, score: n.Activation, hop: &hop})
	}
	return out, nil
}

// embedQuery returns the query embedding, consulting the cache first.
func (e *MemoryEngine) embedQuery(ctx context.Context, agentID, query string) ([]float32, error) {
	model := e.embedder.GetModel()
	if vec, ok := e.embeddings.get(agentID, model, query); ok {
		return vec, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	e.embeddings.set(agentID, model, query, vec)
	return vec, nil
}
