package engine

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/scrypster/memora/internal/textutil"
	"github.com/scrypster/memora/pkg/types"
)

// FusionWeights combine the normalized strategy scores into one.
type FusionWeights struct {
	Semantic float64 `json:"semantic" yaml:"semantic"`
	Lexical  float64 `json:"lexical" yaml:"lexical"`
	Graph    float64 `json:"graph" yaml:"graph"`
	Temporal float64 `json:"temporal" yaml:"temporal"`
}

// DefaultFusionWeights returns 0.30 / 0.25 / 0.25 / 0.20.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Semantic: 0.30, Lexical: 0.25, Graph: 0.25, Temporal: 0.20}
}

// Validate requires finite, non-negative weights with a positive sum.
func (w FusionWeights) Validate() error {
	sum := 0.0
	for _, s := range types.AllStrategies {
		v := w.Of(s)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("fusion weight %s must be finite and >= 0, got %v", s, v)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("fusion weights must have a positive sum")
	}
	return nil
}

// Of returns the weight of strategy s.
func (w FusionWeights) Of(s types.Strategy) float64 {
	switch s {
	case types.StrategySemantic:
		return w.Semantic
	case types.StrategyLexical:
		return w.Lexical
	case types.StrategyGraph:
		return w.Graph
	case types.StrategyTemporal:
		return w.Temporal
	}
	return 0
}

// fuse merges per-strategy candidate lists into one ranked list.
//
// Each strategy's list is deduped by node (max raw score wins) and min-max
// normalized; the fused score is the weighted sum of normalized scores, with
// a missing strategy contributing 0. Results are ordered by score
// descending, event date descending, then id ascending.
func fuse(lists map[types.Strategy][]candidate, weights FusionWeights, withTrace bool) []types.SearchResult {
	merged := make(map[types.NodeID]*types.SearchResult)

	for _, s := range types.AllStrategies {
		best := dedupe(lists[s])
		if len(best) == 0 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, c := range best {
			lo = math.Min(lo, c.score)
			hi = math.Max(hi, c.score)
		}

		for _, c := range best {
			norm := normalize(c.score, lo, hi)
			r, ok := merged[c.unit.ID]
			if !ok {
				r = newSearchResult(c.unit)
				merged[c.unit.ID] = r
				if withTrace {
					r.Trace = &types.ResultTrace{}
				}
			}
			r.Scores[s] = types.StrategyScore{Raw: c.score, Normalized: norm}
			if withTrace {
				r.Trace.Strategies = append(r.Trace.Strategies, s)
				if s == types.StrategyGraph && c.hop != nil {
					hop := *c.hop
					r.Trace.GraphHop = &hop
				}
			}
		}
	}

	out := make([]types.SearchResult, 0, len(merged))
	for _, r := range merged {
		// Summed in fixed strategy order so the float result is reproducible.
		score := 0.0
		for _, s := range types.AllStrategies {
			if sc, ok := r.Scores[s]; ok {
				score += weights.Of(s) * sc.Normalized
			}
		}
		r.Score = score
		out = append(out, *r)
	}
	slices.SortFunc(out, compareFused)
	return out
}

// dedupe keeps the highest-scoring candidate per node, ordered by id.
func dedupe(cands []candidate) []candidate {
	byID := make(map[types.NodeID]candidate, len(cands))
	for _, c := range cands {
		if math.IsNaN(c.score) {
			continue
		}
		if prev, ok := byID[c.unit.ID]; !ok || c.score > prev.score {
			byID[c.unit.ID] = c
		}
	}
	out := make([]candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b candidate) int { return cmp.Compare(a.unit.ID, b.unit.ID) })
	return out
}

// normalize maps v from [lo,hi] onto [0,1]. A degenerate range maps
// positive values to 1 and everything else to 0.
func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		if v > 0 {
			return 1
		}
		return 0
	}
	return (v - lo) / (hi - lo)
}

func newSearchResult(u types.MemoryUnit) *types.SearchResult {
	return &types.SearchResult{
		ID:         u.ID,
		Kind:       types.NodeMemoryUnit,
		Content:    u.Content,
		Context:    u.Context,
		DocumentID: u.DocumentID,
		FactType:   u.FactType,
		EventDate:  u.EventDate,
		Metadata:   u.Metadata,
		Scores:     make(map[types.Strategy]types.StrategyScore, len(types.AllStrategies)),
	}
}

func compareFused(a, b types.SearchResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.EventDate.Compare(a.EventDate); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// truncateByTokens keeps results in order until the next one would exceed
// maxTokens. It returns the kept results and the number dropped.
func truncateByTokens(results []types.SearchResult, maxTokens int) ([]types.SearchResult, int) {
	used := 0
	for i, r := range results {
		cost := textutil.EstimateTokens(r.Content)
		if used+cost > maxTokens {
			return results[:i], len(results) - i
		}
		used += cost
	}
	return results, 0
}
