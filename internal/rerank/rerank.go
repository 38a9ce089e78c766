// Package rerank reorders fused search results. The variants form a closed
// set selected by tag: a cheap Heuristic and a CrossEncoder that scores
// (query, document) pairs jointly, always wrapped in a heuristic fallback.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/memora/internal/textutil"
	"github.com/scrypster/memora/pkg/types"
)

// Reranker tags accepted by Select.
const (
	TagHeuristic    = "heuristic"
	TagCrossEncoder = "cross-encoder"
)

var (
	// ErrUnknownReranker is returned by Select for an unsupported tag.
	ErrUnknownReranker = errors.New("unknown reranker")

	// ErrModelUnavailable is returned by a CrossEncoder with no scorer.
	ErrModelUnavailable = errors.New("cross-encoder model unavailable")
)

// Reranker rescores and reorders results. It returns the same multiset of
// results it was given.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error)
	Name() string
}

// PairScorer scores each document's relevance to query. The returned slice
// is parallel to docs.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, docs []string) ([]float64, error)
}

// sortResults orders by score descending, then id ascending.
func sortResults(results []types.SearchResult) {
	slices.SortStableFunc(results, func(a, b types.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// Heuristic blends the fused score with query term overlap and recency:
// 0.6·score + 0.3·overlap + 0.1·recency.
type Heuristic struct {
	HalfLife time.Duration
	Now      func() time.Time
}

// NewHeuristic creates a Heuristic with the given recency half-life.
func NewHeuristic(halfLife time.Duration) *Heuristic {
	if halfLife <= 0 {
		halfLife = 30 * 24 * time.Hour
	}
	return &Heuristic{HalfLife: halfLife, Now: time.Now}
}

// Name implements Reranker.
func (h *Heuristic) Name() string { return TagHeuristic }

// Rerank implements Reranker. It never fails.
func (h *Heuristic) Rerank(_ context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error) {
	out := slices.Clone(results)
	terms := textutil.UniqueTerms(query)
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}

	for i := range out {
		r := &out[i]
		r.Score = 0.6*r.Score + 0.3*termOverlap(terms, r.Content) + 0.1*h.recency(now, r.EventDate)
	}
	sortResults(out)
	return out, nil
}

func (h *Heuristic) recency(now, event time.Time) float64 {
	age := now.Sub(event)
	if age < 0 {
		age = 0
	}
	if h.HalfLife <= 0 {
		return 0
	}
	return math.Exp2(-float64(age) / float64(h.HalfLife))
}

// termOverlap is the share of query terms present in content.
func termOverlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, t := range textutil.Terms(content) {
		present[t] = true
	}
	hits := 0
	for _, t := range terms {
		if present[t] {
			hits++
			continue
		}
		// Prefix match lets "live" hit "lives" and "living".
		for p := range present {
			if strings.HasPrefix(p, t) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(terms))
}

// CrossEncoder replaces each score with a PairScorer's relevance.
type CrossEncoder struct {
	Scorer PairScorer
}

// Name implements Reranker.
func (c *CrossEncoder) Name() string { return TagCrossEncoder }

// Rerank implements Reranker.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error) {
	if c == nil || c.Scorer == nil {
		return nil, ErrModelUnavailable
	}
	if len(results) == 0 {
		return []types.SearchResult{}, nil
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Content
	}
	scores, err := c.Scorer.ScorePairs(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder: %w", err)
	}
	if len(scores) != len(results) {
		return nil, fmt.Errorf("cross-encoder: got %d scores for %d documents", len(scores), len(results))
	}

	out := slices.Clone(results)
	for i := range out {
		s := scores[i]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("cross-encoder: non-finite score for document %d", i)
		}
		out[i].Score = s
	}
	sortResults(out)
	return out, nil
}

// Fallback runs Primary and, if it fails, logs and returns Secondary's result.
type Fallback struct {
	Primary   Reranker
	Secondary Reranker
	logger    *log.Logger
}

// WithFallback wraps primary so that its failures degrade to secondary.
func WithFallback(primary, secondary Reranker, logger *log.Logger) *Fallback {
	if logger == nil {
		logger = log.Default()
	}
	return &Fallback{Primary: primary, Secondary: secondary, logger: logger.With("component", "rerank")}
}

// Name reports the primary's name.
func (f *Fallback) Name() string { return f.Primary.Name() }

// Rerank implements Reranker. The secondary is expected not to fail; if it
// does, the input order is returned unchanged.
func (f *Fallback) Rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error) {
	out, _ := f.rerank(ctx, query, results)
	return out, nil
}

// rerank also names the variant whose order was returned.
func (f *Fallback) rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, string) {
	out, err := f.Primary.Rerank(ctx, query, results)
	if err == nil {
		return out, f.Primary.Name()
	}
	f.logger.Warn("reranker failed, using fallback", "primary", f.Primary.Name(), "fallback", f.Secondary.Name(), "err", err)

	out, err = f.Secondary.Rerank(ctx, query, results)
	if err != nil {
		f.logger.Error("fallback reranker failed, keeping fused order", "err", err)
		return slices.Clone(results), FusedOrder
	}
	return out, f.Secondary.Name()
}

// FusedOrder names the outcome where no variant reranked and the fused
// order was kept.
const FusedOrder = "fused"

// Run reranks results with r and reports which variant's order came back.
// For a Fallback whose primary failed that is the secondary.
func Run(ctx context.Context, r Reranker, query string, results []types.SearchResult) ([]types.SearchResult, string, error) {
	if f, ok := r.(*Fallback); ok {
		out, used := f.rerank(ctx, query, results)
		return out, used, nil
	}
	out, err := r.Rerank(ctx, query, results)
	if err != nil {
		return nil, "", err
	}
	return out, r.Name(), nil
}

// Set holds the configured variants.
type Set struct {
	heuristic    *Heuristic
	crossEncoder Reranker
}

// NewSet builds the variant set. scorer may be nil; the cross-encoder then
// always falls back to the heuristic.
func NewSet(halfLife time.Duration, scorer PairScorer, logger *log.Logger) *Set {
	h := NewHeuristic(halfLife)
	return &Set{
		heuristic:    h,
		crossEncoder: WithFallback(&CrossEncoder{Scorer: scorer}, h, logger),
	}
}

// Heuristic returns the heuristic variant.
func (s *Set) Heuristic() *Heuristic { return s.heuristic }

// Select resolves a request tag. The empty tag selects the heuristic.
func (s *Set) Select(tag string) (Reranker, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", TagHeuristic:
		return s.heuristic, nil
	case TagCrossEncoder, "cross_encoder":
		return s.crossEncoder, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReranker, tag)
	}
}
