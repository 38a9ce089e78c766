package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/memora/internal/rerank"
	"github.com/scrypster/memora/pkg/types"
)

// Search retrieves the agent's memories most relevant to req.Query.
//
// Four strategies run concurrently; their candidates are fused, truncated
// to MaxTokens and reranked. Failed strategies are reported in the trace
// and only fail the call when none succeeded.
func (e *MemoryEngine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	resp, trace, err := e.search(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Trace {
		resp.Trace = trace
	}
	return resp, nil
}

// search always builds the trace; callers decide whether to expose it.
func (e *MemoryEngine) search(ctx context.Context, req SearchRequest) (*SearchResponse, *SearchTrace, error) {
	q, reranker, err := e.prepareSearch(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	outcomes, err := e.retrieve(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	trace := newSearchTrace(q, outcomes)

	lists := make(map[types.Strategy][]candidate, len(outcomes))
	for _, o := range outcomes {
		if o.err == nil {
			lists[o.strategy] = o.candidates
		}
	}
	fused := fuse(lists, e.config.Weights, req.Trace)
	trace.Fused = len(fused)
	trace.Events = append(trace.Events, EventCandidatesFused(len(fused)))

	results, dropped := truncateByTokens(fused, q.maxTokens)
	trace.Dropped = dropped
	if dropped > 0 {
		trace.Events = append(trace.Events, EventTruncated(dropped))
	}

	used := reranker.Name()
	if len(results) > 0 {
		reranked, ran, rerr := rerank.Run(ctx, reranker, q.query, results)
		if rerr != nil {
			// Only a bare variant can fail here; keep the fused order.
			e.logger.Warn("rerank failed, keeping fused order", "reranker", reranker.Name(), "err", rerr)
			used = rerank.FusedOrder
		} else {
			results, used = reranked, ran
		}
	}
	trace.Reranker = used
	trace.RerankFellBack = used != reranker.Name()
	trace.Events = append(trace.Events, EventReranked(used, len(results)))

	ids := make([]types.NodeID, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	trace.Events = append(trace.Events, EventResultsReturned(ids))

	if results == nil {
		results = []types.SearchResult{}
	}
	return &SearchResponse{Results: results}, trace, nil
}

// prepareSearch validates req and resolves defaults.
func (e *MemoryEngine) prepareSearch(ctx context.Context, req SearchRequest) (*retrievalQuery, rerank.Reranker, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, nil, validationf("agent_id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil, validationf("query is required")
	}
	if req.Budget < 0 {
		return nil, nil, validationf("budget must be >= 0, got %d", req.Budget)
	}
	if req.MaxTokens < 0 {
		return nil, nil, validationf("max_tokens must be >= 0, got %d", req.MaxTokens)
	}
	for _, ft := range req.FactTypes {
		if ft == "" || !types.IsValidFactType(ft) {
			return nil, nil, validationf("unknown fact_type %q", ft)
		}
	}
	reranker, err := e.rerankers.Select(req.Reranker)
	if err != nil {
		return nil, nil, translate(err)
	}
	if err := e.requireAgent(ctx, req.AgentID); err != nil {
		return nil, nil, err
	}

	budget := req.Budget
	if budget == 0 {
		budget = e.config.DefaultBudget
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = e.config.DefaultMaxTokens
	}
	return &retrievalQuery{
		agentID:   req.AgentID,
		query:     strings.TrimSpace(req.Query),
		factTypes: req.FactTypes,
		budget:    budget,
		maxTokens: maxTokens,
		limit:     min(budget, e.config.MaxCandidates),
		now:       e.now().UTC(),
	}, reranker, nil
}

// requireAgent returns ErrNotFound for an unregistered agent.
func (e *MemoryEngine) requireAgent(ctx context.Context, agentID string) error {
	ok, err := e.store.AgentExists(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to look up agent: %w", translate(err))
	}
	if !ok {
		return fmt.Errorf("%w: agent %q", ErrNotFound, agentID)
	}
	return nil
}
