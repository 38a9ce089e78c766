package engine

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/scrypster/memora/internal/llm"
	"github.com/scrypster/memora/internal/rerank"
	"github.com/scrypster/memora/pkg/types"
)

// NoMemoriesAnswer is the Think answer when nothing relevant was retrieved.
const NoMemoriesAnswer = "I don't have any memories relevant to that question."

// extractiveFacts is how many top facts an extractive answer quotes.
const extractiveFacts = 3

// Think answers query from the agent's memories.
//
// It retrieves with the given activation budget, reranks heuristically and
// asks the text generator for a cited JSON answer. A walk that stops at its
// visit cap is a normal retrieval and only shows in the search trace.
// Synthesis is bounded by ThinkTimeout; when that deadline stops it, the
// answer is quoted from the top facts with Truncated set. Without a
// generator, or when the generator fails, the answer is quoted too and only
// Extractive is set. Opinions are returned, never stored.
func (e *MemoryEngine) Think(ctx context.Context, agentID, query string, budget int) (*ThinkResult, error) {
	if budget == 0 {
		budget = e.config.ThinkBudget
	}
	resp, _, err := e.search(ctx, SearchRequest{
		AgentID:  agentID,
		Query:    query,
		Budget:   budget,
		Reranker: rerank.TagHeuristic,
	})
	if err != nil {
		return nil, err
	}
	facts := resp.Results

	if len(facts) == 0 {
		return &ThinkResult{Text: NoMemoriesAnswer, BasedOn: []types.NodeID{}, NewOpinions: []string{}}, nil
	}
	if e.generator == nil {
		return extractiveAnswer(facts, false), nil
	}

	tctx, cancel := context.WithTimeout(ctx, e.config.ThinkTimeout)
	defer cancel()

	thinkFacts := make([]llm.ThinkFact, len(facts))
	for i, f := range facts {
		thinkFacts[i] = llm.ThinkFact{ID: int64(f.ID), Content: f.Content, EventDate: f.EventDate}
	}
	raw, err := e.generator.Complete(tctx, llm.ThinkPrompt(query, thinkFacts))
	if err == nil {
		var parsed *llm.ThinkResponse
		if parsed, err = llm.ParseThinkResponse(raw); err == nil {
			return &ThinkResult{
				Text:        parsed.Answer,
				BasedOn:     citedFacts(parsed.BasedOn, facts),
				NewOpinions: nonNilStrings(parsed.NewOpinions),
			}, nil
		}
	}

	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("think deadline reached before synthesis finished", "agent", agentID, "timeout", e.config.ThinkTimeout)
		return extractiveAnswer(facts, true), nil
	}
	e.logger.Warn("think synthesis failed, answering extractively", "agent", agentID, "err", err)
	return extractiveAnswer(facts, false), nil
}

// citedFacts keeps the cited ids that were actually retrieved, in citation
// order. With no valid citation it falls back to the top facts.
func citedFacts(cited []int64, facts []types.SearchResult) []types.NodeID {
	out := make([]types.NodeID, 0, len(cited))
	for _, c := range cited {
		id := types.NodeID(c)
		if slices.Contains(out, id) {
			continue
		}
		if slices.ContainsFunc(facts, func(f types.SearchResult) bool { return f.ID == id }) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		for _, f := range facts[:min(extractiveFacts, len(facts))] {
			out = append(out, f.ID)
		}
	}
	return out
}

// extractiveAnswer quotes the top facts in ranked order.
func extractiveAnswer(facts []types.SearchResult, truncated bool) *ThinkResult {
	top := facts[:min(extractiveFacts, len(facts))]
	var b strings.Builder
	b.WriteString("Based on my memories: ")
	ids := make([]types.NodeID, len(top))
	for i, f := range top {
		if i > 0 {
			b.WriteString(" ")
		}
		content := strings.TrimSpace(f.Content)
		b.WriteString(content)
		if !strings.HasSuffix(content, ".") && !strings.HasSuffix(content, "!") && !strings.HasSuffix(content, "?") {
			b.WriteString(".")
		}
		ids[i] = f.ID
	}
	return &ThinkResult{Text: b.String(), BasedOn: ids, NewOpinions: []string{}, Truncated: truncated, Extractive: true}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
