package engine

import (
	"time"

	"github.com/scrypster/memora/pkg/types"
)

// TraceEventKind classifies each trace event by type.
type TraceEventKind string

const (
	// KindSearchStarted is emitted at the beginning of a search.
	KindSearchStarted TraceEventKind = "search_started"

	// KindStrategyCompleted is emitted once per strategy that returned candidates.
	KindStrategyCompleted TraceEventKind = "strategy_completed"

	// KindStrategyFailed is emitted once per strategy that returned an error.
	KindStrategyFailed TraceEventKind = "strategy_failed"

	// KindCandidatesFused is emitted after fusion with the merged count.
	KindCandidatesFused TraceEventKind = "candidates_fused"

	// KindTruncated is emitted when max_tokens dropped results.
	KindTruncated TraceEventKind = "truncated"

	// KindReranked is emitted after the reranker ran.
	KindReranked TraceEventKind = "reranked"

	// KindResultsReturned records the final result set.
	KindResultsReturned TraceEventKind = "results_returned"
)

// TraceEvent is a single structured event emitted during a search.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`
	At   time.Time      `json:"at"`

	// Strategy is set on strategy events.
	Strategy types.Strategy `json:"strategy,omitempty"`

	// Count is the number of candidates or results the event refers to.
	Count int `json:"count,omitempty"`

	// Error is set on strategy_failed events.
	Error string `json:"error,omitempty"`

	// Query is populated in search_started.
	Query string `json:"query,omitempty"`

	// Reranker names the variant in reranked events.
	Reranker string `json:"reranker,omitempty"`

	// IDs lists the returned node ids in results_returned.
	IDs []types.NodeID `json:"ids,omitempty"`
}

// StrategyTrace summarizes one strategy's run.
type StrategyTrace struct {
	Strategy   types.Strategy `json:"strategy"`
	OK         bool           `json:"ok"`
	Candidates int            `json:"candidates"`
	Error      string         `json:"error,omitempty"`
	DurationMS float64        `json:"duration_ms"`
}

// ActivationTrace summarizes the spreading-activation traversal.
type ActivationTrace struct {
	Seeds     int  `json:"seeds"`
	Visits    int  `json:"visits"`
	Activated int  `json:"activated"`
	Exhausted bool `json:"exhausted"`
	Cancelled bool `json:"cancelled"`
}

// SearchTrace explains how a search produced its results.
type SearchTrace struct {
	Query      string          `json:"query"`
	Budget     int             `json:"budget"`
	MaxTokens  int             `json:"max_tokens"`
	Strategies []StrategyTrace `json:"strategies"`

	// Contributing lists strategies that returned at least one candidate.
	Contributing []types.Strategy `json:"contributing"`

	// Failed lists strategies that returned an error.
	Failed []types.Strategy `json:"failed"`

	Activation      *ActivationTrace `json:"activation,omitempty"`
	BudgetExhausted bool             `json:"budget_exhausted"`
	Fused           int              `json:"fused"`
	Dropped         int              `json:"dropped"`
	Events          []TraceEvent     `json:"events"`

	// Reranker is the variant whose order was returned; RerankFellBack is set
	// when it differs from the requested one.
	Reranker       string `json:"reranker"`
	RerankFellBack bool   `json:"rerank_fell_back"`
}

func newTraceEvent(kind TraceEventKind) TraceEvent {
	return TraceEvent{Kind: kind, At: time.Now()}
}

// EventSearchStarted creates a search_started trace event.
func EventSearchStarted(query string) TraceEvent {
	e := newTraceEvent(KindSearchStarted)
	e.Query = query
	return e
}

// EventStrategyCompleted creates a strategy_completed trace event.
func EventStrategyCompleted(s types.Strategy, count int) TraceEvent {
	e := newTraceEvent(KindStrategyCompleted)
	e.Strategy = s
	e.Count = count
	return e
}

// EventStrategyFailed creates a strategy_failed trace event.
func EventStrategyFailed(s types.Strategy, err error) TraceEvent {
	e := newTraceEvent(KindStrategyFailed)
	e.Strategy = s
	e.Error = err.Error()
	return e
}

// EventCandidatesFused creates a candidates_fused trace event.
func EventCandidatesFused(count int) TraceEvent {
	e := newTraceEvent(KindCandidatesFused)
	e.Count = count
	return e
}

// EventTruncated creates a truncated trace event.
func EventTruncated(dropped int) TraceEvent {
	e := newTraceEvent(KindTruncated)
	e.Count = dropped
	return e
}

// EventReranked creates a reranked trace event.
func EventReranked(name string, count int) TraceEvent {
	e := newTraceEvent(KindReranked)
	e.Reranker = name
	e.Count = count
	return e
}

// EventResultsReturned creates a results_returned trace event.
func EventResultsReturned(ids []types.NodeID) TraceEvent {
	e := newTraceEvent(KindResultsReturned)
	e.IDs = ids
	e.Count = len(ids)
	return e
}

// newSearchTrace builds the trace skeleton from the fan-out outcomes.
func newSearchTrace(q *retrievalQuery, outcomes []strategyOutcome) *SearchTrace {
	t := &SearchTrace{
		Query:        q.query,
		Budget:       q.budget,
		MaxTokens:    q.maxTokens,
		Contributing: []types.Strategy{},
		Failed:       []types.Strategy{},
		Events:       []TraceEvent{EventSearchStarted(q.query)},
	}
	for _, o := range outcomes {
		st := StrategyTrace{
			Strategy:   o.strategy,
			OK:         o.err == nil,
			Candidates: len(o.candidates),
			DurationMS: float64(o.elapsed.Microseconds()) / 1000,
		}
		if o.err != nil {
			st.Error = o.err.Error()
			t.Failed = append(t.Failed, o.strategy)
			t.Events = append(t.Events, EventStrategyFailed(o.strategy, o.err))
		} else {
			if len(o.candidates) > 0 {
				t.Contributing = append(t.Contributing, o.strategy)
			}
			t.Events = append(t.Events, EventStrategyCompleted(o.strategy, len(o.candidates)))
		}
		t.Strategies = append(t.Strategies, st)
	}
	if a := q.activation; a != nil {
		t.Activation = a
		t.BudgetExhausted = a.Exhausted
	}
	return t
}
