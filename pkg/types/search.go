package types

import "time"

// Strategy names a retrieval strategy.
type Strategy string

// Retrieval strategies, in fusion order.
const (
	StrategySemantic Strategy = "semantic"
	StrategyLexical  Strategy = "lexical"
	StrategyGraph    Strategy = "graph"
	StrategyTemporal Strategy = "temporal"
)

// AllStrategies lists every retrieval strategy in a fixed order.
var AllStrategies = []Strategy{StrategySemantic, StrategyLexical, StrategyGraph, StrategyTemporal}

// StrategyScore is one strategy's contribution to a result.
type StrategyScore struct {
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
}

// SearchResult is a ranked memory unit returned by search.
type SearchResult struct {
	ID         NodeID                     `json:"id"`
	Kind       NodeKind                   `json:"kind"`
	Content    string                     `json:"content"`
	Context    string                     `json:"context,omitempty"`
	DocumentID string                     `json:"document_id"`
	FactType   FactType                   `json:"fact_type"`
	EventDate  time.Time                  `json:"event_date"`
	Metadata   map[string]string          `json:"metadata,omitempty"`
	Scores     map[Strategy]StrategyScore `json:"scores"`
	Score      float64                    `json:"score"`
	Trace      *ResultTrace               `json:"trace,omitempty"`
}

// ResultTrace explains where a single result came from.
type ResultTrace struct {
	Strategies []Strategy `json:"strategies"`
	GraphHop   *int       `json:"graph_hop,omitempty"`
}
