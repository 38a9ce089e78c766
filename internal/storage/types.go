package storage

import (
	"errors"
	"slices"

	"github.com/scrypster/memora/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrGraphBoundsExceeded indicates that graph traversal exceeded bounds.
	ErrGraphBoundsExceeded = errors.New("graph bounds exceeded")
)

const (
	// DefaultSearchLimit is used when SearchOptions.Limit is unset.
	DefaultSearchLimit = 20

	// MaxSearchLimit caps SearchOptions.Limit.
	MaxSearchLimit = 1000
)

// SearchOptions restricts search and listing operations.
type SearchOptions struct {
	// FactTypes limits results to the given fact types. Empty means all.
	FactTypes []types.FactType

	// Limit is the maximum number of results (default: 20, max: 1000).
	Limit int
}

// Normalize applies defaults and bounds to the options.
func (o *SearchOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultSearchLimit
	}
	if o.Limit > MaxSearchLimit {
		o.Limit = MaxSearchLimit
	}
}

// MatchesFactType reports whether ft passes the fact type filter.
func (o SearchOptions) MatchesFactType(ft types.FactType) bool {
	return len(o.FactTypes) == 0 || slices.Contains(o.FactTypes, ft)
}

// ScoredUnit is a memory unit with a strategy-specific score.
type ScoredUnit struct {
	Unit  types.MemoryUnit
	Score float64
}

// AgentCounts holds per-agent totals.
type AgentCounts struct {
	MemoryUnits int
	Entities    int
	Links       int
	Documents   int
}

// SortScored orders results by score descending, then id ascending.
func SortScored(results []ScoredUnit) {
	slices.SortFunc(results, func(a, b ScoredUnit) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		switch {
		case a.Unit.ID < b.Unit.ID:
			return -1
		case a.Unit.ID > b.Unit.ID:
			return 1
		}
		return 0
	})
}

// SortRecent orders units by event date descending, then id ascending.
func SortRecent(units []types.MemoryUnit) {
	slices.SortFunc(units, func(a, b types.MemoryUnit) int {
		if c := b.EventDate.Compare(a.EventDate); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
