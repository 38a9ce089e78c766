package types

import (
	"strings"
	"time"
)

// Entity is a named thing extracted from memory unit content, scoped to an agent.
type Entity struct {
	ID            NodeID    `json:"id"`
	AgentID       string    `json:"agent_id"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Link is a directed, typed, weighted edge between two graph nodes.
// Links between the same pair may coexist when their types differ.
type Link struct {
	SourceID NodeID  `json:"source_id"`
	TargetID NodeID  `json:"target_id"`
	Type     string  `json:"type"`
	Weight   float64 `json:"weight"` // Associative strength in [0,1]
}

// CanonicalKey returns the case-insensitive lookup key for an entity name.
func CanonicalKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// MergeAliases returns the union of existing and added aliases, preserving
// first-seen order and ignoring case-insensitive duplicates of canonical.
func MergeAliases(canonical string, existing, added []string) []string {
	seen := map[string]bool{CanonicalKey(canonical): true}
	out := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, alias := range list {
			key := CanonicalKey(alias)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, alias)
		}
	}
	return out
}

// ClampWeight forces a link weight into [0,1], mapping NaN to 0.
func ClampWeight(w float64) float64 {
	if w != w || w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
