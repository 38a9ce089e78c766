package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ThinkResponse is the JSON a model returns for ThinkPrompt.
type ThinkResponse struct {
	Answer      string   `json:"answer"`
	BasedOn     []int64  `json:"based_on"`
	NewOpinions []string `json:"new_opinions"`
}

// extractJSON returns the first balanced JSON object in text. Models often
// wrap JSON in markdown fences or prose despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// ParseExtraction parses an ExtractionPrompt response. Entries with empty
// names or relations naming unknown entities are dropped; confidences are
// clamped to [0,1]. Only malformed JSON is an error.
func ParseExtraction(raw string) (*Extraction, error) {
	var parsed Extraction
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction JSON: %w", err)
	}

	out := &Extraction{}
	known := make(map[string]bool)
	for _, e := range parsed.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if known[key] {
			continue
		}
		known[key] = true
		out.Entities = append(out.Entities, ExtractedEntity{
			Name:       name,
			Aliases:    e.Aliases,
			Confidence: clampConfidence(e.Confidence),
		})
	}
	for _, r := range parsed.Relations {
		from, to := strings.TrimSpace(r.From), strings.TrimSpace(r.To)
		if !known[strings.ToLower(from)] || !known[strings.ToLower(to)] || strings.EqualFold(from, to) {
			continue
		}
		typ := strings.TrimSpace(r.Type)
		if typ == "" {
			typ = "relates_to"
		}
		out.Relations = append(out.Relations, ExtractedRelation{
			From:       from,
			To:         to,
			Type:       typ,
			Confidence: clampConfidence(r.Confidence),
		})
	}
	return out, nil
}

// ParseThinkResponse parses a ThinkPrompt response.
func ParseThinkResponse(raw string) (*ThinkResponse, error) {
	var resp ThinkResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse think JSON: %w", err)
	}
	resp.Answer = strings.TrimSpace(resp.Answer)
	if resp.Answer == "" {
		return nil, fmt.Errorf("think response has no answer")
	}
	opinions := resp.NewOpinions[:0]
	for _, o := range resp.NewOpinions {
		if o = strings.TrimSpace(o); o != "" {
			opinions = append(opinions, o)
		}
	}
	resp.NewOpinions = opinions
	return &resp, nil
}

// clampConfidence maps a missing or out-of-range confidence into [0,1].
// Zero means the model omitted it, which we read as a neutral 0.5.
func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c == 0:
		return 0.5
	case c > 1:
		return 1
	default:
		return c
	}
}
