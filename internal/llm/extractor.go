package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scrypster/memora/internal/textutil"
)

const (
	heuristicEntityConfidence   = 0.6
	heuristicRelationConfidence = 0.5
	// maxHeuristicEntities bounds the pairwise co_occurs relations.
	maxHeuristicEntities = 16
)

// HeuristicExtractor finds entities as runs of capitalised words and relates
// every pair found in the same text with a co_occurs relation. It needs no
// model and is deterministic.
type HeuristicExtractor struct{}

// NewHeuristicExtractor returns a HeuristicExtractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract implements Extractor.
func (HeuristicExtractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Extraction{}
	seen := make(map[string]bool)
	var run []string
	flush := func() {
		if len(run) == 0 {
			return
		}
		name := strings.Join(run, " ")
		run = run[:0]
		key := strings.ToLower(name)
		if seen[key] || len(out.Entities) >= maxHeuristicEntities {
			return
		}
		seen[key] = true
		out.Entities = append(out.Entities, ExtractedEntity{Name: name, Confidence: heuristicEntityConfidence})
	}

	for _, word := range strings.Fields(text) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		// A possessive belongs to the name it follows.
		trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, "'s"), "’s")
		if isNameWord(trimmed) {
			run = append(run, trimmed)
		} else {
			flush()
		}
		// Punctuation ends a name even when the next word is capitalised.
		if r, _ := utf8.DecodeLastRuneInString(word); unicode.IsPunct(r) && r != '\'' {
			flush()
		}
	}
	flush()

	for i := 0; i < len(out.Entities); i++ {
		for j := i + 1; j < len(out.Entities); j++ {
			out.Relations = append(out.Relations, ExtractedRelation{
				From:       out.Entities[i].Name,
				To:         out.Entities[j].Name,
				Type:       "co_occurs",
				Confidence: heuristicRelationConfidence,
			})
		}
	}
	return out, nil
}

func isNameWord(w string) bool {
	if utf8.RuneCountInString(w) < 2 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(w)
	if !unicode.IsUpper(r) {
		return false
	}
	return !textutil.IsStopWord(strings.ToLower(w))
}

var _ Extractor = HeuristicExtractor{}

// LLMExtractor extracts entities by prompting a TextGenerator.
type LLMExtractor struct {
	gen TextGenerator
}

// NewLLMExtractor wraps gen as an Extractor.
func NewLLMExtractor(gen TextGenerator) *LLMExtractor {
	return &LLMExtractor{gen: gen}
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	raw, err := e.gen.Complete(ctx, ExtractionPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("extraction with %s: %w", e.gen.GetModel(), err)
	}
	return ParseExtraction(raw)
}

var _ Extractor = (*LLMExtractor)(nil)
