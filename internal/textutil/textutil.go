// Package textutil holds the tokenizer shared by lexical search, the local
// embedder and the heuristic reranker so that all three agree on terms.
package textutil

import (
	"strings"
	"unicode"
)

// stopWords carry no discriminative value for retrieval.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "shall": true, "can": true,
	"to": true, "of": true, "in": true, "on": true, "at": true,
	"by": true, "for": true, "with": true, "from": true, "as": true,
	"about": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true,
	"between": true, "out": true, "off": true, "over": true, "under": true,
	"what": true, "how": true, "when": true, "where": true, "why": true,
	"who": true, "which": true,
	"this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
	"and": true, "or": true, "but": true, "if": true, "not": true,
	"s": true, "t": true,
}

// IsStopWord reports whether the lowercase word is a stop word.
func IsStopWord(w string) bool {
	return stopWords[w]
}

// Tokenize lowercases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Terms returns the tokens of s with stop words and single characters removed.
// Order and duplicates are preserved.
func Terms(s string) []string {
	tokens := Tokenize(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if len(tok) >= 2 && !stopWords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// UniqueTerms returns Terms(s) without duplicates, in first-seen order.
func UniqueTerms(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Terms(s) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// EstimateTokens approximates the model token count of s as one token per
// four bytes, rounded up.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
