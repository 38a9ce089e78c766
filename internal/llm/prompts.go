// Package llm provides the model-facing collaborators of the memory engine:
// text generators, embedders, entity extractors and the circuit breaker that
// guards remote calls. Prompts are strict JSON-only templates that work with
// Ollama, OpenAI and Anthropic models.
package llm

import (
	"fmt"
	"strings"
	"time"
)

// maxPromptFacts limits how many facts a reasoning prompt lists.
const maxPromptFacts = 50

// ExtractionPrompt asks for the entities mentioned in content and the
// relations between them as a single JSON object.
func ExtractionPrompt(content string) string {
	return fmt.Sprintf(`TASK: Extract named entities and the relations between them.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

REQUIRED JSON STRUCTURE:
{
  "entities": [
    {"name":"Alice","aliases":["Al"],"confidence":0.95},
    {"name":"Paris","aliases":[],"confidence":0.9}
  ],
  "relations": [
    {"from":"Alice","to":"Paris","type":"lives_in","confidence":0.8}
  ]
}

RULES:
1. Entities are people, places, organizations, projects, tools or named things.
2. "name" is the most complete form used in the text.
3. Relations only connect names listed in "entities".
4. "type" is a short snake_case verb phrase.
5. Confidence is between 0.0 and 1.0.
6. Return {"entities":[],"relations":[]} when nothing qualifies.

TEXT:
%s`, content)
}

// ThinkFact is one retrieved fact offered to the reasoning prompt.
type ThinkFact struct {
	ID        int64
	Content   string
	EventDate time.Time
}

// ThinkPrompt asks the model to answer query from facts and cite them by id.
func ThinkPrompt(query string, facts []ThinkFact) string {
	var b strings.Builder
	for i, f := range facts {
		if i >= maxPromptFacts {
			fmt.Fprintf(&b, "... and %d more facts\n", len(facts)-maxPromptFacts)
			break
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n", f.ID, f.Content, f.EventDate.UTC().Format("2006-01-02"))
	}

	return fmt.Sprintf(`TASK: Answer the question using ONLY the facts below.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

FACTS:
%s
QUESTION: %s

REQUIRED JSON STRUCTURE:
{"answer":"...","based_on":[<fact ids used>],"new_opinions":["..."]}

RULES:
1. "based_on" lists the bracketed ids of the facts that support the answer.
2. "new_opinions" holds beliefs you formed while reasoning. It may be empty.
3. If the facts do not answer the question, say so in "answer".`, b.String(), query)
}
