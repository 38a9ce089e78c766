package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON string
	}{
		{"plain object", `{"key": "value"}`, `{"key": "value"}`},
		{"markdown fence", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"bare fence", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"surrounding prose", "Here is the JSON:\n{\"key\": \"value\"}\nEnd of JSON", `{"key": "value"}`},
		{"nested", `{"outer": {"inner": "value"}}`, `{"outer": {"inner": "value"}}`},
		{"escaped quotes", `{"text": "He said \"hello\""}`, `{"text": "He said \"hello\""}`},
		{"brace inside string", `{"text": "a } b"} trailing`, `{"text": "a } b"}`},
		{"no JSON", "just some text", "just some text"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantJSON, extractJSON(tt.input))
		})
	}
}

func TestParseExtraction(t *testing.T) {
	raw := "```json\n" + `{
		"entities": [
			{"name": "Alice", "aliases": ["Al"], "confidence": 0.9},
			{"name": " ", "confidence": 0.9},
			{"name": "alice", "confidence": 0.4},
			{"name": "Paris", "confidence": 7}
		],
		"relations": [
			{"from": "Alice", "to": "Paris", "type": "lives_in", "confidence": 0.8},
			{"from": "Alice", "to": "Berlin", "type": "visited", "confidence": 0.8},
			{"from": "Paris", "to": "Alice", "confidence": -1}
		]
	}` + "\n```"

	got, err := ParseExtraction(raw)
	require.NoError(t, err)

	require.Len(t, got.Entities, 2)
	assert.Equal(t, "Alice", got.Entities[0].Name)
	assert.Equal(t, []string{"Al"}, got.Entities[0].Aliases)
	assert.Equal(t, 1.0, got.Entities[1].Confidence)

	require.Len(t, got.Relations, 2)
	assert.Equal(t, "lives_in", got.Relations[0].Type)
	assert.Equal(t, "relates_to", got.Relations[1].Type)
	assert.Equal(t, 0.0, got.Relations[1].Confidence)
}

func TestParseExtractionMalformed(t *testing.T) {
	_, err := ParseExtraction(`{"entities": [`)
	assert.Error(t, err)
}

func TestParseThinkResponse(t *testing.T) {
	got, err := ParseThinkResponse(`Sure! {"answer":" Alice lives in Paris. ","based_on":[3,9],"new_opinions":["", "Alice likes cities"]}`)
	require.NoError(t, err)
	assert.Equal(t, "Alice lives in Paris.", got.Answer)
	assert.Equal(t, []int64{3, 9}, got.BasedOn)
	assert.Equal(t, []string{"Alice likes cities"}, got.NewOpinions)

	_, err = ParseThinkResponse(`{"answer":"","based_on":[]}`)
	assert.Error(t, err)
}
