package mcp

func agentIDProperty() map[string]any {
	return map[string]any{"type": "string", "description": "Agent whose memory bank to use; defaults to the session agent"}
}

// buildToolsList returns the MCP tool definitions.
func buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name: "retain",
			Description: "Store facts in an agent's memory. Returns once the facts are stored; " +
				"entity extraction, embedding and linking run in the background. " +
				"Re-sending a document_id replaces that document's facts.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent_id":    agentIDProperty(),
					"document_id": map[string]any{"type": "string", "description": "Document to upsert; generated when omitted"},
					"content":     map[string]any{"type": "string", "description": "A single fact to store"},
					"context":     map[string]any{"type": "string", "description": "Free-form context for content"},
					"items": map[string]any{
						"type":        "array",
						"description": "Facts to store in one batch",
						"items": map[string]any{
							"type":     "object",
							"required": []string{"content"},
							"properties": map[string]any{
								"content":    map[string]any{"type": "string"},
								"context":    map[string]any{"type": "string"},
								"fact_type":  map[string]any{"type": "string", "enum": []string{"world", "agent", "opinion"}},
								"event_date": map[string]any{"type": "string", "description": "RFC-3339 time the fact happened"},
								"metadata":   map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
							},
						},
					},
				},
			},
		},
		{
			Name: "recall",
			Description: "Search an agent's memory. Runs semantic, keyword, graph and temporal " +
				"retrieval in parallel, fuses the results and reranks them.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]any{
					"agent_id":   agentIDProperty(),
					"query":      map[string]any{"type": "string", "description": "Natural-language query"},
					"budget":     map[string]any{"type": "integer", "description": "Graph nodes to visit during spreading activation"},
					"max_tokens": map[string]any{"type": "integer", "description": "Token budget for returned facts"},
					"fact_type":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Restrict to these fact types"},
					"reranker":   map[string]any{"type": "string", "enum": []string{"heuristic", "cross-encoder"}},
					"trace":      map[string]any{"type": "boolean", "description": "Include a retrieval trace"},
				},
			},
		},
		{
			Name:        "reflect",
			Description: "Answer a question from an agent's memory, citing the facts used.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]any{
					"agent_id": agentIDProperty(),
					"query":    map[string]any{"type": "string", "description": "Question to answer"},
					"budget":   map[string]any{"type": "integer", "description": "Graph nodes to visit while retrieving"},
				},
			},
		},
		{
			Name:        "get_stats",
			Description: "Report an agent's node, link and pending-operation counts.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"agent_id": agentIDProperty()},
			},
		},
		{
			Name:        "delete_agent",
			Description: "Delete an agent and all of its memories.",
			InputSchema: map[string]any{
				"type":       "object",
				"required":   []string{"agent_id"},
				"properties": map[string]any{"agent_id": map[string]any{"type": "string", "description": "Agent to delete"}},
			},
		},
		{
			Name:        "list_agents",
			Description: "List agents that have memories.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
