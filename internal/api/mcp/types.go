// Package mcp implements the Model Context Protocol (MCP) server for Memora.
// It exposes retain, recall and reflect as JSON-RPC 2.0 tools.
package mcp

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/scrypster/memora/pkg/types"
)

// RetainItem is one fact in a retain call.
type RetainItem struct {
	Content   string            `json:"content"`
	Context   string            `json:"context,omitempty"`
	FactType  string            `json:"fact_type,omitempty"`
	EventDate *time.Time        `json:"event_date,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RetainArgs contains arguments for the retain tool. Either Items or a single
// Content may be given.
type RetainArgs struct {
	AgentID    string       `json:"agent_id"`
	DocumentID string       `json:"document_id,omitempty"`
	Content    string       `json:"content,omitempty"`
	Context    string       `json:"context,omitempty"`
	Items      []RetainItem `json:"items,omitempty"`
}

func (a RetainArgs) toIngestItems() []types.IngestItem {
	items := make([]types.IngestItem, 0, len(a.Items)+1)
	if a.Content != "" {
		items = append(items, types.IngestItem{Content: a.Content, Context: a.Context})
	}
	for _, it := range a.Items {
		items = append(items, types.IngestItem{
			Content:   it.Content,
			Context:   it.Context,
			FactType:  types.FactType(it.FactType),
			EventDate: it.EventDate,
			Metadata:  it.Metadata,
		})
	}
	return items
}

// RecallArgs contains arguments for the recall tool.
type RecallArgs struct {
	AgentID   string   `json:"agent_id"`
	Query     string   `json:"query"`
	Budget    int      `json:"budget,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
	FactTypes []string `json:"fact_type,omitempty"`
	Reranker  string   `json:"reranker,omitempty"`
	Trace     bool     `json:"trace,omitempty"`
}

// UnmarshalJSON accepts fact_type as an array, a JSON-encoded array string
// or a comma-separated string; some MCP clients flatten arrays.
func (a *RecallArgs) UnmarshalJSON(data []byte) error {
	type Alias RecallArgs
	aux := &struct {
		FactTypes json.RawMessage `json:"fact_type,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.FactTypes == nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal(aux.FactTypes, &list); err == nil {
		a.FactTypes = list
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.FactTypes, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &list)
		a.FactTypes = list
		return nil
	}
	for _, ft := range strings.Split(s, ",") {
		if ft = strings.TrimSpace(ft); ft != "" {
			a.FactTypes = append(a.FactTypes, ft)
		}
	}
	return nil
}

// ReflectArgs contains arguments for the reflect tool.
type ReflectArgs struct {
	AgentID string `json:"agent_id"`
	Query   string `json:"query"`
	Budget  int    `json:"budget,omitempty"`
}

// AgentArgs names a single agent.
type AgentArgs struct {
	AgentID string `json:"agent_id"`
}

// ListAgentsResult is the result of list_agents.
type ListAgentsResult struct {
	Agents []string `json:"agents"`
}

// DeleteAgentResult is the result of delete_agent.
type DeleteAgentResult struct {
	AgentID string `json:"agent_id"`
	Deleted bool   `json:"deleted"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"` // Must be "2.0"
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"` // string, number, or null
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      any           `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPInitializeParams holds the parameters of the initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo  `json:"clientInfo"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// MCPToolsListResult is the response to tools/list.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters of a tools/call request.
type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError"`
}
