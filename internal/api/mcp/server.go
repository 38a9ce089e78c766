package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/pkg/types"
)

// MemoryService is the subset of engine.MemoryEngine used by the MCP server.
type MemoryService interface {
	PutBatch(ctx context.Context, agentID string, items []types.IngestItem, documentID string) (*engine.PutBatchResult, error)
	Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResponse, error)
	Think(ctx context.Context, agentID, query string, budget int) (*engine.ThinkResult, error)
	GetStats(ctx context.Context, agentID string) (*types.AgentStats, error)
	ListAgents(ctx context.Context) ([]string, error)
	DeleteAgent(ctx context.Context, agentID string) error
}

// Server implements the Model Context Protocol for Memora.
type Server struct {
	memory       MemoryService
	logger       *log.Logger
	version      string
	defaultAgent string // used when a tool call omits agent_id
	sessionID    string
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the logger. It must not write to stdout.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithDefaultAgent sets the agent used when retain, recall, reflect or
// get_stats omit agent_id. delete_agent always requires an explicit id.
func WithDefaultAgent(agentID string) ServerOption {
	return func(s *Server) {
		s.defaultAgent = agentID
	}
}

// NewServer creates a new MCP server over memory.
func NewServer(memory MemoryService, opts ...ServerOption) *Server {
	s := &Server{
		memory:    memory,
		logger:    log.Default(),
		version:   "dev",
		sessionID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mcp", "session", s.sessionID)
	if s.defaultAgent != "" {
		s.logger.Info("default agent", "agent", s.defaultAgent)
	}
	return s
}

// HandleRequest processes one JSON-RPC 2.0 message. It returns nil for
// notifications, which get no response.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result = s.handleInitialize()
	case "initialized", "notifications/initialized", "notifications/cancelled":
		return nil, nil
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = MCPToolsListResult{Tools: buildToolsList()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		if req.ID == nil {
			return nil, nil
		}
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeInvalidParams, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) handleInitialize() MCPInitializeResult {
	return MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "memora",
			Version: s.version,
		},
	}
}

// handleToolsCall dispatches a tools/call request and wraps the result in
// the MCP content envelope. Tool failures are reported in-band with isError;
// only malformed call params fail the JSON-RPC request itself.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (*MCPToolCallResult, error) {
	var p MCPToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid tools/call params: %w", err)
	}
	if p.Name == "" {
		return nil, errors.New("invalid tools/call params: name is required")
	}
	args := p.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	var result any
	var err error

	switch p.Name {
	case "retain":
		result, err = s.Retain(ctx, args)
	case "recall":
		result, err = s.Recall(ctx, args)
	case "reflect":
		result, err = s.Reflect(ctx, args)
	case "get_stats":
		result, err = s.GetStats(ctx, args)
	case "delete_agent":
		result, err = s.DeleteAgent(ctx, args)
	case "list_agents":
		result, err = s.ListAgents(ctx)
	default:
		return toolError(fmt.Sprintf("unknown tool: %s", p.Name)), nil
	}

	if err != nil {
		s.logger.Debug("tool call failed", "tool", p.Name, "err", err)
		return toolError(err.Error()), nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

// Retain stores facts for an agent and queues them for indexing.
func (s *Server) Retain(ctx context.Context, raw json.RawMessage) (*engine.PutBatchResult, error) {
	var args RetainArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.memory.PutBatch(ctx, s.agent(args.AgentID), args.toIngestItems(), args.DocumentID)
}

// Recall searches an agent's memories.
func (s *Server) Recall(ctx context.Context, raw json.RawMessage) (*engine.SearchResponse, error) {
	var args RecallArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	req := engine.SearchRequest{
		AgentID:   s.agent(args.AgentID),
		Query:     args.Query,
		Budget:    args.Budget,
		MaxTokens: args.MaxTokens,
		Reranker:  args.Reranker,
		Trace:     args.Trace,
	}
	for _, ft := range args.FactTypes {
		req.FactTypes = append(req.FactTypes, types.FactType(ft))
	}
	return s.memory.Search(ctx, req)
}

// Reflect answers a question from an agent's memories.
func (s *Server) Reflect(ctx context.Context, raw json.RawMessage) (*engine.ThinkResult, error) {
	var args ReflectArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.memory.Think(ctx, s.agent(args.AgentID), args.Query, args.Budget)
}

// GetStats reports an agent's graph size and backlog.
func (s *Server) GetStats(ctx context.Context, raw json.RawMessage) (*types.AgentStats, error) {
	var args AgentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.memory.GetStats(ctx, s.agent(args.AgentID))
}

// DeleteAgent removes an agent and all its memories.
func (s *Server) DeleteAgent(ctx context.Context, raw json.RawMessage) (*DeleteAgentResult, error) {
	var args AgentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := s.memory.DeleteAgent(ctx, args.AgentID); err != nil {
		return nil, err
	}
	s.logger.Info("agent deleted", "agent", args.AgentID)
	return &DeleteAgentResult{AgentID: args.AgentID, Deleted: true}, nil
}

// ListAgents lists agents with stored memories.
func (s *Server) ListAgents(ctx context.Context) (*ListAgentsResult, error) {
	agents, err := s.memory.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	if agents == nil {
		agents = []string{}
	}
	return &ListAgentsResult{Agents: agents}, nil
}

func (s *Server) agent(id string) string {
	if id == "" {
		return s.defaultAgent
	}
	return id
}

func decodeArgs(raw json.RawMessage, dest any) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: invalid arguments: %v", engine.ErrValidation, err)
	}
	return nil
}

func toolError(msg string) *MCPToolCallResult {
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id any, result any) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id any, code int, message string, data any) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
}
