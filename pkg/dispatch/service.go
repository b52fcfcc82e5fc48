// Package dispatch implements the top-level orchestrator: turning a
// DispatchRequest into a DispatchResponse. It validates the request,
// resolves the target agent, gathers the restriction-filtered context in
// parallel, drives the agent's transport, and normalizes the result.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/brokererr"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/internaltools"
	"github.com/cubicler/cubicler/pkg/jsonrpc"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/prompt"
	"github.com/cubicler/cubicler/pkg/providers"
	"github.com/cubicler/cubicler/pkg/restrict"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/cubicler/cubicler/pkg/dispatch")

// AgentsSource supplies the current agents snapshot. config.AgentsRepository
// satisfies this.
type AgentsSource interface {
	Get() (*config.AgentsConfig, error)
}

// MCPHandler is the single JSON-RPC entrypoint the orchestrator drives to
// discover available servers and tools, and that agent transports drive
// for tool callbacks. pkg/dispatcher.Dispatcher satisfies this.
type MCPHandler interface {
	Handle(ctx context.Context, req jsonrpc.Request) jsonrpc.Response
}

// ServerResolver resolves a hash token back to a server identifier.
// pkg/providers.Repository satisfies this.
type ServerResolver interface {
	GetServerByHash(hash string) (providers.ServerMetadata, bool)
}

// DispatchRequest is the inbound request: a non-empty, ordered
// conversation.
type DispatchRequest struct {
	Messages []agenttransport.Message
}

// DispatchResponse is always returned on success, including when a
// downstream failure is shaped into an error-text response.
type DispatchResponse struct {
	Sender    agenttransport.Sender           `json:"sender"`
	Timestamp time.Time                       `json:"timestamp"`
	Type      agenttransport.MessageType      `json:"type"`
	Content   any                             `json:"content"`
	Metadata  agenttransport.ResponseMetadata `json:"metadata"`
}

// Service is the top-level dispatch orchestrator.
type Service struct {
	agents     AgentsSource
	mcp        MCPHandler
	resolver   ServerResolver
	transports map[string]agenttransport.Transport
}

// New builds a Service. transports must carry one entry per configured
// agent identifier, constructed ahead of time by the composition root
// (pooled/SSE transports are long-lived, unlike HTTP/direct).
func New(agents AgentsSource, mcp MCPHandler, resolver ServerResolver, transports map[string]agenttransport.Transport) *Service {
	return &Service{agents: agents, mcp: mcp, resolver: resolver, transports: transports}
}

// Dispatch runs the full algorithm. It returns a non-nil error only for
// the validation-stage failures (InvalidRequest, UnknownAgent/NoAgents)
// that the HTTP layer maps to 4xx and for an Internal failure to load the
// agents config; every downstream failure is folded into
// an error-shaped DispatchResponse with a nil error.
func (s *Service) Dispatch(ctx context.Context, agentID string, req DispatchRequest) (*DispatchResponse, error) {
	if len(req.Messages) == 0 {
		return nil, brokererr.New(brokererr.InvalidRequest, "messages must be a non-empty sequence")
	}

	agentsCfg, err := s.agents.Get()
	if err != nil {
		return nil, brokererr.Wrap(brokererr.Internal, "loading agents config", err)
	}
	if len(agentsCfg.Agents) == 0 {
		return nil, brokererr.New(brokererr.NoAgents, "no agents are configured")
	}

	var agent config.AgentConfig
	if agentID == "" {
		agent, _ = agentsCfg.DefaultAgent()
	} else {
		var ok bool
		agent, ok = agentsCfg.ByIdentifier(agentID)
		if !ok {
			return nil, brokererr.New(brokererr.UnknownAgent, fmt.Sprintf("unknown agent %q", agentID))
		}
	}

	sender := agenttransport.Sender{ID: agent.Identifier, Name: agent.Name}

	ctx, span := tracer.Start(ctx, "dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.identifier", agent.Identifier),
		attribute.String("agent.transport", string(agent.Transport)),
		attribute.Int("messages.count", len(req.Messages)),
	)

	available, toolDefs, err := s.gatherContext(ctx)
	if err != nil {
		return errorResponse(sender, err), nil
	}

	evaluator := restrict.New(agent, restrict.NewResolver(func(hash string) (string, bool) {
		m, ok := s.resolver.GetServerByHash(hash)
		return m.Identifier, ok
	}))

	filteredServers := filterServers(available, evaluator)
	filteredTools := filterTools(toolDefs, evaluator)

	agentRequest := agenttransport.AgentRequest{
		Agent: agenttransport.AgentInfo{
			Identifier:  agent.Identifier,
			Name:        agent.Name,
			Description: agent.Description,
			Prompt:      prompt.Compose(*agentsCfg, agent, filteredServers),
		},
		Tools:    toWireTools(filteredTools),
		Servers:  toWireServers(filteredServers),
		Messages: req.Messages,
	}

	transport, ok := s.transports[agent.Identifier]
	if !ok {
		return errorResponse(sender, fmt.Errorf("no transport configured for agent %q", agent.Identifier)), nil
	}

	handler := &restrictedMCPHandler{mcp: s.mcp, evaluator: evaluator}

	callCtx := ctx
	if agent.CallTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(agent.CallTimeoutSeconds)*time.Second)
		defer cancel()
	}

	resp, err := transport.Dispatch(callCtx, agentRequest, handler)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent dispatch failed")
		return errorResponse(sender, err), nil
	}
	if !resp.Complete() {
		span.SetStatus(codes.Error, "incomplete agent response")
		return errorResponse(sender, fmt.Errorf("agent returned an incomplete response")), nil
	}

	return &DispatchResponse{
		Sender:    sender,
		Timestamp: resp.Timestamp,
		Type:      resp.Type,
		Content:   resp.Content,
		Metadata:  resp.Metadata,
	}, nil
}

func errorResponse(sender agenttransport.Sender, err error) *DispatchResponse {
	return &DispatchResponse{
		Sender:    sender,
		Timestamp: time.Now(),
		Type:      agenttransport.MessageText,
		Content:   err.Error(),
		Metadata:  agenttransport.ResponseMetadata{},
	}
}

// gatherContext fetches the available servers and the full tools list via
// the MCP dispatcher's own internal tool and tools/list method, in
// parallel.
func (s *Service) gatherContext(ctx context.Context) ([]providers.AvailableServer, []mcptransport.Tool, error) {
	var wg sync.WaitGroup
	var servers []providers.AvailableServer
	var tools []mcptransport.Tool
	var serversErr, toolsErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		servers, serversErr = s.fetchAvailableServers(ctx)
	}()
	go func() {
		defer wg.Done()
		tools, toolsErr = s.fetchToolsList(ctx)
	}()
	wg.Wait()

	if serversErr != nil {
		return nil, nil, serversErr
	}
	if toolsErr != nil {
		return nil, nil, toolsErr
	}
	return servers, tools, nil
}

type availableServersResult struct {
	Total   int                         `json:"total"`
	Servers []providers.AvailableServer `json:"servers"`
}

func (s *Service) fetchAvailableServers(ctx context.Context) ([]providers.AvailableServer, error) {
	params, _ := json.Marshal(mcptransport.ToolCallParams{Name: internaltools.AvailableServersToolName})
	resp := s.mcp.Handle(ctx, jsonrpc.Request{JSONRPC: "2.0", Method: "tools/call", Params: params})
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %s", internaltools.AvailableServersToolName, resp.Error.Message)
	}
	var callResult mcptransport.ToolCallResult
	if err := json.Unmarshal(resp.Result, &callResult); err != nil {
		return nil, fmt.Errorf("decoding available servers result: %w", err)
	}
	if len(callResult.Content) == 0 {
		return nil, nil
	}
	var result availableServersResult
	if err := json.Unmarshal([]byte(callResult.Content[0].Text), &result); err != nil {
		return nil, fmt.Errorf("decoding available servers payload: %w", err)
	}
	return result.Servers, nil
}

func (s *Service) fetchToolsList(ctx context.Context) ([]mcptransport.Tool, error) {
	resp := s.mcp.Handle(ctx, jsonrpc.Request{JSONRPC: "2.0", Method: "tools/list"})
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list: %s", resp.Error.Message)
	}
	var result mcptransport.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decoding tools list: %w", err)
	}
	return result.Tools, nil
}

func filterServers(servers []providers.AvailableServer, evaluator *restrict.Evaluator) []providers.AvailableServer {
	out := make([]providers.AvailableServer, 0, len(servers))
	for _, srv := range servers {
		if evaluator.IsServerAllowed(srv.Identifier) {
			out = append(out, srv)
		}
	}
	return out
}

func filterTools(tools []mcptransport.Tool, evaluator *restrict.Evaluator) []mcptransport.Tool {
	out := make([]mcptransport.Tool, 0, len(tools))
	for _, t := range tools {
		if evaluator.IsToolAllowed(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

func toWireTools(tools []mcptransport.Tool) []agenttransport.ToolDefinition {
	out := make([]agenttransport.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, agenttransport.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return out
}

func toWireServers(servers []providers.AvailableServer) []agenttransport.ServerSummary {
	out := make([]agenttransport.ServerSummary, 0, len(servers))
	for _, srv := range servers {
		out = append(out, agenttransport.ServerSummary{Identifier: srv.Identifier, Name: srv.Name, Description: srv.Description, ToolsCount: srv.ToolsCount})
	}
	return out
}

// restrictedMCPHandler adapts the MCP dispatcher into an
// agenttransport.MCPHandler, enforcing the same restriction checks the
// filtered AgentRequest already applied, so a filtered-out tool called
// anyway during the dispatch is still denied.
type restrictedMCPHandler struct {
	mcp       MCPHandler
	evaluator *restrict.Evaluator
}

func (h *restrictedMCPHandler) HandleMCPRequest(ctx context.Context, method string, params any) (any, error) {
	ctx, span := tracer.Start(ctx, "mcp."+method)
	defer span.End()

	if method == "tools/call" {
		if name, ok := toolNameFrom(params); ok {
			span.SetAttributes(attribute.String("tool.name", name))
			if !h.evaluator.IsToolAllowed(name) {
				span.SetStatus(codes.Error, "tool denied")
				return nil, brokererr.New(brokererr.UnknownTool, fmt.Sprintf("unknown tool: %s", name))
			}
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.Internal, "encoding mcp params", err)
	}
	resp := h.mcp.Handle(ctx, jsonrpc.Request{JSONRPC: "2.0", Method: method, Params: raw})
	if resp.Error != nil {
		return nil, classifyRPCError(resp.Error)
	}
	var result any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("decoding mcp result: %w", err)
		}
	}
	return result, nil
}

// classifyRPCError keeps the dispatcher's JSON-RPC error code visible to
// transports, which re-frame the failure for the agent.
func classifyRPCError(e *jsonrpc.Error) error {
	switch e.Code {
	case jsonrpc.MethodNotFound:
		return brokererr.New(brokererr.UnknownTool, e.Message)
	case jsonrpc.InvalidRequest, jsonrpc.InvalidParams:
		return brokererr.New(brokererr.InvalidRequest, e.Message)
	default:
		return brokererr.New(brokererr.Internal, e.Message)
	}
}

func toolNameFrom(params any) (string, bool) {
	m, ok := params.(map[string]any)
	if !ok {
		return "", false
	}
	name, ok := m["name"].(string)
	return name, ok
}
