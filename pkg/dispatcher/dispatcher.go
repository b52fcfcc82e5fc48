// Package dispatcher implements the MCP dispatcher: the single JSON-RPC
// entrypoint that fans tools/list out across the three provider services
// and routes tools/call to whichever one owns the tool.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cubicler/cubicler/pkg/jsonrpc"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/providers"
)

// ToolLister aggregates into the tools/list response.
type ToolLister interface {
	ToolsList(ctx context.Context) []providers.ToolDefinition
}

// toolListerNoCtx is the shape pkg/restservice and pkg/internaltools
// expose, since they need no context to enumerate statically-known tools.
type toolListerNoCtx interface {
	ToolsList() []providers.ToolDefinition
}

// Router is the contract every provider service (MCP, REST, internal)
// satisfies for routing a tools/call.
type Router interface {
	CanHandleRequest(name string) bool
	ToolsCall(ctx context.Context, name string, args map[string]any) (any, error)
}

// MCPCaller is the shape pkg/mcpservice.Service exposes: its ToolsCall
// returns a concrete *mcptransport.ToolCallResult rather than any, so it
// needs wrapping to satisfy Router.
type MCPCaller interface {
	CanHandleRequest(name string) bool
	ToolsCall(ctx context.Context, name string, args map[string]any) (*mcptransport.ToolCallResult, error)
}

type mcpRouter struct{ caller MCPCaller }

// WrapMCP adapts an MCPCaller (pkg/mcpservice.Service) into a Router.
func WrapMCP(caller MCPCaller) Router { return mcpRouter{caller} }

func (r mcpRouter) CanHandleRequest(name string) bool { return r.caller.CanHandleRequest(name) }

func (r mcpRouter) ToolsCall(ctx context.Context, name string, args map[string]any) (any, error) {
	return r.caller.ToolsCall(ctx, name, args)
}

// Dispatcher routes MCP JSON-RPC requests across the provider services.
type Dispatcher struct {
	mcpTools  ToolLister
	restTools toolListerNoCtx
	internal  toolListerNoCtx
	routers   []Router
}

// New builds a Dispatcher. routers is tried in order for tools/call; put
// internal tools first since they never touch a backend.
func New(mcpTools ToolLister, restTools toolListerNoCtx, internalTools toolListerNoCtx, routers ...Router) *Dispatcher {
	return &Dispatcher{mcpTools: mcpTools, restTools: restTools, internal: internalTools, routers: routers}
}

// Handle processes one JSON-RPC request and always returns a well-formed
// Response — internal dispatch failures are shaped into -32603, never
// propagated as a panic or a raw error.
func (d *Dispatcher) Handle(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	switch req.Method {
	case "initialize":
		return d.handleInitialize(req)
	case "notifications/initialized":
		return jsonrpc.NewSuccessResponse(req.ID, nil)
	case "tools/list":
		return d.handleToolsList(ctx, req)
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (d *Dispatcher) handleInitialize(req jsonrpc.Request) jsonrpc.Response {
	result := mcptransport.InitializeResult{
		ProtocolVersion: mcptransport.ProtocolVersion,
		ServerInfo:      mcptransport.ServerInfo{Name: "cubicler", Version: "1.0.0"},
		Capabilities:    mcptransport.Capabilities{Tools: &mcptransport.ToolsCapability{}},
	}
	return jsonrpc.NewSuccessResponse(req.ID, result)
}

func (d *Dispatcher) handleToolsList(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	var tools []providers.ToolDefinition
	tools = append(tools, d.mcpTools.ToolsList(ctx)...)
	tools = append(tools, d.restTools.ToolsList()...)
	tools = append(tools, d.internal.ToolsList()...)
	return jsonrpc.NewSuccessResponse(req.ID, mcptransport.ToolsListResult{Tools: toWireTools(tools)})
}

func toWireTools(defs []providers.ToolDefinition) []mcptransport.Tool {
	out := make([]mcptransport.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, mcptransport.Tool{Name: d.Name, Description: d.Description, InputSchema: d.Parameters})
	}
	return out
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	var params mcptransport.ToolCallParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidParams, "invalid tools/call params")
		}
	}

	for _, router := range d.routers {
		if !router.CanHandleRequest(params.Name) {
			continue
		}
		result, err := router.ToolsCall(ctx, params.Name, params.Arguments)
		if err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InternalError, err.Error())
		}
		return jsonrpc.NewSuccessResponse(req.ID, toolCallResultFor(result))
	}

	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound, fmt.Sprintf("unknown tool: %s", params.Name))
}

// toolCallResultFor wraps a router's return value in an MCP content
// envelope unless it already is one (the provider-MCP service returns a
// *mcptransport.ToolCallResult directly from the backend).
func toolCallResultFor(result any) mcptransport.ToolCallResult {
	if tr, ok := result.(*mcptransport.ToolCallResult); ok {
		return *tr
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return mcptransport.ToolCallResult{
			Content: []mcptransport.Content{mcptransport.NewTextContent(err.Error())},
			IsError: true,
		}
	}
	return mcptransport.ToolCallResult{Content: []mcptransport.Content{mcptransport.NewTextContent(string(raw))}}
}
