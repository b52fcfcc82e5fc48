package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/brokererr"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/jsonrpc"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/providers"
	"github.com/cubicler/cubicler/pkg/restrict"
)

func restrictForTest(agent config.AgentConfig) *restrict.Evaluator {
	return restrict.New(agent, restrict.NewResolver(func(hash string) (string, bool) { return "", false }))
}

type fakeAgents struct {
	cfg *config.AgentsConfig
	err error
}

func (f *fakeAgents) Get() (*config.AgentsConfig, error) { return f.cfg, f.err }

type fakeResolver struct{ byHash map[string]providers.ServerMetadata }

func (f *fakeResolver) GetServerByHash(hash string) (providers.ServerMetadata, bool) {
	m, ok := f.byHash[hash]
	return m, ok
}

type fakeMCP struct {
	availableServers []providers.AvailableServer
	tools            []mcptransport.Tool
}

func (f *fakeMCP) Handle(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	switch req.Method {
	case "tools/list":
		result, _ := json.Marshal(mcptransport.ToolsListResult{Tools: f.tools})
		return jsonrpc.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
	case "tools/call":
		var params mcptransport.ToolCallParams
		_ = json.Unmarshal(req.Params, &params)
		if params.Name == "cubicler_available_servers" {
			payload, _ := json.Marshal(struct {
				Total   int                         `json:"total"`
				Servers []providers.AvailableServer `json:"servers"`
			}{Total: len(f.availableServers), Servers: f.availableServers})
			result, _ := json.Marshal(mcptransport.ToolCallResult{Content: []mcptransport.Content{mcptransport.NewTextContent(string(payload))}})
			return jsonrpc.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
		}
		result, _ := json.Marshal(mcptransport.ToolCallResult{Content: []mcptransport.Content{mcptransport.NewTextContent("ok")}})
		return jsonrpc.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound, "unsupported in fake")
	}
}

type fakeTransport struct {
	resp *agenttransport.AgentResponse
	err  error
}

func (f *fakeTransport) Dispatch(ctx context.Context, req agenttransport.AgentRequest, handler agenttransport.MCPHandler) (*agenttransport.AgentResponse, error) {
	return f.resp, f.err
}

func testAgent(id string) config.AgentConfig {
	return config.AgentConfig{Identifier: id, Name: "Agent " + id}
}

func TestDispatch_EmptyMessagesIsInvalidRequest(t *testing.T) {
	svc := New(&fakeAgents{cfg: &config.AgentsConfig{Agents: []config.AgentConfig{testAgent("a")}}}, &fakeMCP{}, &fakeResolver{}, nil)
	_, err := svc.Dispatch(context.Background(), "", DispatchRequest{})
	if brokererr.CodeOf(err) != brokererr.InvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestDispatch_NoAgentsConfigured(t *testing.T) {
	svc := New(&fakeAgents{cfg: &config.AgentsConfig{}}, &fakeMCP{}, &fakeResolver{}, nil)
	_, err := svc.Dispatch(context.Background(), "", DispatchRequest{Messages: []agenttransport.Message{{Type: agenttransport.MessageText, Content: "hi"}}})
	if brokererr.CodeOf(err) != brokererr.NoAgents {
		t.Fatalf("expected NoAgents, got %v", err)
	}
}

func TestDispatch_UnknownAgent(t *testing.T) {
	svc := New(&fakeAgents{cfg: &config.AgentsConfig{Agents: []config.AgentConfig{testAgent("a")}}}, &fakeMCP{}, &fakeResolver{}, nil)
	_, err := svc.Dispatch(context.Background(), "ghost", DispatchRequest{Messages: []agenttransport.Message{{Type: agenttransport.MessageText, Content: "hi"}}})
	if brokererr.CodeOf(err) != brokererr.UnknownAgent {
		t.Fatalf("expected UnknownAgent, got %v", err)
	}
}

func TestDispatch_SuccessUsesDefaultAgentAndWrapsResponse(t *testing.T) {
	agent := testAgent("a")
	transport := &fakeTransport{resp: &agenttransport.AgentResponse{
		Timestamp: time.Now(),
		Type:      agenttransport.MessageText,
		Content:   "hello",
		Metadata:  agenttransport.ResponseMetadata{UsedToken: 10, UsedTools: 1},
	}}
	svc := New(
		&fakeAgents{cfg: &config.AgentsConfig{Agents: []config.AgentConfig{agent}}},
		&fakeMCP{availableServers: []providers.AvailableServer{{Identifier: "wx", Name: "Weather", ToolsCount: 2}}},
		&fakeResolver{},
		map[string]agenttransport.Transport{"a": transport},
	)

	resp, err := svc.Dispatch(context.Background(), "", DispatchRequest{Messages: []agenttransport.Message{{Type: agenttransport.MessageText, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Sender.ID != "a" || resp.Content != "hello" || resp.Metadata.UsedToken != 10 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatch_TransportFailureIsShapedAsErrorResponseWithZeroMetadata(t *testing.T) {
	agent := testAgent("a")
	transport := &fakeTransport{err: brokererr.New(brokererr.Timeout, "agent took too long")}
	svc := New(
		&fakeAgents{cfg: &config.AgentsConfig{Agents: []config.AgentConfig{agent}}},
		&fakeMCP{},
		&fakeResolver{},
		map[string]agenttransport.Transport{"a": transport},
	)

	resp, err := svc.Dispatch(context.Background(), "", DispatchRequest{Messages: []agenttransport.Message{{Type: agenttransport.MessageText, Content: "hi"}}})
	if err != nil {
		t.Fatalf("expected nil error with a shaped response, got %v", err)
	}
	if resp.Type != agenttransport.MessageText || resp.Metadata.UsedToken != 0 || resp.Metadata.UsedTools != 0 {
		t.Fatalf("expected zeroed error response, got %+v", resp)
	}
	if resp.Sender.ID != "a" {
		t.Fatalf("expected sender to still resolve to the agent, got %+v", resp.Sender)
	}
}

func TestDispatch_IncompleteAgentResponseIsShapedAsError(t *testing.T) {
	agent := testAgent("a")
	transport := &fakeTransport{resp: &agenttransport.AgentResponse{Type: agenttransport.MessageText}}
	svc := New(
		&fakeAgents{cfg: &config.AgentsConfig{Agents: []config.AgentConfig{agent}}},
		&fakeMCP{},
		&fakeResolver{},
		map[string]agenttransport.Transport{"a": transport},
	)

	resp, err := svc.Dispatch(context.Background(), "", DispatchRequest{Messages: []agenttransport.Message{{Type: agenttransport.MessageText, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Metadata.UsedToken != 0 {
		t.Fatalf("expected zeroed metadata for incomplete response, got %+v", resp.Metadata)
	}
}

func TestRestrictedMCPHandler_DeniesFilteredTool(t *testing.T) {
	agent := config.AgentConfig{Identifier: "a", RestrictedTools: []string{"cubicler_available_servers"}}
	evaluator := restrictForTest(agent)
	handler := &restrictedMCPHandler{mcp: &fakeMCP{}, evaluator: evaluator}

	_, err := handler.HandleMCPRequest(context.Background(), "tools/call", map[string]any{"name": "cubicler_available_servers"})
	if err == nil {
		t.Fatal("expected denial for a restricted internal tool")
	}
}

type errorMCP struct{ code int }

func (e *errorMCP) Handle(_ context.Context, req jsonrpc.Request) jsonrpc.Response {
	return jsonrpc.NewErrorResponse(req.ID, e.code, "no such tool")
}

func TestRestrictedMCPHandler_DeniedToolIsUnknownTool(t *testing.T) {
	// The resolver knows no hashes, so any external tool is denied.
	h := &restrictedMCPHandler{mcp: &fakeMCP{}, evaluator: restrictForTest(testAgent("a"))}

	_, err := h.HandleMCPRequest(context.Background(), "tools/call", map[string]any{"name": "abc123_get_current"})
	if brokererr.CodeOf(err) != brokererr.UnknownTool {
		t.Fatalf("expected UnknownTool for a denied tool, got %v", err)
	}
}

func TestRestrictedMCPHandler_PreservesDispatcherErrorCodes(t *testing.T) {
	h := &restrictedMCPHandler{mcp: &errorMCP{code: jsonrpc.MethodNotFound}, evaluator: restrictForTest(testAgent("a"))}
	_, err := h.HandleMCPRequest(context.Background(), "tools/call", map[string]any{"name": "cubicler_available_servers"})
	if brokererr.CodeOf(err) != brokererr.UnknownTool {
		t.Fatalf("expected MethodNotFound to surface as UnknownTool, got %v", err)
	}

	h = &restrictedMCPHandler{mcp: &errorMCP{code: jsonrpc.InternalError}, evaluator: restrictForTest(testAgent("a"))}
	_, err = h.HandleMCPRequest(context.Background(), "tools/call", map[string]any{"name": "cubicler_available_servers"})
	if brokererr.CodeOf(err) != brokererr.Internal {
		t.Fatalf("expected InternalError to surface as Internal, got %v", err)
	}
}
