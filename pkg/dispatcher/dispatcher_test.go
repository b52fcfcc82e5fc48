package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cubicler/cubicler/pkg/jsonrpc"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/providers"
)

type fakeMCPLister struct{ tools []providers.ToolDefinition }

func (f *fakeMCPLister) ToolsList(context.Context) []providers.ToolDefinition { return f.tools }

type fakeLister struct{ tools []providers.ToolDefinition }

func (f *fakeLister) ToolsList() []providers.ToolDefinition { return f.tools }

type fakeRouter struct {
	prefix string
	result any
	err    error
}

func (f *fakeRouter) CanHandleRequest(name string) bool {
	return len(name) >= len(f.prefix) && name[:len(f.prefix)] == f.prefix
}

func (f *fakeRouter) ToolsCall(ctx context.Context, name string, args map[string]any) (any, error) {
	return f.result, f.err
}

func rawID(id int) *json.RawMessage {
	b, _ := json.Marshal(id)
	raw := json.RawMessage(b)
	return &raw
}

func TestDispatcher_ToolsListAggregates(t *testing.T) {
	mcp := &fakeMCPLister{tools: []providers.ToolDefinition{{Name: "abc123_get_current"}}}
	rest := &fakeLister{tools: []providers.ToolDefinition{{Name: "def456_get_invoice"}}}
	internal := &fakeLister{tools: []providers.ToolDefinition{{Name: "cubicler_available_servers"}}}

	d := New(mcp, rest, internal)
	resp := d.Handle(context.Background(), jsonrpc.Request{JSONRPC: "2.0", ID: rawID(1), Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	var result mcptransport.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if len(result.Tools) != 3 {
		t.Errorf("expected 3 tools aggregated, got %d", len(result.Tools))
	}
}

func TestDispatcher_ToolsCallRoutesByCanHandle(t *testing.T) {
	router := &fakeRouter{prefix: "abc123_", result: map[string]any{"ok": true}}
	d := New(&fakeMCPLister{}, &fakeLister{}, &fakeLister{}, router)

	params, _ := json.Marshal(mcptransport.ToolCallParams{Name: "abc123_get_current"})
	resp := d.Handle(context.Background(), jsonrpc.Request{JSONRPC: "2.0", ID: rawID(2), Method: "tools/call", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestDispatcher_ToolsCallUnknownTool(t *testing.T) {
	d := New(&fakeMCPLister{}, &fakeLister{}, &fakeLister{})
	params, _ := json.Marshal(mcptransport.ToolCallParams{Name: "ghost_tool"})
	resp := d.Handle(context.Background(), jsonrpc.Request{JSONRPC: "2.0", ID: rawID(3), Method: "tools/call", Params: params})
	if resp.Error == nil || resp.Error.Code != jsonrpc.MethodNotFound {
		t.Errorf("expected MethodNotFound, got %+v", resp.Error)
	}
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d := New(&fakeMCPLister{}, &fakeLister{}, &fakeLister{})
	resp := d.Handle(context.Background(), jsonrpc.Request{JSONRPC: "2.0", ID: rawID(4), Method: "resources/list"})
	if resp.Error == nil || resp.Error.Code != jsonrpc.MethodNotFound {
		t.Errorf("expected MethodNotFound for unknown method, got %+v", resp.Error)
	}
}

func TestDispatcher_Initialize(t *testing.T) {
	d := New(&fakeMCPLister{}, &fakeLister{}, &fakeLister{})
	resp := d.Handle(context.Background(), jsonrpc.Request{JSONRPC: "2.0", ID: rawID(5), Method: "initialize"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result mcptransport.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if result.ProtocolVersion != mcptransport.ProtocolVersion {
		t.Errorf("unexpected protocol version %q", result.ProtocolVersion)
	}
}

func TestDispatcher_ToolsCallRouterError(t *testing.T) {
	router := &fakeRouter{prefix: "abc123_", err: errBoom}
	d := New(&fakeMCPLister{}, &fakeLister{}, &fakeLister{}, router)
	params, _ := json.Marshal(mcptransport.ToolCallParams{Name: "abc123_get_current"})
	resp := d.Handle(context.Background(), jsonrpc.Request{JSONRPC: "2.0", ID: rawID(6), Method: "tools/call", Params: params})
	if resp.Error == nil || resp.Error.Code != jsonrpc.InternalError {
		t.Errorf("expected InternalError, got %+v", resp.Error)
	}
}

var errBoom = &dispatcherTestError{"boom"}

type dispatcherTestError struct{ msg string }

func (e *dispatcherTestError) Error() string { return e.msg }
