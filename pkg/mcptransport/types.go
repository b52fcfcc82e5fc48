// Package mcptransport implements the three wire-level connections a
// provider-MCP backend can be reached over (http, sse, stdio) behind one
// interface, plus a factory that picks the right one from server config.
package mcptransport

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/cubicler/cubicler/pkg/jsonrpc"
)

// lookupEnv reads an env var by name, returning "" if unset. Factored out
// so the http/sse transports share one place to resolve bearer tokens.
func lookupEnv(name string) string { return os.Getenv(name) }

// ProtocolVersion is the MCP protocol version this broker speaks.
const ProtocolVersion = "2024-11-05"

// Timeouts used by every transport the factory builds; the factory takes no
// overrides.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultSSEOpenTimeout = 2 * time.Second
	DefaultStdioKillGrace = 5 * time.Second
)

// Request/Response are the JSON-RPC 2.0 wire types exchanged with MCP
// backends, re-used verbatim from pkg/jsonrpc.
type Request = jsonrpc.Request
type Response = jsonrpc.Response
type Error = jsonrpc.Error

// ServerInfo/ClientInfo/Capabilities mirror the MCP initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// Tool is one MCP tool definition as returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func NewTextContent(text string) Content { return Content{Type: "text", Text: text} }

type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Transport is the common contract every MCP backend connection satisfies,
// per the one-interface-three-implementations shape.
type Transport interface {
	ServerIdentifier() string
	Initialize(ctx context.Context) error
	SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
	Close() error
	IsConnected() bool
}
