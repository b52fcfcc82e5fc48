// Package agenttransport implements the four pluggable connectors that
// deliver one dispatch to an agent and service its tool callbacks against
// the MCP dispatcher while the agent is thinking.
package agenttransport

import (
	"context"
	"time"
)

// Default timeouts, all overridable by agent/server configuration.
const (
	DefaultAgentCallTimeout   = 90 * time.Second
	DefaultSSEResponseTimeout = 300 * time.Second
	DefaultStdioQueueWait     = 30 * time.Second
	DefaultStdioIdleTime      = 300 * time.Second
	DefaultStdioKillGrace     = 2 * time.Second
	DefaultMaxPoolSize        = 4
	DefaultQueueMax           = 100
)

// Sender identifies either the end user or the resolved agent in a Message
// or a DispatchResponse.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// MessageType enumerates the content shapes a Message or AgentResponse can
// carry.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageURL   MessageType = "url"
	MessageNull  MessageType = "null"
)

// Message is one turn in the conversation handed to an agent.
type Message struct {
	Sender    Sender         `json:"sender"`
	Timestamp time.Time      `json:"timestamp"`
	Type      MessageType    `json:"type"`
	Content   any            `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentInfo is the agent identity and prompt handed to the agent itself,
// assembled by the prompt composer.
type AgentInfo struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt"`
}

// ToolDefinition mirrors pkg/providers.ToolDefinition on the wire; agent
// transports only ever re-marshal it, never construct one.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// ServerSummary is the restriction-filtered view of one available server
// handed to the agent.
type ServerSummary struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ToolsCount  int    `json:"toolsCount"`
}

// AgentRequest is the full per-call context a transport delivers to an
// agent.
type AgentRequest struct {
	Agent    AgentInfo       `json:"agent"`
	Tools    []ToolDefinition `json:"tools"`
	Servers  []ServerSummary  `json:"servers"`
	Messages []Message        `json:"messages"`
}

// AgentResponse is what an agent hands back. All four fields must be
// present; Content may be null only when Type is MessageNull.
type AgentResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      MessageType    `json:"type"`
	Content   any            `json:"content"`
	Metadata  ResponseMetadata `json:"metadata"`
}

// ResponseMetadata carries usage counters an agent reports back.
type ResponseMetadata struct {
	UsedToken int `json:"usedToken"`
	UsedTools int `json:"usedTools"`
}

// Complete reports whether Timestamp, Type and Content are present.
// Content may be nil only for null-typed responses. Metadata is not
// checked: a response without it decodes with zero counters and passes.
func (r AgentResponse) Complete() bool {
	if r.Timestamp.IsZero() || r.Type == "" {
		return false
	}
	if r.Type != MessageNull && r.Content == nil {
		return false
	}
	return true
}

// MCPHandler is the callback surface a transport invokes when the agent
// issues a tools/list or tools/call request during a dispatch. The MCP
// dispatcher (pkg/dispatcher.Dispatcher), wrapped per-agent with the
// restriction evaluator, satisfies this.
type MCPHandler interface {
	HandleMCPRequest(ctx context.Context, method string, params any) (any, error)
}

// Transport is the common interface every agent delivery mode implements.
type Transport interface {
	// Dispatch delivers req to the agent and returns its response,
	// servicing any tool callbacks against handler while waiting.
	Dispatch(ctx context.Context, req AgentRequest, handler MCPHandler) (*AgentResponse, error)
}
