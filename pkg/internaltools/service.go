// Package internaltools implements the two tools Cubicler synthesizes
// itself rather than routing to a backend: discovering available servers
// and fetching one server's tool list.
package internaltools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cubicler/cubicler/pkg/naming"
	"github.com/cubicler/cubicler/pkg/providers"
)

// AvailableServersToolName and FetchServerToolsToolName are the two
// agent-visible internal tool names.
var (
	AvailableServersToolName = naming.InternalToolName("available_servers")
	FetchServerToolsToolName = naming.InternalToolName("fetch_server_tools")
)

const selfIdentifier = "cubicler"

// ProviderSource supplies the snake_case server directory and
// identifier-to-hash resolution. pkg/providers.Repository satisfies this.
type ProviderSource interface {
	GetAvailableServers() []providers.AvailableServer
	GetServerHash(identifier string) (string, bool)
}

// MCPToolSource lists tools published by MCP-backed servers.
type MCPToolSource interface {
	ToolsList(ctx context.Context) []providers.ToolDefinition
}

// RESTToolSource lists tools synthesized from REST-backed servers.
type RESTToolSource interface {
	ToolsList() []providers.ToolDefinition
}

// Service answers the two internal tool calls.
type Service struct {
	providers ProviderSource
	mcp       MCPToolSource
	rest      RESTToolSource
}

// New builds a Service backed by the given directory and tool sources.
func New(providerSource ProviderSource, mcp MCPToolSource, rest RESTToolSource) *Service {
	return &Service{providers: providerSource, mcp: mcp, rest: rest}
}

// availableServersResult is the wire shape of cubicler_available_servers.
type availableServersResult struct {
	Total   int                        `json:"total"`
	Servers []providers.AvailableServer `json:"servers"`
}

// fetchServerToolsResult is the wire shape of cubicler_fetch_server_tools.
type fetchServerToolsResult struct {
	Tools []providers.ToolDefinition `json:"tools"`
}

// ToolsList returns the agent-visible ToolDefinitions for both internal
// tools, used both for the dispatcher's tools/list and as the self-describe
// payload for cubicler_fetch_server_tools("cubicler").
func (s *Service) ToolsList() []providers.ToolDefinition {
	availableServersSchema, _ := json.Marshal(map[string]any{
		"type": "object", "properties": map[string]any{},
	})
	fetchServerToolsSchema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"serverIdentifier": map[string]any{"type": "string"},
		},
		"required": []string{"serverIdentifier"},
	})
	return []providers.ToolDefinition{
		{
			Name:        AvailableServersToolName,
			Description: "List every configured backend server available to this broker.",
			Parameters:  availableServersSchema,
		},
		{
			Name:        FetchServerToolsToolName,
			Description: "Fetch the tools published by one backend server, by its identifier.",
			Parameters:  fetchServerToolsSchema,
		},
	}
}

// CanHandleRequest reports whether name is one of the two internal tools.
func (s *Service) CanHandleRequest(name string) bool {
	return name == AvailableServersToolName || name == FetchServerToolsToolName
}

// ToolsCall dispatches to the matching internal tool.
func (s *Service) ToolsCall(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case AvailableServersToolName:
		return s.availableServers(), nil
	case FetchServerToolsToolName:
		return s.fetchServerTools(ctx, args)
	default:
		return nil, fmt.Errorf("unknown internal tool %q", name)
	}
}

func (s *Service) availableServers() availableServersResult {
	servers := s.providers.GetAvailableServers()
	return availableServersResult{Total: len(servers), Servers: servers}
}

func (s *Service) fetchServerTools(ctx context.Context, args map[string]any) (fetchServerToolsResult, error) {
	identifier, _ := args["serverIdentifier"].(string)
	if identifier == "" {
		return fetchServerToolsResult{}, fmt.Errorf("serverIdentifier is required")
	}

	if identifier == selfIdentifier {
		return fetchServerToolsResult{Tools: s.ToolsList()}, nil
	}

	hash, ok := s.providers.GetServerHash(identifier)
	if !ok {
		return fetchServerToolsResult{}, fmt.Errorf("unknown server %q", identifier)
	}

	prefix := hash + "_"
	var tools []providers.ToolDefinition
	for _, t := range s.mcp.ToolsList(ctx) {
		if strings.HasPrefix(t.Name, prefix) {
			tools = append(tools, t)
		}
	}
	for _, t := range s.rest.ToolsList() {
		if strings.HasPrefix(t.Name, prefix) {
			tools = append(tools, t)
		}
	}
	return fetchServerToolsResult{Tools: tools}, nil
}
