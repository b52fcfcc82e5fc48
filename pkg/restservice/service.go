// Package restservice is the provider-REST service: it synthesizes
// ToolDefinitions from configured REST endpoints and executes tool calls
// as HTTP requests against the owning server.
package restservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/cubicler/cubicler/pkg/brokererr"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/naming"
	"github.com/cubicler/cubicler/pkg/providers"
	"github.com/cubicler/cubicler/pkg/transform"
)

// Resolver records a server's discovered tool count. pkg/providers.Repository
// satisfies this.
type Resolver interface {
	UpdateServerToolCount(identifier string, count int) error
}

var pathParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// endpointEntry pairs a configured endpoint with the server it belongs to,
// keyed by the tool name agents will see.
type endpointEntry struct {
	server   config.RestServerConfig
	endpoint config.RestEndpoint
}

// Service synthesizes and executes tools for every configured REST server.
type Service struct {
	resolver   Resolver
	httpClient *http.Client

	// StrictParams, when set, rejects tool arguments that match neither a
	// path placeholder nor the query/payload subtrees. Wired from the
	// STRICT_PARAMS environment toggle by the composition root.
	StrictParams bool

	mu      sync.RWMutex
	byTool  map[string]endpointEntry
	servers map[string]config.RestServerConfig
}

// New builds a Service over the given REST server configs.
func New(servers []config.RestServerConfig, resolver Resolver) *Service {
	s := &Service{
		resolver:   resolver,
		httpClient: &http.Client{},
		byTool:     make(map[string]endpointEntry),
		servers:    make(map[string]config.RestServerConfig),
	}
	for _, srv := range servers {
		identifier := naming.Snake(srv.Identifier)
		s.servers[identifier] = srv
		token := naming.Hash(identifier, srv.BaseURL)
		for _, ep := range srv.Endpoints {
			name := naming.ToolName(token, ep.Name)
			s.byTool[name] = endpointEntry{server: srv, endpoint: ep}
		}
	}
	return s
}

// ToolsList synthesizes one ToolDefinition per configured endpoint and
// records each server's endpoint count.
func (s *Service) ToolsList() []providers.ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]providers.ToolDefinition, 0, len(s.byTool))
	counts := make(map[string]int)
	for name, entry := range s.byTool {
		out = append(out, providers.ToolDefinition{
			Name:        name,
			Description: entry.endpoint.Description,
			Parameters:  buildParameterSchema(entry.endpoint),
		})
		counts[naming.Snake(entry.server.Identifier)]++
	}
	for identifier, count := range counts {
		if err := s.resolver.UpdateServerToolCount(identifier, count); err != nil {
			continue
		}
	}
	return out
}

// buildParameterSchema derives the tool's input schema from the endpoint's
// path placeholders plus its query/payload sub-schemas.
func buildParameterSchema(ep config.RestEndpoint) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, name := range pathParamNames(ep.Path) {
		if explicit, ok := ep.PathParams[name]; ok {
			properties[name] = explicit
		} else {
			properties[name] = map[string]any{"type": "string"}
		}
		required = append(required, name)
	}
	if ep.Query != nil {
		properties["query"] = ep.Query
	}
	if ep.Payload != nil {
		properties["payload"] = ep.Payload
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return raw
}

func pathParamNames(path string) []string {
	matches := pathParamPattern.FindAllStringSubmatch(path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// CanHandleRequest reports whether name is a tool this service synthesized.
func (s *Service) CanHandleRequest(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byTool[name]
	return ok
}

// ToolsCall executes the REST call backing name with args, applying any
// configured response transforms to a successful JSON result.
func (s *Service) ToolsCall(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	entry, ok := s.byTool[name]
	s.mu.RUnlock()
	if !ok {
		return nil, brokererr.New(brokererr.UnknownTool, fmt.Sprintf("no rest endpoint for tool %q", name))
	}

	if s.StrictParams {
		if err := checkStrictArgs(entry.endpoint, args); err != nil {
			return nil, err
		}
	}

	path, err := substitutePath(entry.endpoint.Path, args)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.InvalidRequest, "substituting path parameters", err)
	}

	fullURL := strings.TrimSuffix(entry.server.BaseURL, "/") + path
	if query, ok := args["query"].(map[string]any); ok && len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, fmt.Sprintf("%v", v))
		}
		fullURL += "?" + values.Encode()
	}

	var bodyReader io.Reader
	hasBody := false
	if payload, ok := args["payload"]; ok && payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, brokererr.Wrap(brokererr.InvalidRequest, "marshaling payload", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
		hasBody = true
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(entry.endpoint.Method), fullURL, bodyReader)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.Internal, "building request", err)
	}

	for k, v := range entry.server.DefaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range entry.endpoint.Headers {
		req.Header.Set(k, v)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	applyAuth(req, entry.server.Auth)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.UpstreamError, "executing request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.UpstreamError, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, brokererr.Upstream(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if len(body) == 0 {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, brokererr.Wrap(brokererr.UpstreamError, "decoding response", err)
	}

	if len(entry.endpoint.Transforms) == 0 {
		return decoded, nil
	}
	return transform.Apply(decoded, entry.endpoint.Transforms)
}

// checkStrictArgs rejects argument keys the endpoint does not declare: the
// top level admits only path placeholders plus the query/payload subtrees,
// and query keys must appear in the endpoint's query schema.
func checkStrictArgs(ep config.RestEndpoint, args map[string]any) error {
	known := map[string]bool{"query": true, "payload": true}
	for _, name := range pathParamNames(ep.Path) {
		known[name] = true
	}
	for k := range args {
		if !known[k] {
			return brokererr.New(brokererr.InvalidRequest, fmt.Sprintf("unknown parameter %q for endpoint %s", k, ep.Name))
		}
	}
	if query, ok := args["query"].(map[string]any); ok && ep.Query != nil {
		for k := range query {
			if _, ok := ep.Query.Properties[k]; !ok {
				return brokererr.New(brokererr.InvalidRequest, fmt.Sprintf("unknown query parameter %q for endpoint %s", k, ep.Name))
			}
		}
	}
	return nil
}

func substitutePath(path string, args map[string]any) (string, error) {
	out := path
	for _, name := range pathParamNames(path) {
		val, ok := args[name]
		if !ok {
			return "", fmt.Errorf("missing path parameter %q", name)
		}
		out = strings.Replace(out, "{"+name+"}", url.PathEscape(fmt.Sprintf("%v", val)), 1)
	}
	return out, nil
}

func applyAuth(req *http.Request, auth *config.AuthConfig) {
	if auth == nil || auth.Type != "jwt" || auth.TokenEnv == "" {
		return
	}
	if tok := os.Getenv(auth.TokenEnv); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}
