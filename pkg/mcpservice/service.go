// Package mcpservice is the provider-MCP service: it keeps one transport
// per configured MCP backend alive for the process lifetime and answers
// tools/list, tools/call, and routing-membership questions against it.
package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/logging"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/naming"
	"github.com/cubicler/cubicler/pkg/providers"
)

// Resolver records a server's discovered tool count after tools/list.
// pkg/providers.Repository satisfies this.
type Resolver interface {
	UpdateServerToolCount(identifier string, count int) error
}

// Service maintains serverIdentifier -> mcptransport.Transport, built
// lazily and kept for the process lifetime.
type Service struct {
	resolver Resolver
	logger   *slog.Logger

	mu         sync.RWMutex
	configs    map[string]config.McpServerConfig
	transports map[string]mcptransport.Transport

	healthMu sync.RWMutex
	health   map[string]*HealthStatus
}

// New builds a Service over the given MCP server configs, keyed by their
// snake-cased identifier to match pkg/providers' identifier scheme.
func New(servers []config.McpServerConfig, resolver Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	configs := make(map[string]config.McpServerConfig, len(servers))
	for _, s := range servers {
		configs[naming.Snake(s.Identifier)] = s
	}
	return &Service{
		resolver:   resolver,
		logger:     logger,
		configs:    configs,
		transports: make(map[string]mcptransport.Transport),
		health:     make(map[string]*HealthStatus),
	}
}

// Start initializes every configured server's transport. A server that
// fails to initialize is logged and left unavailable; startup continues.
func (s *Service) Start(ctx context.Context) {
	for identifier := range s.configs {
		if _, err := s.ensureTransport(ctx, identifier); err != nil {
			s.logger.Warn("mcp server unavailable at startup", "server", identifier, "error", err)
		}
	}
}

// ensureTransport returns the live transport for identifier, constructing
// and initializing it on first use (or re-use after a prior failure).
func (s *Service) ensureTransport(ctx context.Context, identifier string) (mcptransport.Transport, error) {
	s.mu.RLock()
	if tr, ok := s.transports[identifier]; ok && tr.IsConnected() {
		s.mu.RUnlock()
		return tr, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if tr, ok := s.transports[identifier]; ok && tr.IsConnected() {
		return tr, nil
	}

	cfg, ok := s.configs[identifier]
	if !ok {
		return nil, fmt.Errorf("unknown mcp server %q", identifier)
	}

	tr, err := mcptransport.New(cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("building transport for %s: %w", identifier, err)
	}
	if err := tr.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing %s: %w", identifier, err)
	}

	s.transports[identifier] = tr
	return tr, nil
}

// ToolsList sends tools/list to every live server, prefixing returned names
// with the server's hash token and mapping inputSchema to parameters.
func (s *Service) ToolsList(ctx context.Context) []providers.ToolDefinition {
	s.mu.RLock()
	identifiers := make([]string, 0, len(s.configs))
	for id := range s.configs {
		identifiers = append(identifiers, id)
	}
	s.mu.RUnlock()

	var out []providers.ToolDefinition
	for _, identifier := range identifiers {
		tr, err := s.ensureTransport(ctx, identifier)
		if err != nil {
			s.logger.Warn("skipping unavailable mcp server", "server", identifier, "error", err)
			continue
		}

		raw, err := tr.SendRequest(ctx, "tools/list", nil)
		if err != nil {
			s.logger.Warn("tools/list failed", "server", identifier, "error", err)
			continue
		}
		var result mcptransport.ToolsListResult
		if err := json.Unmarshal(raw, &result); err != nil {
			s.logger.Warn("tools/list decode failed", "server", identifier, "error", err)
			continue
		}

		cfg := s.configs[identifier]
		token := naming.Hash(identifier, cfg.EndpointHint())
		for _, tool := range result.Tools {
			out = append(out, providers.ToolDefinition{
				Name:        naming.ToolName(token, tool.Name),
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			})
		}
		if err := s.resolver.UpdateServerToolCount(identifier, len(result.Tools)); err != nil {
			s.logger.Warn("recording tool count failed", "server", identifier, "error", err)
		}
	}
	return out
}

// CanHandleRequest reports whether name parses to an external tool whose
// hash token belongs to one of this service's configured MCP servers.
func (s *Service) CanHandleRequest(name string) bool {
	parsed, err := naming.Parse(name)
	if err != nil || parsed.Kind != naming.KindExternal {
		return false
	}
	_, ok := s.identifierForHash(parsed.Token)
	return ok
}

func (s *Service) identifierForHash(hash string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for identifier, cfg := range s.configs {
		if naming.Hash(identifier, cfg.EndpointHint()) == hash {
			return identifier, true
		}
	}
	return "", false
}

// ToolsCall parses name, resolves its owning server, lazily initializes the
// transport if needed, and sends tools/call with the original function name
// and the given arguments.
func (s *Service) ToolsCall(ctx context.Context, name string, args map[string]any) (*mcptransport.ToolCallResult, error) {
	parsed, err := naming.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("parsing tool name %q: %w", name, err)
	}
	if parsed.Kind != naming.KindExternal {
		return nil, fmt.Errorf("tool %q is not routed to an mcp server", name)
	}

	identifier, ok := s.identifierForHash(parsed.Token)
	if !ok {
		return nil, fmt.Errorf("no mcp server for token %q", parsed.Token)
	}

	tr, err := s.ensureTransport(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("mcp transport unavailable: %w", err)
	}

	params := mcptransport.ToolCallParams{Name: parsed.Function, Arguments: args}
	raw, err := tr.SendRequest(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result mcptransport.ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding tools/call result: %w", err)
	}
	return &result, nil
}

// Close closes every transport this service has initialized.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for identifier, tr := range s.transports {
		if err := tr.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", identifier, err)
		}
	}
	return firstErr
}
