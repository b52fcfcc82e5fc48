package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cubicler/cubicler/pkg/mcptransport"
)

// HealthStatus records the last observed health of one MCP backend.
type HealthStatus struct {
	Healthy     bool
	LastCheck   time.Time
	LastHealthy time.Time
	Error       string
}

// ServerHealth is the per-server health row surfaced on GET /health.
type ServerHealth struct {
	Identifier string `json:"identifier"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
}

// StartHealthMonitor periodically checks every configured server and
// attempts reconnection for unhealthy ones. It stops when ctx is cancelled.
func (s *Service) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkHealth(ctx)
			}
		}
	}()
}

// checkHealth probes each configured server. ensureTransport doubles as the
// reconnection attempt: a server whose transport dropped gets a fresh
// initialize, and a recovered server has its tool count refreshed.
func (s *Service) checkHealth(ctx context.Context) {
	for _, identifier := range s.configuredIdentifiers() {
		now := time.Now()
		err := s.probe(ctx, identifier)

		s.healthMu.Lock()
		prev := s.health[identifier]
		status := &HealthStatus{Healthy: err == nil, LastCheck: now}
		recovered := false
		if err == nil {
			status.LastHealthy = now
			if prev != nil && !prev.Healthy {
				recovered = true
				s.logger.Info("mcp server recovered", "server", identifier)
			}
		} else {
			status.Error = err.Error()
			if prev != nil {
				status.LastHealthy = prev.LastHealthy
			}
			if prev == nil || prev.Healthy {
				s.logger.Warn("mcp server unhealthy", "server", identifier, "error", err)
			}
		}
		s.health[identifier] = status
		s.healthMu.Unlock()

		if recovered {
			s.refreshToolCount(ctx, identifier)
		}
	}
}

// probe round-trips a ping through the server's transport. ensureTransport
// rebuilds a dropped connection first, so a failed backend that has come
// back is re-initialized here rather than on the next tools call.
func (s *Service) probe(ctx context.Context, identifier string) error {
	tr, err := s.ensureTransport(ctx, identifier)
	if err != nil {
		return err
	}
	if !tr.IsConnected() {
		return fmt.Errorf("transport disconnected")
	}
	if _, err := tr.SendRequest(ctx, "ping", nil); err != nil {
		return err
	}
	return nil
}

func (s *Service) refreshToolCount(ctx context.Context, identifier string) {
	tr, err := s.ensureTransport(ctx, identifier)
	if err != nil {
		return
	}
	raw, err := tr.SendRequest(ctx, "tools/list", nil)
	if err != nil {
		s.logger.Warn("tool refresh after recovery failed", "server", identifier, "error", err)
		return
	}
	var result mcptransport.ToolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.Warn("tool refresh decode failed", "server", identifier, "error", err)
		return
	}
	if err := s.resolver.UpdateServerToolCount(identifier, len(result.Tools)); err != nil {
		s.logger.Warn("recording tool count failed", "server", identifier, "error", err)
	}
}

// ServerHealth returns one row per configured server, ordered by
// identifier. A server the monitor has not checked yet reports its current
// transport connectivity.
func (s *Service) ServerHealth() []ServerHealth {
	identifiers := s.configuredIdentifiers()

	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	out := make([]ServerHealth, 0, len(identifiers))
	for _, identifier := range identifiers {
		row := ServerHealth{Identifier: identifier}
		if st, ok := s.health[identifier]; ok {
			row.Healthy = st.Healthy
			row.Error = st.Error
		} else {
			row.Healthy = s.connected(identifier)
		}
		out = append(out, row)
	}
	return out
}

func (s *Service) configuredIdentifiers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identifiers := make([]string, 0, len(s.configs))
	for id := range s.configs {
		identifiers = append(identifiers, id)
	}
	sort.Strings(identifiers)
	return identifiers
}

func (s *Service) connected(identifier string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.transports[identifier]
	return ok && tr.IsConnected()
}
