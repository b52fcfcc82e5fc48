// Package providers is the single source of truth for backend server
// metadata: the stable identifiers, hash tokens, and ordinal indices
// derived from a providers configuration snapshot.
package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/naming"
)

// Type distinguishes the two backend kinds a server can be.
type Type string

const (
	TypeMCP  Type = "mcp"
	TypeREST Type = "rest"
)

// ServerMetadata is the derived, agent-safe description of one configured
// backend server.
type ServerMetadata struct {
	Identifier   string
	Name         string
	Description  string
	URLOrCommand string
	Hash         string
	ToolsCount   int
	Type         Type
	Index        int
}

// AvailableServer is the shape the internal tools service and the agent
// context builder expose to agents: no hash, no URL.
type AvailableServer struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ToolsCount  int    `json:"toolsCount"`
}

// ToolDefinition is the agent-visible shape of one tool, regardless of
// whether it is routed to an MCP server, a REST endpoint, or synthesized
// internally. Name always carries the routing token: "{hash}_{function}"
// or "cubicler_*".
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Source supplies providers configuration snapshots. config.ProvidersRepository
// satisfies this.
type Source interface {
	Get() (*config.ProvidersConfig, error)
}

// Repository caches ServerMetadata derived from the latest providers
// snapshot, regenerating it only when the snapshot's content digest
// changes. Reads are served from the cache under a read lock; on a digest
// mismatch the metadata is rebuilt without holding the lock and swapped in
// under a write lock.
type Repository struct {
	source Source

	mu       sync.RWMutex
	digest   string
	byID     map[string]*ServerMetadata
	byHash   map[string]*ServerMetadata
	ordered  []*ServerMetadata
}

// New builds a Repository reading snapshots from source.
func New(source Source) *Repository {
	return &Repository{source: source}
}

// Refresh loads the current snapshot and regenerates metadata if its
// content digest differs from the last accepted one. Safe to call
// concurrently with reads; a no-op if nothing changed.
func (r *Repository) Refresh() error {
	cfg, err := r.source.Get()
	if err != nil {
		return fmt.Errorf("loading providers config: %w", err)
	}

	digest, err := contentDigest(cfg)
	if err != nil {
		return fmt.Errorf("digesting providers config: %w", err)
	}

	r.mu.RLock()
	unchanged := digest == r.digest && r.digest != ""
	r.mu.RUnlock()
	if unchanged {
		return nil
	}

	byID := make(map[string]*ServerMetadata, len(cfg.McpServers)+len(cfg.RestServers))
	byHash := make(map[string]*ServerMetadata, len(cfg.McpServers)+len(cfg.RestServers))
	ordered := make([]*ServerMetadata, 0, len(cfg.McpServers)+len(cfg.RestServers))

	index := 0
	for _, s := range cfg.McpServers {
		m := buildMetadata(s.Identifier, "", "", s.EndpointHint(), TypeMCP, index)
		byID[m.Identifier] = m
		byHash[m.Hash] = m
		ordered = append(ordered, m)
		index++
	}
	for _, s := range cfg.RestServers {
		m := buildMetadata(s.Identifier, s.Name, s.Description, s.BaseURL, TypeREST, index)
		byID[m.Identifier] = m
		byHash[m.Hash] = m
		ordered = append(ordered, m)
		index++
	}

	r.mu.Lock()
	r.digest = digest
	r.byID = byID
	r.byHash = byHash
	r.ordered = ordered
	r.mu.Unlock()
	return nil
}

func buildMetadata(identifier, name, description, urlOrCommand string, typ Type, index int) *ServerMetadata {
	snake := naming.Snake(identifier)
	return &ServerMetadata{
		Identifier:   snake,
		Name:         coalesce(name, identifier),
		Description:  description,
		URLOrCommand: urlOrCommand,
		Hash:         naming.Hash(snake, urlOrCommand),
		Type:         typ,
		Index:        index,
	}
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func contentDigest(cfg *config.ProvidersConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// GetServerByIdentifier looks up metadata by snake_case identifier.
func (r *Repository) GetServerByIdentifier(identifier string) (ServerMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[identifier]
	if !ok {
		return ServerMetadata{}, false
	}
	return *m, true
}

// GetServerByHash resolves the owning server's identifier from its hash
// token; used by the restrictions evaluator to turn an external tool's
// token back into a server identifier.
func (r *Repository) GetServerByHash(hash string) (ServerMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byHash[hash]
	if !ok {
		return ServerMetadata{}, false
	}
	return *m, true
}

// GetServerHash returns the hash token for a snake_case identifier.
func (r *Repository) GetServerHash(identifier string) (string, bool) {
	m, ok := r.GetServerByIdentifier(identifier)
	if !ok {
		return "", false
	}
	return m.Hash, true
}

// GetAvailableServers returns the agent-shaped server summary, in the
// order servers were enumerated (MCP first, then REST).
func (r *Repository) GetAvailableServers() []AvailableServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AvailableServer, 0, len(r.ordered))
	for _, m := range r.ordered {
		out = append(out, AvailableServer{
			Identifier:  m.Identifier,
			Name:        m.Name,
			Description: m.Description,
			ToolsCount:  m.ToolsCount,
		})
	}
	return out
}

// UpdateServerToolCount records the tool count discovered for a server
// after a tools/list call. Called by the provider-MCP and provider-REST
// services, never by a reader.
func (r *Repository) UpdateServerToolCount(identifier string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[identifier]
	if !ok {
		return fmt.Errorf("unknown server %q", identifier)
	}
	m.ToolsCount = count
	return nil
}
