// Package restrict evaluates whether a given agent may see or invoke a
// given server or tool, from that agent's allow/deny lists.
package restrict

import (
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/naming"
)

// ServerResolver resolves a hash token back to the server identifier that
// owns it. pkg/dispatch builds one with NewResolver over
// pkg/providers.Repository.GetServerByHash.
type ServerResolver interface {
	GetServerByHash(hash string) (identifier string, ok bool)
}

type resolverFunc func(hash string) (string, bool)

func (f resolverFunc) GetServerByHash(hash string) (string, bool) { return f(hash) }

// NewResolver adapts any func(hash string) (string, bool) into a ServerResolver.
func NewResolver(f func(hash string) (string, bool)) ServerResolver {
	return resolverFunc(f)
}

// Evaluator answers allow/deny questions for one agent's configuration.
// Pure given its inputs: no state beyond the AgentConfig and the resolver
// it was built with.
type Evaluator struct {
	agent    config.AgentConfig
	servers  ServerResolver
}

// New builds an Evaluator for agent, resolving external tool hashes
// through servers.
func New(agent config.AgentConfig, servers ServerResolver) *Evaluator {
	return &Evaluator{agent: agent, servers: servers}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IsServerAllowed applies the server rule: if allowedServers is non-empty,
// identifier must appear in it; if identifier appears in
// restrictedServers, it is denied regardless.
func (e *Evaluator) IsServerAllowed(identifier string) bool {
	if containsString(e.agent.RestrictedServers, identifier) {
		return false
	}
	if len(e.agent.AllowedServers) > 0 {
		return containsString(e.agent.AllowedServers, identifier)
	}
	return true
}

// IsToolAllowed applies the tool rule described in the restrictions
// evaluator contract. Internal tools (cubicler_*) are permitted unless
// explicitly restricted. External tools must resolve to a known server,
// pass that server's rule, and then pass the allowedTools/restrictedTools
// check keyed on "{serverIdentifier}.{function}", where function is the
// part after the token exactly as it appears in the tool name (the
// snake_case form for names built by naming.ToolName, e.g. "wx.get_current").
func (e *Evaluator) IsToolAllowed(toolName string) bool {
	parsed, err := naming.Parse(toolName)
	if err != nil {
		return false
	}

	if parsed.Kind == naming.KindInternal {
		return !containsString(e.agent.RestrictedTools, naming.InternalPrefix+parsed.Name)
	}

	identifier, ok := e.servers.GetServerByHash(parsed.Token)
	if !ok {
		return false
	}
	if !e.IsServerAllowed(identifier) {
		return false
	}

	key := identifier + "." + parsed.Function
	if containsString(e.agent.RestrictedTools, key) {
		return false
	}
	if len(e.agent.AllowedTools) > 0 {
		return containsString(e.agent.AllowedTools, key)
	}
	return true
}

// FilterAllowedServers batch-applies IsServerAllowed.
func (e *Evaluator) FilterAllowedServers(identifiers []string) []string {
	out := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if e.IsServerAllowed(id) {
			out = append(out, id)
		}
	}
	return out
}

// FilterAllowedTools batch-applies IsToolAllowed.
func (e *Evaluator) FilterAllowedTools(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if e.IsToolAllowed(n) {
			out = append(out, n)
		}
	}
	return out
}
