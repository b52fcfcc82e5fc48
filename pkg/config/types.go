// Package config defines the shape of Cubicler's configuration snapshots
// (agents, providers, webhooks) and the mechanics for loading, validating,
// and hot-reloading them. Sourcing and caching policy lives here; the
// semantics that consume these snapshots (restrictions, naming, dispatch)
// live in their own packages.
package config

// AgentTransportKind enumerates the delivery modes an agent can be reached by.
type AgentTransportKind string

const (
	TransportHTTP  AgentTransportKind = "http"
	TransportSSE   AgentTransportKind = "sse"
	TransportStdio AgentTransportKind = "stdio"
	TransportDirect AgentTransportKind = "direct"
)

// HTTPAgentTransport configures the request/response HTTP agent transport.
type HTTPAgentTransport struct {
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Auth    *AuthConfig       `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// SSEAgentTransport configures the push-to-agent SSE transport. Cubicler is
// the SSE server here; there is no outbound URL, only an identity the agent
// connects under.
type SSEAgentTransport struct {
	ClientID string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
}

// StdioAgentTransport configures a pooled subprocess agent.
type StdioAgentTransport struct {
	Command     []string          `yaml:"command" json:"command"`
	Cwd         string            `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	MaxPoolSize int               `yaml:"maxPoolSize,omitempty" json:"maxPoolSize,omitempty"`
	MaxIdleTime int               `yaml:"maxIdleTimeSeconds,omitempty" json:"maxIdleTimeSeconds,omitempty"`
	QueueMax    int               `yaml:"queueMaxSize,omitempty" json:"queueMaxSize,omitempty"`
	QueueWaitMs int               `yaml:"queueTimeoutMs,omitempty" json:"queueTimeoutMs,omitempty"`
}

// DirectAgentTransport configures an in-process provider-backed agent.
type DirectAgentTransport struct {
	Provider string            `yaml:"provider" json:"provider"` // currently only "openai"
	Model    string            `yaml:"model,omitempty" json:"model,omitempty"`
	APIKeyEnv string           `yaml:"apiKeyEnv,omitempty" json:"apiKeyEnv,omitempty"`
	BaseURL  string            `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	Options  map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// AuthConfig describes an outbound or inbound JWT bearer credential.
type AuthConfig struct {
	Type     string `yaml:"type" json:"type"` // "jwt"
	TokenEnv string `yaml:"tokenEnv,omitempty" json:"tokenEnv,omitempty"`
	Issuer   string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`
}

// AgentConfig is one configured agent.
type AgentConfig struct {
	Identifier  string `yaml:"identifier" json:"identifier"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Prompt       string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	PromptSource string `yaml:"promptSource,omitempty" json:"promptSource,omitempty"`

	Transport AgentTransportKind `yaml:"transport" json:"transport"`

	HTTP   *HTTPAgentTransport  `yaml:"http,omitempty" json:"http,omitempty"`
	SSE    *SSEAgentTransport   `yaml:"sse,omitempty" json:"sse,omitempty"`
	Stdio  *StdioAgentTransport `yaml:"stdio,omitempty" json:"stdio,omitempty"`
	Direct *DirectAgentTransport `yaml:"direct,omitempty" json:"direct,omitempty"`

	AllowedServers    []string `yaml:"allowedServers,omitempty" json:"allowedServers,omitempty"`
	AllowedTools      []string `yaml:"allowedTools,omitempty" json:"allowedTools,omitempty"`
	RestrictedServers []string `yaml:"restrictedServers,omitempty" json:"restrictedServers,omitempty"`
	RestrictedTools   []string `yaml:"restrictedTools,omitempty" json:"restrictedTools,omitempty"`

	CallTimeoutSeconds int `yaml:"callTimeoutSeconds,omitempty" json:"callTimeoutSeconds,omitempty"`
}

// AgentsConfig is the full agents snapshot. The first element is the
// default agent.
type AgentsConfig struct {
	BasePrompt    string        `yaml:"basePrompt,omitempty" json:"basePrompt,omitempty"`
	DefaultPrompt string        `yaml:"defaultPrompt,omitempty" json:"defaultPrompt,omitempty"`
	Agents        []AgentConfig `yaml:"agents" json:"agents"`
}

// DefaultAgent returns the default agent (the first configured one) and
// whether any agent is configured at all.
func (c *AgentsConfig) DefaultAgent() (AgentConfig, bool) {
	if len(c.Agents) == 0 {
		return AgentConfig{}, false
	}
	return c.Agents[0], true
}

// ByIdentifier looks up an agent by its identifier.
func (c *AgentsConfig) ByIdentifier(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.Identifier == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// McpServerConfig is one configured MCP backend, a tagged union by transport.
type McpServerConfig struct {
	Identifier string `yaml:"identifier" json:"identifier"`
	Transport  string `yaml:"transport" json:"transport"` // "http", "sse", "stdio"

	// http/sse
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Auth    *AuthConfig       `yaml:"auth,omitempty" json:"auth,omitempty"`

	// stdio
	Command []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Cwd     string            `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// EndpointHint returns the value `hash` is keyed on: the URL for a
// network-addressed server; for a subprocess one, Cwd followed by each
// Command element, space-separated (Args and Env are not included).
func (s *McpServerConfig) EndpointHint() string {
	if s.URL != "" {
		return s.URL
	}
	hint := s.Cwd
	for _, c := range s.Command {
		hint += " " + c
	}
	return hint
}

// RestEndpoint describes one callable operation on a REST-backed server.
type RestEndpoint struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Method      string            `yaml:"method" json:"method"` // GET, POST, PUT, DELETE, PATCH
	Path        string            `yaml:"path" json:"path"`     // may contain {param} segments
	Query       *JSONSchema       `yaml:"query,omitempty" json:"query,omitempty"`
	Payload     *JSONSchema       `yaml:"payload,omitempty" json:"payload,omitempty"`
	PathParams  map[string]JSONSchema `yaml:"pathParams,omitempty" json:"pathParams,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Transforms  []ResponseTransform `yaml:"transforms,omitempty" json:"transforms,omitempty"`
}

// ResponseTransform describes one step of a REST response post-processing
// pipeline, applied in order against a deep-cloned intermediate value.
type ResponseTransform struct {
	Path      string            `yaml:"path" json:"path"`
	Transform string            `yaml:"transform" json:"transform"` // remove, map, date_format, template, regex_replace
	Map       map[string]string `yaml:"map,omitempty" json:"map,omitempty"`
	Format    string            `yaml:"format,omitempty" json:"format,omitempty"`
	Template  string            `yaml:"template,omitempty" json:"template,omitempty"`
	Pattern   string            `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Replacement string          `yaml:"replacement,omitempty" json:"replacement,omitempty"`
}

// RestServerConfig is one configured REST-backed server.
type RestServerConfig struct {
	Identifier     string            `yaml:"identifier" json:"identifier"`
	Name           string            `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string            `yaml:"description,omitempty" json:"description,omitempty"`
	BaseURL        string            `yaml:"baseUrl" json:"baseUrl"`
	DefaultHeaders map[string]string `yaml:"defaultHeaders,omitempty" json:"defaultHeaders,omitempty"`
	Auth           *AuthConfig       `yaml:"auth,omitempty" json:"auth,omitempty"`
	Endpoints      []RestEndpoint    `yaml:"endpoints" json:"endpoints"`
}

// ProvidersConfig is the full providers snapshot: MCP servers enumerated
// first, then REST servers, establishing the ordinal index the provider
// repository assigns to each.
type ProvidersConfig struct {
	McpServers []McpServerConfig  `yaml:"mcpServers" json:"mcpServers"`
	RestServers []RestServerConfig `yaml:"restServers" json:"restServers"`
}

// WebhookConfig is one outbound notification target. Webhooks are an
// out-of-scope collaborator; only the typed snapshot shape is fixed here,
// nothing in the dispatch path consumes it.
type WebhookConfig struct {
	Identifier string   `yaml:"identifier" json:"identifier"`
	URL        string   `yaml:"url" json:"url"`
	Events     []string `yaml:"events,omitempty" json:"events,omitempty"`
}

// WebhooksConfig is the full webhooks snapshot.
type WebhooksConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// JSONSchema is the JSON-Schema subset used to describe tool parameters:
// type, required, properties, items. It round-trips through both YAML and
// JSON config sources and through the MCP wire format unchanged.
type JSONSchema struct {
	Type       string                 `yaml:"type,omitempty" json:"type,omitempty"`
	Required   []string               `yaml:"required,omitempty" json:"required,omitempty"`
	Properties map[string]*JSONSchema `yaml:"properties,omitempty" json:"properties,omitempty"`
	Items      *JSONSchema            `yaml:"items,omitempty" json:"items,omitempty"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
}
