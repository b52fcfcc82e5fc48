package agenttransport

import (
	"fmt"
	"os"
	"time"

	"github.com/cubicler/cubicler/pkg/config"
)

func bearerFrom(auth *config.AuthConfig) func() string {
	if auth == nil || auth.Type != "jwt" || auth.TokenEnv == "" {
		return nil
	}
	envName := auth.TokenEnv
	return func() string { return os.Getenv(envName) }
}

// New builds the Transport configured for one agent. SSE transports are
// long-lived and registered separately against the HTTP layer; callers
// needing the underlying *SSETransport (to register connections) should
// construct it directly rather than going through this factory.
func New(agent config.AgentConfig, sse *SSETransport, pools map[string]*StdioPoolTransport) (Transport, error) {
	timeout := time.Duration(agent.CallTimeoutSeconds) * time.Second

	switch agent.Transport {
	case config.TransportHTTP:
		if agent.HTTP == nil || agent.HTTP.URL == "" {
			return nil, fmt.Errorf("agent %q: http transport requires a url", agent.Identifier)
		}
		return NewHTTPTransport(agent.HTTP.URL, agent.HTTP.Headers, bearerFrom(agent.HTTP.Auth), timeout), nil

	case config.TransportSSE:
		if sse == nil {
			return nil, fmt.Errorf("agent %q: sse transport not registered", agent.Identifier)
		}
		return sse, nil

	case config.TransportStdio:
		pool, ok := pools[agent.Identifier]
		if !ok {
			return nil, fmt.Errorf("agent %q: stdio pool not constructed", agent.Identifier)
		}
		return pool, nil

	case config.TransportDirect:
		if agent.Direct == nil {
			return nil, fmt.Errorf("agent %q: direct transport requires configuration", agent.Identifier)
		}
		return NewDirectTransport(DirectConfig{
			Provider: agent.Direct.Provider,
			Model:    agent.Direct.Model,
			APIKey:   os.Getenv(agent.Direct.APIKeyEnv),
			BaseURL:  agent.Direct.BaseURL,
			Timeout:  timeout,
		}), nil

	default:
		return nil, fmt.Errorf("agent %q: unknown transport %q", agent.Identifier, agent.Transport)
	}
}

// NewStdioPool builds the pool for a stdio agent config, using the
// agent's pooling overrides where provided.
func NewStdioPool(agent config.AgentConfig) (*StdioPoolTransport, error) {
	if agent.Stdio == nil {
		return nil, fmt.Errorf("agent %q: stdio transport requires configuration", agent.Identifier)
	}
	opts := StdioPoolOptions{
		MaxPoolSize: agent.Stdio.MaxPoolSize,
		MaxIdleTime: time.Duration(agent.Stdio.MaxIdleTime) * time.Second,
		QueueMax:    agent.Stdio.QueueMax,
		QueueWait:   time.Duration(agent.Stdio.QueueWaitMs) * time.Millisecond,
	}
	return NewStdioPoolTransport(agent.Stdio.Command, agent.Stdio.Cwd, agent.Stdio.Env, opts), nil
}
