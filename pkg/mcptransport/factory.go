package mcptransport

import (
	"fmt"
	"log/slog"

	"github.com/cubicler/cubicler/pkg/config"
)

// New builds the Transport implementation matching cfg.Transport.
func New(cfg config.McpServerConfig, logger *slog.Logger) (Transport, error) {
	switch cfg.Transport {
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp server %s: http transport requires url", cfg.Identifier)
		}
		return NewHTTPTransport(cfg.Identifier, cfg.URL, cfg.Headers, bearerFrom(cfg.Auth)), nil
	case "sse":
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp server %s: sse transport requires url", cfg.Identifier)
		}
		return NewSSETransport(cfg.Identifier, cfg.URL, bearerFrom(cfg.Auth)), nil
	case "stdio":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("mcp server %s: stdio transport requires command", cfg.Identifier)
		}
		command := append(append([]string{}, cfg.Command...), cfg.Args...)
		return NewStdioTransport(cfg.Identifier, command, cfg.Cwd, cfg.Env, logger), nil
	default:
		return nil, fmt.Errorf("mcp server %s: unknown transport %q", cfg.Identifier, cfg.Transport)
	}
}
