package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAgents_Valid(t *testing.T) {
	path := writeTempFile(t, "agents.yaml", `
basePrompt: "you are a helpful broker agent"
agents:
  - identifier: a1
    name: Agent One
    transport: http
    http:
      url: http://agent:8080
`)

	cfg, err := LoadAgents(Source{Location: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(cfg.Agents))
	}
	if cfg.Agents[0].CallTimeoutSeconds != defaultAgentCallTimeoutSeconds {
		t.Errorf("expected default call timeout applied, got %d", cfg.Agents[0].CallTimeoutSeconds)
	}
}

func TestLoadAgents_RejectsUnknownTransport(t *testing.T) {
	path := writeTempFile(t, "agents.yaml", `
agents:
  - identifier: a1
    name: Agent One
    transport: carrier-pigeon
`)

	if _, err := LoadAgents(Source{Location: path}); err == nil {
		t.Fatal("expected validation error for unknown transport")
	}
}

func TestLoadAgents_RejectsDuplicateIdentifier(t *testing.T) {
	path := writeTempFile(t, "agents.yaml", `
agents:
  - identifier: a1
    name: Agent One
    transport: http
    http:
      url: http://agent:8080
  - identifier: a1
    name: Agent Two
    transport: http
    http:
      url: http://agent2:8080
`)

	if _, err := LoadAgents(Source{Location: path}); err == nil {
		t.Fatal("expected validation error for duplicate identifier")
	}
}

func TestLoadProviders_Valid(t *testing.T) {
	path := writeTempFile(t, "providers.yaml", `
mcpServers:
  - identifier: wx
    transport: http
    url: http://weather:9000
restServers:
  - identifier: billing
    baseUrl: http://billing:8080
    endpoints:
      - name: GetInvoice
        method: GET
        path: /invoices/{id}
`)

	cfg, err := LoadProviders(Source{Location: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.McpServers) != 1 || len(cfg.RestServers) != 1 {
		t.Fatalf("unexpected server counts: %+v", cfg)
	}
	if cfg.RestServers[0].Endpoints[0].Method != "GET" {
		t.Errorf("expected method GET, got %q", cfg.RestServers[0].Endpoints[0].Method)
	}
}

func TestLoad_SubstitutesEnvPlaceholders(t *testing.T) {
	t.Setenv("WEATHER_URL", "http://weather-prod:9000")

	path := writeTempFile(t, "providers.yaml", `
mcpServers:
  - identifier: wx
    transport: http
    url: "{{env.WEATHER_URL}}"
`)

	cfg, err := LoadProviders(Source{Location: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.McpServers[0].URL != "http://weather-prod:9000" {
		t.Errorf("expected substituted URL, got %q", cfg.McpServers[0].URL)
	}
}

func TestSource_IsURL(t *testing.T) {
	cases := map[string]bool{
		"http://example.com/config.json":  true,
		"https://example.com/config.json": true,
		"/etc/cubicler/providers.yaml":    false,
		"providers.yaml":                  false,
	}
	for loc, want := range cases {
		if got := (Source{Location: loc}).IsURL(); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", loc, got, want)
		}
	}
}
