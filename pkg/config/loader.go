package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Source identifies where a configuration snapshot comes from: a local
// file path or an http(s) URL, exactly as named in the environment
// variables that configure the broker.
type Source struct {
	Location string
}

// IsURL reports whether the source is an HTTP(S) URL rather than a file path.
func (s Source) IsURL() bool {
	u, err := url.Parse(s.Location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// httpClient is shared by URL-sourced config loads; the MCP HTTP transport
// builds its own client with a longer per-request timeout.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// Load reads raw bytes from a Source, substitutes `{{env.NAME}}`
// placeholders from the process environment, and decodes the result into
// dst. Format (YAML vs JSON-with-comments) is inferred from a file
// extension or, for URLs, defaults to JSON.
func Load(src Source, dst any) error {
	raw, ext, err := fetch(src)
	if err != nil {
		return err
	}

	raw = substituteEnv(raw)

	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("parsing YAML from %s: %w", src.Location, err)
		}
		return nil
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return fmt.Errorf("parsing JSON from %s: %w", src.Location, err)
	}
	if err := json.Unmarshal(standardized, dst); err != nil {
		return fmt.Errorf("decoding JSON from %s: %w", src.Location, err)
	}
	return nil
}

func fetch(src Source) (data []byte, ext string, err error) {
	if src.IsURL() {
		resp, err := httpClient.Get(src.Location)
		if err != nil {
			return nil, "", fmt.Errorf("fetching %s: %w", src.Location, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, "", fmt.Errorf("fetching %s: status %d", src.Location, resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", src.Location, err)
		}
		return body, filepath.Ext(src.Location), nil
	}

	body, err := os.ReadFile(src.Location)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", src.Location, err)
	}
	return body, filepath.Ext(src.Location), nil
}

var envPlaceholder = regexp.MustCompile(`\{\{\s*env\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// substituteEnv replaces every `{{env.NAME}}` placeholder in raw with the
// value of the named environment variable. An unset variable substitutes
// as an empty string.
func substituteEnv(raw []byte) []byte {
	return envPlaceholder.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadAgents loads, defaults, and validates an agents configuration snapshot.
func LoadAgents(src Source) (*AgentsConfig, error) {
	var cfg AgentsConfig
	if err := Load(src, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := ValidateAgents(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProviders loads, defaults, and validates a providers configuration snapshot.
func LoadProviders(src Source) (*ProvidersConfig, error) {
	var cfg ProvidersConfig
	if err := Load(src, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := ValidateProviders(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWebhooks loads a webhooks configuration snapshot. No validation is
// imposed beyond decoding: webhooks are an out-of-scope collaborator.
func LoadWebhooks(src Source) (*WebhooksConfig, error) {
	var cfg WebhooksConfig
	if err := Load(src, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SourceFromEnv builds a Source from an environment variable, trimming
// surrounding whitespace so operators can paste a location with stray
// newlines without breaking the loader.
func SourceFromEnv(name string) (Source, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return Source{}, false
	}
	return Source{Location: v}, true
}
