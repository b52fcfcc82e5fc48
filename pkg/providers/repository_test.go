package providers

import (
	"testing"

	"github.com/cubicler/cubicler/pkg/config"
)

type fakeSource struct {
	cfg *config.ProvidersConfig
}

func (f *fakeSource) Get() (*config.ProvidersConfig, error) {
	return f.cfg, nil
}

func sampleConfig() *config.ProvidersConfig {
	return &config.ProvidersConfig{
		McpServers: []config.McpServerConfig{
			{Identifier: "wx", Transport: "http", URL: "http://weather:9000"},
		},
		RestServers: []config.RestServerConfig{
			{
				Identifier: "billing",
				Name:       "Billing",
				BaseURL:    "http://billing:8080",
				Endpoints: []config.RestEndpoint{
					{Name: "GetInvoice", Method: "GET", Path: "/invoices/{id}"},
				},
			},
		},
	}
}

func TestRepository_RefreshAndLookup(t *testing.T) {
	src := &fakeSource{cfg: sampleConfig()}
	repo := New(src)

	if err := repo.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	wx, ok := repo.GetServerByIdentifier("wx")
	if !ok {
		t.Fatal("expected server 'wx' to be found")
	}
	if wx.Type != TypeMCP || wx.Index != 0 {
		t.Errorf("unexpected metadata: %+v", wx)
	}

	billing, ok := repo.GetServerByIdentifier("billing")
	if !ok {
		t.Fatal("expected server 'billing' to be found")
	}
	if billing.Type != TypeREST || billing.Index != 1 {
		t.Errorf("unexpected metadata: %+v", billing)
	}

	byHash, ok := repo.GetServerByHash(wx.Hash)
	if !ok || byHash.Identifier != "wx" {
		t.Errorf("expected hash lookup to resolve back to 'wx', got %+v", byHash)
	}

	servers := repo.GetAvailableServers()
	if len(servers) != 2 {
		t.Fatalf("expected 2 available servers, got %d", len(servers))
	}
	if servers[0].Identifier != "wx" || servers[1].Identifier != "billing" {
		t.Errorf("expected MCP servers before REST servers, got %+v", servers)
	}
}

func TestRepository_HashIsStableAcrossRefresh(t *testing.T) {
	src := &fakeSource{cfg: sampleConfig()}
	repo := New(src)
	if err := repo.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	hashBefore, _ := repo.GetServerHash("wx")

	// Same content, new pointer: digest unchanged, metadata must not regenerate
	// with a different hash.
	src.cfg = sampleConfig()
	if err := repo.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	hashAfter, _ := repo.GetServerHash("wx")

	if hashBefore != hashAfter {
		t.Errorf("hash changed across refresh with identical config: %q != %q", hashBefore, hashAfter)
	}
}

func TestRepository_DigestChangeRegeneratesMetadata(t *testing.T) {
	src := &fakeSource{cfg: sampleConfig()}
	repo := New(src)
	if err := repo.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	changed := sampleConfig()
	changed.McpServers[0].URL = "http://weather-v2:9000"
	src.cfg = changed
	if err := repo.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	wx, ok := repo.GetServerByIdentifier("wx")
	if !ok {
		t.Fatal("expected server 'wx' to still be found after config change")
	}
	if wx.URLOrCommand != "http://weather-v2:9000" {
		t.Errorf("expected refreshed URL, got %q", wx.URLOrCommand)
	}
}

func TestRepository_UpdateServerToolCount(t *testing.T) {
	src := &fakeSource{cfg: sampleConfig()}
	repo := New(src)
	if err := repo.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := repo.UpdateServerToolCount("wx", 3); err != nil {
		t.Fatalf("UpdateServerToolCount: %v", err)
	}
	wx, _ := repo.GetServerByIdentifier("wx")
	if wx.ToolsCount != 3 {
		t.Errorf("expected tools count 3, got %d", wx.ToolsCount)
	}

	if err := repo.UpdateServerToolCount("does-not-exist", 1); err == nil {
		t.Error("expected error for unknown server")
	}
}

func TestRepository_UnknownServerLookupsMiss(t *testing.T) {
	src := &fakeSource{cfg: sampleConfig()}
	repo := New(src)
	if err := repo.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, ok := repo.GetServerByIdentifier("nope"); ok {
		t.Error("expected miss for unknown identifier")
	}
	if _, ok := repo.GetServerByHash("000000"); ok {
		t.Error("expected miss for unknown hash")
	}
}
