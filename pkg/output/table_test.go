package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrinter_Agents_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Agents(nil)

	if buf.Len() != 0 {
		t.Errorf("Agents(nil) should output nothing, got %q", buf.String())
	}
}

func TestPrinter_Agents_WithData(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	agents := []AgentSummary{
		{Identifier: "support", Name: "Support Agent", Transport: "http", State: "configured"},
		{Identifier: "triage", Name: "Triage Agent", Transport: "sse", State: "configured"},
	}
	p.Agents(agents)

	got := buf.String()
	if !strings.Contains(got, "AGENTS") {
		t.Error("Agents() should contain section header")
	}
	if !strings.Contains(got, "IDENTIFIER") {
		t.Error("Agents() should contain IDENTIFIER header")
	}
	if !strings.Contains(got, "TRANSPORT") {
		t.Error("Agents() should contain TRANSPORT header")
	}
	if !strings.Contains(got, "support") {
		t.Error("Agents() should contain agent identifier")
	}
}

func TestPrinter_Servers_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Servers(nil)

	if buf.Len() != 0 {
		t.Errorf("Servers(nil) should output nothing, got %q", buf.String())
	}
}

func TestPrinter_Servers_WithData(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	servers := []ServerSummary{
		{Identifier: "weather", Type: "mcp", ToolsCount: 3, State: "ready"},
		{Identifier: "billing", Type: "rest", ToolsCount: 5, State: "ready"},
	}
	p.Servers(servers)

	got := buf.String()
	if !strings.Contains(got, "SERVERS") {
		t.Error("Servers() should contain section header")
	}
	if !strings.Contains(got, "TOOLS") {
		t.Error("Servers() should contain TOOLS header")
	}
	if !strings.Contains(got, "weather") {
		t.Error("Servers() should contain server identifier")
	}
}

func TestColorState(t *testing.T) {
	tests := []struct {
		state    string
		contains string // Non-TTY won't have colors, but function should not panic
	}{
		{"running", "running"},
		{"ready", "ready"},
		{"healthy", "healthy"},
		{"configured", "configured"},
		{"failed", "failed"},
		{"error", "error"},
		{"unreachable", "unreachable"},
		{"degraded", "degraded"},
		{"pending", "pending"},
		{"starting", "starting"},
		{"stopped", "stopped"},
		{"unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			result := colorState(tt.state)
			if !strings.Contains(result, tt.contains) {
				t.Errorf("colorState(%q) = %q, should contain %q", tt.state, result, tt.contains)
			}
		})
	}
}
