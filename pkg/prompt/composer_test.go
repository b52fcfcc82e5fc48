package prompt

import (
	"strings"
	"testing"

	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/providers"
)

func TestCompose_JoinsAllSections(t *testing.T) {
	agentsCfg := config.AgentsConfig{BasePrompt: "base", DefaultPrompt: "default"}
	agent := config.AgentConfig{Prompt: "be helpful"}
	servers := []providers.AvailableServer{{Identifier: "wx", Name: "Weather", Description: "weather data", ToolsCount: 3}}

	out := Compose(agentsCfg, agent, servers)
	for _, want := range []string{"base", "default", "be helpful", "wx (Weather)", "[3 tools]"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected composed prompt to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCompose_NoServers(t *testing.T) {
	out := Compose(config.AgentsConfig{}, config.AgentConfig{}, nil)
	if !strings.Contains(out, "none") {
		t.Errorf("expected 'none' for empty server list, got:\n%s", out)
	}
}
