// Package prompt composes the text handed to an agent as AgentInfo.Prompt:
// the broker's base prompt, the default prompt, and the agent's own
// prompt fragment, followed by a machine-generated section listing the
// servers this agent may see.
package prompt

import (
	"fmt"
	"strings"

	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/providers"
)

// Compose builds the full prompt text for one agent dispatch: basePrompt,
// then defaultPrompt (both broker-wide and included for every agent when
// set), then the agent's own prompt, then the available-servers section
// built from the restriction-filtered servers.
func Compose(agentsCfg config.AgentsConfig, agent config.AgentConfig, servers []providers.AvailableServer) string {
	var sections []string

	if agentsCfg.BasePrompt != "" {
		sections = append(sections, agentsCfg.BasePrompt)
	}
	if agentsCfg.DefaultPrompt != "" {
		sections = append(sections, agentsCfg.DefaultPrompt)
	}
	if agent.Prompt != "" {
		sections = append(sections, agent.Prompt)
	}
	sections = append(sections, availableServersSection(servers))

	return strings.Join(sections, "\n\n")
}

func availableServersSection(servers []providers.AvailableServer) string {
	if len(servers) == 0 {
		return "Available servers: none."
	}
	var b strings.Builder
	b.WriteString("Available servers:\n")
	for _, s := range servers {
		desc := s.Description
		if desc == "" {
			desc = s.Name
		}
		fmt.Fprintf(&b, "- %s (%s): %s [%d tools]\n", s.Identifier, s.Name, desc, s.ToolsCount)
	}
	return strings.TrimRight(b.String(), "\n")
}
