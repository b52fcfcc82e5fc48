package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// AgentSummary contains data for the agents status table.
type AgentSummary struct {
	Identifier string
	Name       string
	Transport  string // http, sse, stdio, direct
	State      string // configured, unreachable (best-effort probe result)
}

// ServerSummary contains data for the backend servers status table.
type ServerSummary struct {
	Identifier string
	Type       string // mcp, rest
	ToolsCount int
	State      string // ready, unreachable
}

// HealthSummary contains data for the single-line broker health row.
type HealthSummary struct {
	Status string // healthy, degraded
	Uptime string
}

// Agents prints the agents status table with amber styling.
func (p *Printer) Agents(agents []AgentSummary) {
	if len(agents) == 0 {
		return
	}

	p.Section("AGENTS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"Identifier", "Name", "Transport", "State"})

	for _, a := range agents {
		state := a.State
		if p.isTTY {
			state = colorState(a.State)
		}
		t.AppendRow(table.Row{a.Identifier, a.Name, a.Transport, state})
	}

	t.Render()
	p.Println()
}

// Servers prints the backend servers status table with amber styling.
func (p *Printer) Servers(servers []ServerSummary) {
	if len(servers) == 0 {
		return
	}

	p.Section("SERVERS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"Identifier", "Type", "Tools", "State"})

	for _, s := range servers {
		state := s.State
		if p.isTTY {
			state = colorState(s.State)
		}
		t.AppendRow(table.Row{s.Identifier, s.Type, s.ToolsCount, state})
	}

	t.Render()
	p.Println()
}

// colorState applies color to state based on status.
func colorState(state string) string {
	var style lipgloss.Style
	switch state {
	case "running", "ready", "healthy", "configured":
		style = lipgloss.NewStyle().Foreground(ColorGreen)
	case "failed", "error", "unreachable", "degraded":
		style = lipgloss.NewStyle().Foreground(ColorRed)
	case "pending", "starting":
		style = lipgloss.NewStyle().Foreground(ColorAmber)
	case "stopped":
		style = lipgloss.NewStyle().Foreground(ColorMuted)
	default:
		style = lipgloss.NewStyle().Foreground(ColorGray)
	}
	return style.Render(state)
}

// tableStyle returns the standard amber-themed table style.
func (p *Printer) tableStyle() table.Style {
	style := table.StyleRounded
	if p.isTTY {
		style.Color.Header = text.Colors{text.FgHiYellow, text.Bold}
		style.Color.Border = text.Colors{text.FgHiBlack}
	}
	style.Options.SeparateRows = false
	return style
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	if p.isTTY {
		style := lipgloss.NewStyle().Foreground(ColorAmber).Bold(true)
		p.Println(style.Render(title))
	} else {
		p.Println(title)
	}
}
