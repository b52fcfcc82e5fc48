package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cubicler/cubicler/pkg/output"
)

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show broker, agent, and backend status",
	Long: `Queries a running broker's /agents, /health, and MCP endpoints and
prints the configured agents and backend servers as tables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(statusURL)
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusURL, "url", "u", "http://localhost:1503", "Base URL of the running broker")
}

type agentsResponse struct {
	Total  int `json:"total"`
	Agents []struct {
		Identifier  string `json:"identifier"`
		Name        string `json:"name"`
		Transport   string `json:"transport"`
		Description string `json:"description"`
	} `json:"agents"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Servers []struct {
		Identifier string `json:"identifier"`
		Healthy    bool   `json:"healthy"`
		Error      string `json:"error"`
	} `json:"servers"`
}

type availableServersResponse struct {
	Total   int `json:"total"`
	Servers []struct {
		Identifier  string `json:"identifier"`
		Name        string `json:"name"`
		Description string `json:"description"`
		ToolsCount  int    `json:"toolsCount"`
	} `json:"servers"`
}

func runStatus(baseURL string) error {
	printer := output.New()
	base := strings.TrimSuffix(baseURL, "/")
	client := &http.Client{Timeout: 10 * time.Second}

	var agents agentsResponse
	if err := getJSON(client, base+"/agents", &agents); err != nil {
		return fmt.Errorf("broker unreachable at %s: %w", base, err)
	}

	var health healthResponse
	healthErr := getJSON(client, base+"/health", &health)

	mcpHealth := make(map[string]bool)
	isMCP := make(map[string]bool)
	for _, s := range health.Servers {
		mcpHealth[s.Identifier] = s.Healthy
		isMCP[s.Identifier] = true
	}

	agentRows := make([]output.AgentSummary, 0, len(agents.Agents))
	for _, a := range agents.Agents {
		agentRows = append(agentRows, output.AgentSummary{
			Identifier: a.Identifier,
			Name:       a.Name,
			Transport:  a.Transport,
			State:      "configured",
		})
	}
	printer.Agents(agentRows)

	servers, err := fetchAvailableServers(client, base)
	if err != nil {
		printer.Warn("could not list backend servers", "error", err)
	} else {
		serverRows := make([]output.ServerSummary, 0, len(servers.Servers))
		for _, s := range servers.Servers {
			typ := "rest"
			state := "ready"
			if isMCP[s.Identifier] {
				typ = "mcp"
				if !mcpHealth[s.Identifier] {
					state = "unreachable"
				}
			}
			serverRows = append(serverRows, output.ServerSummary{
				Identifier: s.Identifier,
				Type:       typ,
				ToolsCount: s.ToolsCount,
				State:      state,
			})
		}
		printer.Servers(serverRows)
	}

	switch {
	case healthErr != nil:
		printer.Warn("health check failed", "error", healthErr)
	case health.Status == "healthy":
		printer.Info("broker healthy", "uptime", health.Uptime)
	default:
		printer.Warn("broker degraded", "uptime", health.Uptime)
	}
	return nil
}

func getJSON(client *http.Client, url string, dst any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// /health serves 503 with a body while degraded; still decode it.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// fetchAvailableServers asks the broker's own MCP endpoint for the server
// directory, the same way agents discover it.
func fetchAvailableServers(client *http.Client, base string) (*availableServersResponse, error) {
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"cubicler_available_servers","arguments":{}}}`
	resp, err := client.Post(base+"/mcp", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpc struct {
		Result *struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, err
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("mcp error: %s", rpc.Error.Message)
	}
	if rpc.Result == nil || len(rpc.Result.Content) == 0 {
		return nil, fmt.Errorf("empty result")
	}

	var servers availableServersResponse
	if err := json.Unmarshal([]byte(rpc.Result.Content[0].Text), &servers); err != nil {
		return nil, err
	}
	return &servers, nil
}
