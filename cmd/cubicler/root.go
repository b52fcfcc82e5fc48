package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cubicler",
	Short: "Orchestration broker between conversational agents and tool backends",
	Long: `Cubicler is an orchestration broker sitting between conversational AI
agents and the MCP servers and REST APIs they call as tools.

It composes agent prompts, fans dispatch out to whichever transport an
agent is reached by, and routes every tool call through a single MCP
dispatcher in front of the configured backends.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
