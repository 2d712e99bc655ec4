package commands

import (
	"fmt"
	"os"

	"surveyflow/internal/config"
	mcpserver "surveyflow/internal/mcp"
)

// RunMCP starts the stdio MCP server. Stdout carries the JSON-RPC stream, so
// everything human-facing goes to stderr.
func RunMCP() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := mcpserver.RunServer(cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "[mcp] error: %v\n", err)
		os.Exit(1)
	}
}
