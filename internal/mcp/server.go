package mcpserver

import (
	"context"
	"log"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"surveyflow/internal/client"
	"surveyflow/internal/config"
)

// api is the shared HTTP client used by all tool handlers.
var api *client.Client

// RunServer starts the MCP server over stdio transport. Tools are thin
// wrappers over the HTTP API, so the server must be running.
func RunServer(cfg *config.Config, version string) error {
	// Stdout carries the JSON-RPC stream.
	log.SetOutput(os.Stderr)

	api = client.New(cfg.Client.BaseURL, cfg.Client.Token)

	server := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "surveyflow",
			Version: version,
		},
		nil,
	)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "submit_rfq",
		Description: "Submit a request-for-questionnaire and start a survey generation workflow",
	}, submitRFQHandler)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "get_review",
		Description: "Fetch the prompt review attached to a workflow",
	}, getReviewHandler)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "edit_prompt",
		Description: "Replace the drafting prompt of a pending review",
	}, editPromptHandler)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "decide_review",
		Description: "Approve or reject a pending prompt review, resuming the paused workflow",
	}, decideReviewHandler)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "get_survey",
		Description: "Fetch a generated survey by ID",
	}, getSurveyHandler)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_golden",
		Description: "List the curated golden survey examples",
	}, listGoldenHandler)

	return server.Run(context.Background(), &mcpsdk.StdioTransport{})
}
