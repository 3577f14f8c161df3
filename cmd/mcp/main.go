package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"nutriagent"
	"nutriagent/nutrients"
	"nutriagent/tools"
)

func main() {
	// stdout carries the protocol.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("SETUP: Failed to load .env", "error", err)
	}

	var offConfig nutriagent.OpenFoodFactsConfig
	if err := envdecode.Decode(&offConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	opts := offConfig.FetcherOpts()
	opts.HTTPClient = nutriagent.NewTracedHTTPClient(offConfig.Timeout)
	registry, err := tools.NewRegistry(nutrients.NewService(nutrients.NewFetcher(opts)))
	if err != nil {
		log.Fatalf("SETUP: Failed to create tool registry: %s", err)
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "nutri-agent", Version: "0.1.0"}, nil)
	for _, tool := range registry.GetTools() {
		server.AddTool(&mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		}, handler(tool))
		slog.Info("SETUP: Registered MCP tool", "name", tool.Name())
	}

	if err := server.Run(context.Background(), mcp.NewStdioTransport()); err != nil {
		log.Fatalf("MCP: Server stopped: %s", err)
	}
}

// handler adapts a registry tool to an MCP tool handler. The result is returned as JSON text
// so nutrient order is kept.
func handler(tool tools.Tool) mcp.ToolHandler {
	return func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
		out, err := tool.Run(ctx, params.Arguments)
		if err != nil {
			return &mcp.CallToolResultFor[any]{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
		}, nil
	}
}
