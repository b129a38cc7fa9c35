// Package mcp exposes the family intents as Model Context Protocol tools,
// so an external assistant can query the library and the vaquinha on behalf
// of one registered member.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/steamfamilyzap/kgbot/internal/intents"
	"github.com/steamfamilyzap/kgbot/internal/store"
)

// IntentRunner executes one named intent for a requester.
type IntentRunner interface {
	ParseAndDispatch(ctx context.Context, name string, args map[string]any, requester *store.Profile) (*intents.Result, error)
}

// NewServer registers every intent as a tool. Calls run as requester.
func NewServer(version string, runner IntentRunner, requester *store.Profile) (*server.MCPServer, error) {
	if requester == nil {
		return nil, errors.New("mcp: requester profile is required")
	}
	s := server.NewMCPServer(
		"kgbot",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(fmt.Sprintf(
			"Steam family tools. Calls run as family member %q; pass identifier 'me' for their own data.",
			requester.Nickname)),
	)

	for _, def := range intents.Definitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("mcp: schema for %s: %w", def.Name, err)
		}
		tool := mcpgo.NewToolWithRawSchema(def.Name, def.Description, schema)
		s.AddTool(tool, toolHandler(def.Name, runner, requester))
	}
	return s, nil
}

func toolHandler(name string, runner IntentRunner, requester *store.Profile) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		res, err := runner.ParseAndDispatch(ctx, name, req.GetArguments(), requester)
		if err != nil {
			slog.Warn("mcp.tool.failed", "tool", name, "error", err)
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		body, err := json.Marshal(res.Payload())
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		if res.IsError() {
			return mcpgo.NewToolResultError(string(body)), nil
		}
		return mcpgo.NewToolResultText(string(body)), nil
	}
}

// ServeStdio blocks serving s over stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
