// Package mcpserver exposes the task engine's intent dispatcher over the
// Model Context Protocol: a single "task_intent" tool forwarding its
// input object straight to Dispatcher.Process, matching §5's "one entry
// point, one envelope" transport design.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/apply-task/taskengine/internal/intent"
)

const (
	serverName    = "taskengine"
	serverVersion = "0.1.0"
	toolName      = "task_intent"
)

// Server wraps an mcp.Server bound to one Dispatcher.
type Server struct {
	dispatcher *intent.Dispatcher
	mcp        *mcp.Server
}

// New builds an MCP server exposing d's process_intent entry point as a
// single tool.
func New(d *intent.Dispatcher) *Server {
	impl := &mcp.Implementation{Name: serverName, Version: serverVersion}
	s := &Server{dispatcher: d, mcp: mcp.NewServer(impl, nil)}
	s.registerTools()
	return s
}

// IntentInput is the single tool's input: the raw intent envelope
// (intent name plus whatever fields that intent needs), passed through
// to Dispatcher.Process unchanged.
type IntentInput map[string]any

// IntentOutput mirrors intent.Response's JSON shape so MCP clients get
// the same envelope process_intent would return directly.
type IntentOutput map[string]any

func (s *Server) registerTools() {
	tool := &mcp.Tool{
		Name: toolName,
		Description: "Execute one task-engine intent (create, edit, verify, done, " +
			"context, radar, undo, ...). The input object's \"intent\" field selects " +
			"the operation; remaining fields are intent-specific, per the intent catalog.",
	}
	mcp.AddTool(s.mcp, tool, s.handleIntent)
}

func (s *Server) handleIntent(ctx context.Context, req *mcp.CallToolRequest, input IntentInput) (*mcp.CallToolResult, IntentOutput, error) {
	resp := s.dispatcher.Process(map[string]any(input))
	out, err := responseToOutput(resp)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal intent response for MCP")
		return nil, nil, fmt.Errorf("marshal response: %w", err)
	}
	result := &mcp.CallToolResult{IsError: !resp.Success}
	return result, out, nil
}

// Run blocks serving the tool catalog over transport (typically stdio).
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcp.Run(ctx, transport)
}
