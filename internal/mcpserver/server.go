// Package mcpserver exposes the assistant's status and suggestion deck as
// MCP tools over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
	"github.com/hubenschmidt/interview-assistant/internal/state"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// Orchestrator is what the tools read and drive.
type Orchestrator interface {
	RequestStatus() state.Snapshot
	Deck() []pipeline.Suggestion
	OverrideMode(m mode.Mode)
	SendHotkey(index int) (pipeline.Suggestion, bool)
}

// Server wraps the MCP server and its tool handlers.
type Server struct {
	mcp  *server.MCPServer
	orch Orchestrator
}

// New registers the status, deck, override_mode and trigger_hotkey tools.
func New(orch Orchestrator, version string) *Server {
	s := &Server{
		mcp:  server.NewMCPServer("interview-assistant", version, server.WithToolCapabilities(false)),
		orch: orch,
	}

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Readiness of the ASR engine, the LLM and the database, plus the active conversation mode"),
	), s.status)

	s.mcp.AddTool(mcp.NewTool("deck",
		mcp.WithDescription("The current suggestion deck, best first"),
	), s.deck)

	s.mcp.AddTool(mcp.NewTool("override_mode",
		mcp.WithDescription("Pin the conversation mode until the next detection"),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("discovery or technical"),
			mcp.Enum(string(mode.Discovery), string(mode.Technical)),
		),
	), s.overrideMode)

	s.mcp.AddTool(mcp.NewTool("trigger_hotkey",
		mcp.WithDescription("Select a deck entry by index, as the 1-3 hotkeys do"),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("zero-based deck index"),
		),
	), s.triggerHotkey)

	return s
}

// Handler returns the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(EndpointPath),
		server.WithStateLess(true),
	)
}

func (s *Server) status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.orch.RequestStatus())
}

func (s *Server) deck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.orch.Deck())
}

func (s *Server) overrideMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := mode.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.orch.OverrideMode(m)
	return jsonResult(s.orch.RequestStatus())
}

func (s *Server) triggerHotkey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sg, ok := s.orch.SendHotkey(index)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no suggestion at index %d", index)), nil
	}
	return jsonResult(sg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
