// Package mcp exposes sidekick over the Model Context Protocol so agent
// hosts can trigger assistant requests and inspect skills as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/sidekick/pkg/assist"
	"github.com/ternarybob/sidekick/pkg/display"
	"github.com/ternarybob/sidekick/pkg/prompt"
	"github.com/ternarybob/sidekick/pkg/session"
	"github.com/ternarybob/sidekick/pkg/skill"
)

// Server wraps the lifecycle manager as an MCP tool provider.
type Server struct {
	manager  *assist.Manager
	composer *prompt.Composer
	registry *skill.Registry
	sessions *session.Store
	server   *server.MCPServer
}

// NewServer creates a new MCP server.
func NewServer(manager *assist.Manager, composer *prompt.Composer,
	registry *skill.Registry, sessions *session.Store) *Server {
	s := &Server{
		manager:  manager,
		composer: composer,
		registry: registry,
		sessions: sessions,
	}

	mcpServer := server.NewMCPServer(
		"sidekick",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.server = mcpServer
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// ask - start an assistant request
	mcpServer.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Send a prompt to the inline assistant. Supersedes any in-flight request."),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("The task text"),
			),
			mcp.WithString("file",
				mcp.Description("Optional file path the task refers to"),
			),
			mcp.WithString("excerpt",
				mcp.Description("Optional verbatim code excerpt"),
			),
			mcp.WithBoolean("use_session",
				mcp.Description("Continue the stored conversation (default: false)"),
			),
		),
		s.handleAsk,
	)

	// cancel - stop the in-flight request
	mcpServer.AddTool(
		mcp.NewTool("cancel",
			mcp.WithDescription("Cancel the in-flight assistant request. No-op when idle."),
		),
		s.handleCancel,
	)

	// list_skills - inspect the skill registry
	mcpServer.AddTool(
		mcp.NewTool("list_skills",
			mcp.WithDescription("List loaded skills with their trigger keywords."),
		),
		s.handleListSkills,
	)

	// session_state - inspect the continuation token slot
	mcpServer.AddTool(
		mcp.NewTool("session_state",
			mcp.WithDescription("Show the stored continuation token and current request state."),
		),
		s.handleSessionState,
	)
}

// handleAsk handles the ask tool.
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := request.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("text parameter is required"), nil
	}

	fc := prompt.FileContext{
		Path: request.GetString("file", ""),
		Text: request.GetString("excerpt", ""),
	}

	region := display.Region{ID: "mcp", Path: fc.Path}
	if fc.Path != "" {
		region.ID = fc.Path
	}
	s.manager.Start(assist.Request{
		Prompt:     s.composer.Compose(text, fc),
		Region:     region,
		UseSession: request.GetBool("use_session", false),
	})

	return mcp.NewToolResultText("request started"), nil
}

// handleCancel handles the cancel tool.
func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.manager.Cancel()
	return mcp.NewToolResultText("cancelled"), nil
}

// handleListSkills handles the list_skills tool.
func (s *Server) handleListSkills(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	skills := s.registry.LoadAll()

	type entry struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		Keywords    []string `json:"keywords"`
	}
	entries := make([]entry, 0, len(skills))
	for id, sk := range skills {
		entries = append(entries, entry{
			ID:          id,
			Name:        sk.Name,
			Description: sk.Description,
			Keywords:    sk.Keywords,
		})
	}

	jsonBytes, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal skills failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleSessionState handles the session_state tool.
func (s *Server) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := map[string]interface{}{
		"session": s.sessions.Snapshot(),
		"request": s.manager.Snapshot(),
	}

	jsonBytes, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal state failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ServeStdio starts the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}
