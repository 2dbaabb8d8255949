// Package mcp provides the clibridge MCP server, registering the CLI tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/clibridge"
	"github.com/deixis/clibridge/internal/config"
	"github.com/deixis/clibridge/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *workflow.Engine
	log    *slog.Logger
}

// NewServer creates an MCP server with all clibridge tools registered.
func NewServer(engine *workflow.Engine, opts ...ServerOption) *mcp.Server {
	so := serverOptions{roots: true}
	for _, o := range opts {
		o(&so)
	}
	log := so.log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &handler{
		engine: engine,
		log:    log.With("component", "mcp"),
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	if so.roots {
		mcpOpts.InitializedHandler = func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		}
		mcpOpts.RootsListChangedHandler = func(ctx context.Context, req *mcp.RootsListChangedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		}
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "clibridge", Version: clibridge.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "codex",
		Description: `Ask the Codex CLI to review code and return its verdict.

Codex acts as a reviewer: it reads the workspace and reports on quality, bugs and
completeness. The sandbox defaults to read-only. Pass the returned session_id back
as session_id to continue the same conversation.`,
	}, h.codexHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "gemini",
		Description: `Ask the Gemini CLI a question in headless mode and return its answer.

Use this for a second opinion, research or design discussion. Pass the returned
session_id back as session_id to continue the same conversation.`,
	}, h.geminiHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "glm",
		Description: `Delegate a coding task to a GLM model through the Claude CLI.

The GLM endpoint and API key come from the .clibridge configuration and environment.
Pass the returned session_id back as session_id to continue the same conversation.`,
	}, h.glmHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "inspect",
		Description: `Drill into the raw records of a past codex, gemini or glm run.

Use the run_id from a tool result. Filter by record type (e.g. "turn.completed"),
by type prefix ending in "." (e.g. "item."), or by nested item type (e.g. "item:agent_message").`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "status",
		Description: "Summarise the bridge: workspace, configuration file, and which CLIs are installed.",
	}, h.statusHandler)

	return s
}

// ServerOption configures the clibridge MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	log   *slog.Logger
	roots bool
}

// WithLogger attaches a logger to the server.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.log = l
	}
}

// WithoutRoots keeps the startup workspace instead of adopting the
// client's first root.
func WithoutRoots() ServerOption {
	return func(o *serverOptions) {
		o.roots = false
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches
// the engine to the first file root, loading its configuration. It runs
// once the session is initialized and again whenever the client reports
// that its roots changed.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		h.log.Debug("listing roots", "error", err)
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn("loading config from root", "workspace", workspace, "error", err)
		return
	}
	if workspace == h.engine.Workspace() {
		return
	}
	h.engine.SetWorkspace(workspace, loaded.Config)
	h.log.Info("workspace changed", "workspace", workspace, "config", loaded.Path)
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
