package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/clibridge"
	"github.com/deixis/clibridge/internal/config"
	"github.com/deixis/clibridge/internal/runner"
)

type statusParams struct{}

func (h *handler) statusHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ statusParams) (*sdkmcp.CallToolResult, any, error) {
	var b strings.Builder

	workspace := h.engine.Workspace()
	cfg := h.engine.Config()

	fmt.Fprintf(&b, "clibridge %s\n", clibridge.Version)
	fmt.Fprintf(&b, "Workspace: %s\n", workspace)

	loaded, err := config.Load(workspace)
	switch {
	case err != nil:
		fmt.Fprintf(&b, "Config: invalid (%v)\n", err)
	case loaded.Path != "":
		fmt.Fprintf(&b, "Config: %s\n", loaded.Path)
	default:
		fmt.Fprintln(&b, "Config: defaults (no .clibridge found)")
	}
	fmt.Fprintf(&b, "Timeout: %s, max concurrent: %d\n", cfg.Timeout(), cfg.MaxConcurrent())
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "CLIs:")
	for _, tool := range []struct {
		name, binary string
	}{
		{"codex", cfg.Codex.BinaryOr("codex")},
		{"gemini", cfg.Gemini.BinaryOr("gemini")},
		{"glm", cfg.GLM.BinaryOr("claude")},
	} {
		path, err := runner.Resolve(tool.binary)
		if err != nil {
			fmt.Fprintf(&b, "  %s: %s not installed\n", tool.name, tool.binary)
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", tool.name, path)
	}

	return textResult(b.String())
}
