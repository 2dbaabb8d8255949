package workflow

import (
	"fmt"
	"strings"

	"github.com/deixis/clibridge/internal/runner"
)

// toolInfo holds install metadata for a known CLI.
type toolInfo struct {
	// Binary is the executable name looked up on PATH.
	Binary string
	// Package is the npm package that provides the binary.
	Package string
	// Docs is an alternative install URL.
	Docs string
}

// knownTools maps tool names to their install metadata.
var knownTools = map[string]toolInfo{
	ToolCodex:  {Binary: "codex", Package: "@openai/codex", Docs: "https://github.com/openai/codex"},
	ToolGemini: {Binary: "gemini", Package: "@google/gemini-cli", Docs: "https://github.com/google-gemini/gemini-cli"},
	ToolGLM:    {Binary: "claude", Package: "@anthropic-ai/claude-code", Docs: "https://docs.anthropic.com/en/docs/claude-code"},
}

// Tool names.
const (
	ToolCodex  = "codex"
	ToolGemini = "gemini"
	ToolGLM    = "glm"
)

// InstallHint returns install instructions for a known tool, or "".
func InstallHint(tool string) string {
	info, ok := knownTools[tool]
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The %s tool requires the %s CLI.", tool, info.Binary)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "\nInstall:")
	fmt.Fprintf(&b, "\n  npm install -g %s", info.Package)
	if info.Docs != "" {
		fmt.Fprintf(&b, "\nDocs: %s", info.Docs)
	}
	return b.String()
}

// withHint returns a copy of err carrying the install hint for tool.
func withHint(err *runner.CommandNotFoundError, tool string) *runner.CommandNotFoundError {
	out := *err
	if out.Hint == "" {
		out.Hint = InstallHint(tool)
	}
	return &out
}
