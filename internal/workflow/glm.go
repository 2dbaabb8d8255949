package workflow

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/deixis/clibridge/internal/aggregate"
)

// GLM endpoint defaults. The Claude CLI talks to any Anthropic-compatible
// endpoint through these environment variables.
const (
	DefaultGLMBaseURL   = "https://open.bigmodel.cn/api/anthropic"
	DefaultGLMAPIKeyEnv = "GLM_API_KEY"
)

var permissionModes = []string{"default", "acceptEdits", "bypassPermissions", "plan"}

// GLMRequest describes one GLM call routed through `claude -p`.
type GLMRequest struct {
	Prompt         string
	Dir            string // relative to the workspace
	SessionID      string
	Model          string
	PermissionMode string
}

// GLM builds the invocation for req.
func (e *Engine) GLM(req GLMRequest) (Invocation, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Invocation{}, fmt.Errorf("prompt is required")
	}
	if req.PermissionMode != "" && !slices.Contains(permissionModes, req.PermissionMode) {
		return Invocation{}, fmt.Errorf("permission_mode must be one of %s, got %q", strings.Join(permissionModes, ", "), req.PermissionMode)
	}
	cfg, _, _ := e.snapshot()
	tc := cfg.GLM

	argv := []string{tc.BinaryOr("claude"), "-p", "--output-format", "stream-json", "--verbose"}
	if m := firstNonEmpty(req.Model, tc.Model); m != "" {
		argv = append(argv, "--model", m)
	}
	if req.PermissionMode != "" {
		argv = append(argv, "--permission-mode", req.PermissionMode)
	}
	if req.SessionID != "" {
		argv = append(argv, "--resume", req.SessionID)
	}
	argv = append(argv, tc.Args...)
	argv = append(argv, "--", req.Prompt)

	env := []string{"ANTHROPIC_BASE_URL=" + firstNonEmpty(tc.BaseURL, DefaultGLMBaseURL)}
	if token := os.Getenv(firstNonEmpty(tc.APIKeyEnv, DefaultGLMAPIKeyEnv)); token != "" {
		env = append(env, "ANTHROPIC_AUTH_TOKEN="+token)
	}

	return Invocation{
		Tool:    ToolGLM,
		Argv:    argv,
		Dir:     req.Dir,
		Env:     env,
		Dialect: aggregate.ClaudeStream(),
		Timeout: tc.Timeout(cfg.Timeout()),
	}, nil
}
