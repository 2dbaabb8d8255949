package workflow

import (
	"fmt"
	"strings"

	"github.com/deixis/clibridge/internal/aggregate"
)

// GeminiRequest describes one headless `gemini` call.
type GeminiRequest struct {
	Prompt    string
	Dir       string // relative to the workspace
	SessionID string
	Model     string
	Sandbox   bool
	Yolo      bool
}

// Gemini builds the invocation for req.
func (e *Engine) Gemini(req GeminiRequest) (Invocation, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Invocation{}, fmt.Errorf("prompt is required")
	}
	cfg, _, _ := e.snapshot()
	tc := cfg.Gemini

	argv := []string{tc.BinaryOr("gemini"), "--output-format", "stream-json"}
	if m := firstNonEmpty(req.Model, tc.Model); m != "" {
		argv = append(argv, "--model", m)
	}
	if req.Sandbox {
		argv = append(argv, "--sandbox")
	}
	if req.Yolo {
		argv = append(argv, "--yolo")
	}
	if req.SessionID != "" {
		argv = append(argv, "--resume", req.SessionID)
	}
	argv = append(argv, tc.Args...)
	argv = append(argv, "--prompt", req.Prompt)

	return Invocation{
		Tool:    ToolGemini,
		Argv:    argv,
		Dir:     req.Dir,
		Dialect: aggregate.GeminiStream(),
		Timeout: tc.Timeout(cfg.Timeout()),
	}, nil
}
