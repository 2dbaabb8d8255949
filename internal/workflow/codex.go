package workflow

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/deixis/clibridge/internal/aggregate"
)

// Codex sandbox policies.
const (
	SandboxReadOnly       = "read-only"
	SandboxWorkspaceWrite = "workspace-write"
	SandboxFullAccess     = "danger-full-access"
)

var sandboxes = []string{SandboxReadOnly, SandboxWorkspaceWrite, SandboxFullAccess}

// CodexRequest describes one `codex exec` call.
type CodexRequest struct {
	Prompt string
	// Dir is the directory codex works in, relative to the workspace.
	Dir       string
	Sandbox   string // default read-only
	SessionID string // resume an earlier thread
	// SkipGitRepoCheck allows running outside a git repository.
	SkipGitRepoCheck bool
	Images           []string
	Model            string
	Profile          string // profile from ~/.codex/config.toml
	Yolo             bool   // run every command without approval
}

// Codex builds the invocation for req.
func (e *Engine) Codex(req CodexRequest) (Invocation, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Invocation{}, fmt.Errorf("prompt is required")
	}
	cfg, workspace, _ := e.snapshot()
	tc := cfg.Codex

	sandbox := firstNonEmpty(req.Sandbox, tc.Sandbox, SandboxReadOnly)
	if !slices.Contains(sandboxes, sandbox) {
		return Invocation{}, fmt.Errorf("sandbox must be one of %s, got %q", strings.Join(sandboxes, ", "), sandbox)
	}

	cd := workspace
	if req.Dir != "" {
		cd = req.Dir
		if !filepath.IsAbs(cd) {
			cd = filepath.Join(workspace, cd)
		}
	}

	argv := []string{tc.BinaryOr("codex"), "exec", "--sandbox", sandbox, "--cd", cd, "--json"}
	if len(req.Images) > 0 {
		argv = append(argv, "--image", strings.Join(req.Images, ","))
	}
	if m := firstNonEmpty(req.Model, tc.Model); m != "" {
		argv = append(argv, "--model", m)
	}
	if p := firstNonEmpty(req.Profile, tc.Profile); p != "" {
		argv = append(argv, "--profile", p)
	}
	if req.Yolo {
		argv = append(argv, "--yolo")
	}
	if req.SkipGitRepoCheck {
		argv = append(argv, "--skip-git-repo-check")
	}
	argv = append(argv, tc.Args...)
	if req.SessionID != "" {
		argv = append(argv, "resume", req.SessionID)
	}
	argv = append(argv, "--", escapePrompt(req.Prompt, runtime.GOOS))

	return Invocation{
		Tool:    ToolCodex,
		Argv:    argv,
		Dir:     req.Dir,
		Dialect: aggregate.Codex(),
		Timeout: tc.Timeout(cfg.Timeout()),
	}, nil
}

// escapePrompt keeps a multi-line prompt in one argument on Windows,
// where newlines would truncate the command line.
func escapePrompt(prompt, goos string) string {
	if goos != "windows" {
		return prompt
	}
	return strings.NewReplacer("\r\n", `\n`, "\n", `\n`).Replace(prompt)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
