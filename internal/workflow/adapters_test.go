package workflow

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/clibridge/internal/config"
)

func TestCodex_DefaultArgv(t *testing.T) {
	e := New(&config.Config{}, "/work", Options{})

	inv, err := e.Codex(CodexRequest{Prompt: "review this"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"codex", "exec", "--sandbox", "read-only", "--cd", "/work", "--json",
		"--", "review this",
	}, inv.Argv)
	assert.Equal(t, ToolCodex, inv.Tool)
	assert.Equal(t, []string{"turn.completed"}, inv.Dialect.CompletionTypes)
	assert.Equal(t, config.DefaultTimeout, inv.Timeout)
}

func TestCodex_AllOptions(t *testing.T) {
	cfg := &config.Config{Codex: config.ToolConfig{
		Binary:     "/opt/codex",
		Args:       []string{"-c", "x=1"},
		RawTimeout: "90s",
	}}
	e := New(cfg, "/work", Options{})

	inv, err := e.Codex(CodexRequest{
		Prompt:           "--not-a-flag",
		Dir:              "sub",
		Sandbox:          SandboxWorkspaceWrite,
		SessionID:        "thread-1",
		SkipGitRepoCheck: true,
		Images:           []string{"a.png", "b.png"},
		Model:            "o4-mini",
		Profile:          "fast",
		Yolo:             true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/opt/codex", "exec", "--sandbox", "workspace-write", "--cd", filepath.Join("/work", "sub"), "--json",
		"--image", "a.png,b.png",
		"--model", "o4-mini",
		"--profile", "fast",
		"--yolo",
		"--skip-git-repo-check",
		"-c", "x=1",
		"resume", "thread-1",
		"--", "--not-a-flag",
	}, inv.Argv)
	assert.Equal(t, "sub", inv.Dir)
	assert.Equal(t, "1m30s", inv.Timeout.String())
}

func TestCodex_ConfigDefaults(t *testing.T) {
	cfg := &config.Config{Codex: config.ToolConfig{Model: "cfg-model", Sandbox: SandboxFullAccess}}
	e := New(cfg, "/work", Options{})

	inv, err := e.Codex(CodexRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Contains(t, inv.Argv, "cfg-model")
	assert.Contains(t, inv.Argv, SandboxFullAccess)

	inv, err = e.Codex(CodexRequest{Prompt: "p", Model: "override"})
	require.NoError(t, err)
	assert.Contains(t, inv.Argv, "override")
	assert.NotContains(t, inv.Argv, "cfg-model")
}

func TestCodex_Validation(t *testing.T) {
	e := New(&config.Config{}, "/work", Options{})

	_, err := e.Codex(CodexRequest{Prompt: "  "})
	assert.ErrorContains(t, err, "prompt is required")

	_, err = e.Codex(CodexRequest{Prompt: "p", Sandbox: "everything"})
	assert.ErrorContains(t, err, "sandbox must be one of")
}

func TestEscapePrompt(t *testing.T) {
	assert.Equal(t, "a\nb", escapePrompt("a\nb", "linux"))
	assert.Equal(t, `a\nb\nc`, escapePrompt("a\r\nb\nc", "windows"))
}

func TestGemini_Argv(t *testing.T) {
	e := New(&config.Config{}, "/work", Options{})

	inv, err := e.Gemini(GeminiRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini", "--output-format", "stream-json", "--prompt", "hi"}, inv.Argv)
	assert.Equal(t, "gemini", inv.Dialect.Name)

	inv, err = e.Gemini(GeminiRequest{Prompt: "hi", Model: "gemini-2.5-pro", Sandbox: true, Yolo: true, SessionID: "latest"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"gemini", "--output-format", "stream-json",
		"--model", "gemini-2.5-pro", "--sandbox", "--yolo", "--resume", "latest",
		"--prompt", "hi",
	}, inv.Argv)

	_, err = e.Gemini(GeminiRequest{})
	assert.Error(t, err)
}

func TestGLM_Argv(t *testing.T) {
	t.Setenv(DefaultGLMAPIKeyEnv, "")
	e := New(&config.Config{GLM: config.ToolConfig{Model: "glm-4.6"}}, "/work", Options{})

	inv, err := e.GLM(GLMRequest{Prompt: "hi", SessionID: "s-1", PermissionMode: "plan"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"claude", "-p", "--output-format", "stream-json", "--verbose",
		"--model", "glm-4.6", "--permission-mode", "plan", "--resume", "s-1",
		"--", "hi",
	}, inv.Argv)
	assert.Equal(t, []string{"ANTHROPIC_BASE_URL=" + DefaultGLMBaseURL}, inv.Env)
	assert.Equal(t, "claude", inv.Dialect.Name)
	assert.Equal(t, ToolGLM, inv.Tool)

	_, err = e.GLM(GLMRequest{Prompt: "hi", PermissionMode: "yolo"})
	assert.ErrorContains(t, err, "permission_mode")
}

func TestInstallHint(t *testing.T) {
	assert.Contains(t, InstallHint(ToolGemini), "@google/gemini-cli")
	assert.Contains(t, InstallHint(ToolGLM), "@anthropic-ai/claude-code")
	assert.Empty(t, InstallHint("unknown"))
}
