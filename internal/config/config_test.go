package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/clibridge/internal/runner"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
}

func TestLoad_FromWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "version: 1\ntimeout: 10m\n")

	res, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, res.Root)
	assert.Equal(t, 1, res.Config.Version)
	assert.Equal(t, 10*time.Minute, res.Config.Timeout())
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "version: 2\n")

	sub := filepath.Join(root, "pkg", "foo")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	res, err := Load(sub)
	require.NoError(t, err)
	assert.Equal(t, root, res.Root)
	assert.Equal(t, filepath.Join(root, FileName), res.Path)
	assert.Equal(t, 2, res.Config.Version)
}

func TestLoad_NoConfigFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, res.Root, "fallback to workspace")
	assert.Empty(t, res.Path)
	assert.Equal(t, DefaultTimeout, res.Config.Timeout())
	assert.Equal(t, DefaultMaxConcurrent, res.Config.MaxConcurrent())
	assert.Equal(t, DefaultCacheSize, res.Config.Store.CacheEntries())
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "timeout: [unclosed\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing .clibridge")
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "streaming:\n  grace: soon\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streaming.grace")
}

func TestLoad_FullFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
version: 1
timeout: 5m
max_concurrent: 2
streaming:
  grace: 1s
  poll: 100ms
  terminate_wait: 3s
  queue_size: 16
workspace:
  unrestricted: true
codex:
  binary: /opt/codex
  model: o4-mini
  sandbox: workspace-write
  timeout: 2m
glm:
  model: glm-4.6
  base_url: https://open.bigmodel.cn/api/anthropic
  api_key_env: GLM_API_KEY
store:
  dir: /var/tmp/runs
  cache_size: 8
`)

	res, err := Load(dir)
	require.NoError(t, err)
	cfg := res.Config

	assert.Equal(t, 5*time.Minute, cfg.Timeout())
	assert.Equal(t, 2, cfg.MaxConcurrent())
	assert.True(t, cfg.Workspace.Unrestricted)

	timing := cfg.Streaming.Timing()
	assert.Equal(t, time.Second, timing.Grace)
	assert.Equal(t, 100*time.Millisecond, timing.Poll)
	assert.Equal(t, 3*time.Second, timing.TermWait)
	assert.Equal(t, runner.DefaultExitWait, timing.ExitWait)
	assert.Equal(t, runner.DefaultJoinWait, timing.JoinWait)
	assert.Equal(t, 16, cfg.Streaming.QueueSize)

	assert.Equal(t, "/opt/codex", cfg.Codex.BinaryOr("codex"))
	assert.Equal(t, "gemini", cfg.Gemini.BinaryOr("gemini"))
	assert.Equal(t, 2*time.Minute, cfg.Codex.Timeout(cfg.Timeout()))
	assert.Equal(t, 5*time.Minute, cfg.Gemini.Timeout(cfg.Timeout()))
	assert.Equal(t, "GLM_API_KEY", cfg.GLM.APIKeyEnv)

	assert.Equal(t, "/var/tmp/runs", cfg.Store.Dir)
	assert.Equal(t, 8, cfg.Store.CacheEntries())
}

func TestTimeout_IgnoresNonPositive(t *testing.T) {
	cfg := &Config{RawTimeout: "-1s"}
	assert.Equal(t, DefaultTimeout, cfg.Timeout())
}
