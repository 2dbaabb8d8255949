// Package config loads and validates the optional .clibridge YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deixis/clibridge/internal/runner"
)

// FileName is the name of the configuration file.
const FileName = ".clibridge"

// Default values for invocation configuration.
const (
	DefaultTimeout       = 30 * time.Minute
	DefaultMaxConcurrent = 4
	DefaultCacheSize     = 64
)

// Config holds the parsed .clibridge configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version          int             `yaml:"version"`
	RawTimeout       string          `yaml:"timeout"` // e.g. "30m", "90s"
	RawMaxConcurrent int             `yaml:"max_concurrent"`
	Streaming        StreamingConfig `yaml:"streaming"`
	Workspace        WorkspaceConfig `yaml:"workspace"`
	Codex            ToolConfig      `yaml:"codex"`
	Gemini           ToolConfig      `yaml:"gemini"`
	GLM              ToolConfig      `yaml:"glm"`
	Store            StoreConfig     `yaml:"store"`
}

// Timeout returns the configured per-invocation timeout or the default.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.RawTimeout, DefaultTimeout)
}

// MaxConcurrent returns the configured concurrency bound or the default.
func (c *Config) MaxConcurrent() int {
	if c.RawMaxConcurrent > 0 {
		return c.RawMaxConcurrent
	}
	return DefaultMaxConcurrent
}

// StreamingConfig tunes the shutdown ladder. Durations are strings.
type StreamingConfig struct {
	Grace     string `yaml:"grace"`
	Poll      string `yaml:"poll"`
	ExitWait  string `yaml:"exit_wait"`
	TermWait  string `yaml:"terminate_wait"`
	JoinWait  string `yaml:"join_wait"`
	QueueSize int    `yaml:"queue_size"`
}

// Timing returns the runner timing, with defaults for unset or invalid
// entries.
func (s StreamingConfig) Timing() runner.Timing {
	return runner.Timing{
		Grace:    parseDuration(s.Grace, runner.DefaultGrace),
		Poll:     parseDuration(s.Poll, runner.DefaultPoll),
		ExitWait: parseDuration(s.ExitWait, runner.DefaultExitWait),
		TermWait: parseDuration(s.TermWait, runner.DefaultTermWait),
		JoinWait: parseDuration(s.JoinWait, runner.DefaultJoinWait),
	}
}

// WorkspaceConfig controls how invocation directories are resolved.
type WorkspaceConfig struct {
	Unrestricted bool `yaml:"unrestricted"` // allow cd outside the workspace
}

// ToolConfig holds per-CLI settings. Args are appended before the prompt.
type ToolConfig struct {
	Binary     string   `yaml:"binary"`
	Args       []string `yaml:"args"`
	Model      string   `yaml:"model"`
	Sandbox    string   `yaml:"sandbox"`
	Profile    string   `yaml:"profile"`
	BaseURL    string   `yaml:"base_url"`
	APIKeyEnv  string   `yaml:"api_key_env"`
	RawTimeout string   `yaml:"timeout"`
}

// BinaryOr returns the configured binary or def.
func (t ToolConfig) BinaryOr(def string) string {
	if t.Binary != "" {
		return t.Binary
	}
	return def
}

// Timeout returns the tool's timeout, falling back to def.
func (t ToolConfig) Timeout(def time.Duration) time.Duration {
	return parseDuration(t.RawTimeout, def)
}

// StoreConfig controls where run results are kept.
type StoreConfig struct {
	Dir       string `yaml:"dir"`        // default: a temporary directory
	CacheSize int    `yaml:"cache_size"` // in-memory LRU entries
}

// CacheEntries returns the configured cache size or the default.
func (s StoreConfig) CacheEntries() int {
	if s.CacheSize > 0 {
		return s.CacheSize
	}
	return DefaultCacheSize
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// Validate reports settings that cannot be defaulted silently.
func (c *Config) Validate() error {
	if c.RawTimeout != "" {
		if _, err := time.ParseDuration(c.RawTimeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	if c.RawMaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent: must not be negative")
	}
	if c.Streaming.QueueSize < 0 {
		return fmt.Errorf("streaming.queue_size: must not be negative")
	}
	for name, raw := range map[string]string{
		"streaming.grace":          c.Streaming.Grace,
		"streaming.poll":           c.Streaming.Poll,
		"streaming.exit_wait":      c.Streaming.ExitWait,
		"streaming.terminate_wait": c.Streaming.TermWait,
		"streaming.join_wait":      c.Streaming.JoinWait,
		"codex.timeout":            c.Codex.RawTimeout,
		"gemini.timeout":           c.Gemini.RawTimeout,
		"glm.timeout":              c.GLM.RawTimeout,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .clibridge; falls back to workspace
	Path   string // file that was loaded; empty when defaults are used
}

// Load reads the .clibridge file nearest to workspace, walking upward.
// If no file exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	path, ok := find(abs)
	if !ok {
		return &LoadResult{Config: &Config{}, Root: abs}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, Root: filepath.Dir(path), Path: path}, nil
}

// find walks upward from dir looking for a config file.
func find(dir string) (string, bool) {
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
