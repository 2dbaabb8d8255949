// Package workflow runs AI CLI invocations end to end: it spawns the
// command, folds its output into a verdict and records the outcome. It is
// consumed by both the MCP server and the CLI commands.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/deixis/clibridge/internal/aggregate"
	"github.com/deixis/clibridge/internal/config"
	"github.com/deixis/clibridge/internal/metrics"
	"github.com/deixis/clibridge/internal/report"
	"github.com/deixis/clibridge/internal/runner"
)

// Engine holds shared dependencies for all invocations.
type Engine struct {
	store   report.Store
	metrics *metrics.Metrics
	log     *slog.Logger

	mu        sync.RWMutex
	cfg       *config.Config
	workspace string
	sem       *semaphore.Weighted
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	Store   report.Store // default: in-memory cache over a temp-dir DiskStore
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// New returns an Engine rooted at workspace.
func New(cfg *config.Config, workspace string, opts Options) *Engine {
	if cfg == nil {
		cfg = &config.Config{}
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	store := opts.Store
	if store == nil {
		store = report.NewCachedStore(cfg.Store.CacheEntries(), report.NewDiskStore(cfg.Store.Dir))
	}
	return &Engine{
		store:     store,
		metrics:   opts.Metrics,
		log:       log.With("component", "workflow"),
		cfg:       cfg,
		workspace: workspace,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent())),
	}
}

// SetWorkspace switches the engine to a new workspace and configuration.
// Invocations already running keep the settings they started with.
func (e *Engine) SetWorkspace(workspace string, cfg *config.Config) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.MaxConcurrent() != e.cfg.MaxConcurrent() {
		e.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent()))
	}
	e.cfg = cfg
	e.workspace = workspace
	e.log.Info("workspace updated", "workspace", workspace)
}

// Workspace returns the current workspace root.
func (e *Engine) Workspace() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workspace
}

// Config returns the current configuration.
func (e *Engine) Config() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Store returns the result store.
func (e *Engine) Store() report.Store {
	return e.store
}

func (e *Engine) snapshot() (*config.Config, string, *semaphore.Weighted) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.workspace, e.sem
}

// Invocation is one CLI call.
type Invocation struct {
	Tool    string // codex, gemini or glm; labels logs, metrics and results
	Argv    []string
	Dir     string // relative to the workspace
	Env     []string
	Dialect aggregate.Dialect
	// Timeout bounds how long output is consumed. Zero means the
	// configured default.
	Timeout time.Duration
	// Progress, when set, is called with each line before it is
	// aggregated. n counts lines from 1.
	Progress func(n int, line string)
}

// Invoke runs inv to completion and returns the full result, records
// included. The result is also saved to the store.
//
// The only error returned for a missing binary is *runner.CommandNotFoundError,
// carrying an install hint for known CLIs. Every failure after the process
// started is reported inside the result.
func (e *Engine) Invoke(ctx context.Context, inv Invocation) (*report.RunResult, error) {
	cfg, workspace, sem := e.snapshot()
	log := e.log.With("tool", inv.Tool)

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a free slot: %w", err)
	}
	defer sem.Release(1)

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = cfg.Timeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	streamer := &runner.Streamer{
		Workspace:    workspace,
		Unrestricted: cfg.Workspace.Unrestricted,
		Timing:       cfg.Streaming.Timing(),
		QueueSize:    cfg.Streaming.QueueSize,
		Log:          log,
	}

	e.metrics.Started()
	started := time.Now()
	stream, err := streamer.Start(ctx, runner.Command{
		Argv:            inv.Argv,
		Dir:             inv.Dir,
		Env:             inv.Env,
		CompletionTypes: inv.Dialect.CompletionTypes,
	})
	if err != nil {
		var nf *runner.CommandNotFoundError
		if errors.As(err, &nf) {
			e.metrics.Rejected(inv.Tool, "not_found")
			log.Warn("binary not found", "name", nf.Name)
			return nil, withHint(nf, inv.Tool)
		}
		e.metrics.Rejected(inv.Tool, "spawn_error")
		return nil, fmt.Errorf("starting %s: %w", inv.Tool, err)
	}

	agg := aggregate.New(inv.Dialect)
	n := 0
	for line := range stream.Lines() {
		n++
		if inv.Progress != nil {
			inv.Progress(n, line)
		}
		if !agg.Add(line) {
			log.Warn("aggregation aborted", "run_id", stream.RunID(), "line", n)
			break
		}
	}
	summary := stream.Close()
	if summary.Reason == runner.EndCancelled {
		agg.Fail(fmt.Sprintf("invocation cancelled: %v", context.Cause(ctx)))
	}
	out := agg.Finalize()

	res := &report.RunResult{
		ID:         summary.RunID,
		Tool:       inv.Tool,
		Success:    out.Success,
		Result:     out.Result,
		SessionID:  out.SessionID,
		Error:      out.Error,
		AllRecords: out.Records,
		StartedAt:  started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
		Shutdown:   string(summary.Shutdown),
	}
	if err := e.store.Save(res); err != nil {
		log.Warn("saving result", "run_id", res.ID, "error", err)
	}

	outcome := "failure"
	if res.Success {
		outcome = "success"
	}
	e.metrics.Finished(inv.Tool, outcome, string(summary.Shutdown), n, out.ParseErrors, time.Since(started))
	log.Info("invocation finished",
		"run_id", res.ID,
		"success", res.Success,
		"reason", summary.Reason,
		"shutdown", summary.Shutdown,
		"exit_code", summary.ExitCode,
		"lines", n,
		"records", len(res.AllRecords),
	)
	return res, nil
}
