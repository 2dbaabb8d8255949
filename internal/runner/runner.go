// Package runner spawns external commands and streams their combined
// output line by line, with completion-marker detection and an escalating
// shutdown sequence.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default timing for a stream.
const (
	DefaultGrace     = 300 * time.Millisecond
	DefaultPoll      = 500 * time.Millisecond
	DefaultExitWait  = 5 * time.Second
	DefaultTermWait  = 2 * time.Second
	DefaultJoinWait  = 5 * time.Second
	DefaultQueueSize = 1024
)

// DefaultCompletionType is the record type codex emits when a turn ends.
const DefaultCompletionType = "turn.completed"

// Timing holds the bounded waits used while streaming and shutting down.
// Zero fields fall back to the defaults above.
type Timing struct {
	Grace    time.Duration // read window after a completion marker
	Poll     time.Duration // consumer wait before re-checking liveness
	ExitWait time.Duration // natural exit wait before SIGTERM
	TermWait time.Duration // wait after SIGTERM before SIGKILL
	JoinWait time.Duration // reader join timeout
}

func (t Timing) withDefaults() Timing {
	if t.Grace <= 0 {
		t.Grace = DefaultGrace
	}
	if t.Poll <= 0 {
		t.Poll = DefaultPoll
	}
	if t.ExitWait <= 0 {
		t.ExitWait = DefaultExitWait
	}
	if t.TermWait <= 0 {
		t.TermWait = DefaultTermWait
	}
	if t.JoinWait <= 0 {
		t.JoinWait = DefaultJoinWait
	}
	return t
}

// Streamer starts commands within a workspace boundary.
type Streamer struct {
	Workspace string
	// Unrestricted allows working directories outside Workspace.
	Unrestricted bool
	Timing       Timing
	QueueSize    int
	Log          *slog.Logger
}

// Command describes one invocation.
type Command struct {
	// Argv is the exact argument vector. Argv[0] is resolved via PATH
	// unless it contains a path separator.
	Argv []string
	// Dir is resolved relative to the workspace root.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// CompletionTypes are record types that mark the end of a turn.
	// Defaults to DefaultCompletionType.
	CompletionTypes []string
}

// Resolve looks up an executable on the search path.
func Resolve(name string) (string, error) {
	if name == "" {
		return "", &CommandNotFoundError{Name: name}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &CommandNotFoundError{Name: name, Err: err}
	}
	return path, nil
}

// Start resolves and spawns the command and begins streaming its merged
// stdout and stderr. The only error returned before spawning is
// *CommandNotFoundError; any other error means the OS refused to start
// the process. ctx bounds how long the consumer keeps reading; it does not
// kill the process, which is always shut down by the exit ladder.
func (s *Streamer) Start(ctx context.Context, c Command) (*Stream, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	path, err := Resolve(c.Argv[0])
	if err != nil {
		return nil, err
	}

	dir, err := s.resolveDir(c.Dir)
	if err != nil {
		return nil, err
	}

	argv := append([]string(nil), c.Argv...)
	markers := c.CompletionTypes
	if len(markers) == 0 {
		markers = []string{DefaultCompletionType}
	}

	log := s.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	runID := uuid.New().String()
	log = log.With("component", "runner", "run_id", runID, "command", filepath.Base(path))

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating output pipe: %w", err)
	}

	//nolint:gosec // G204: argv is passed as an exact vector, no shell.
	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = pw
	cmd.Stderr = pw
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	log.Debug("process started", "pid", cmd.Process.Pid, "dir", dir)

	queue := s.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	st := newStream(ctx, streamConfig{
		runID:   runID,
		cmd:     cmd,
		out:     pr,
		timing:  s.Timing.withDefaults(),
		queue:   queue,
		markers: markers,
		log:     log,
	})
	return st, nil
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (s *Streamer) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return s.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(s.Workspace, cwd))
	}
	if s.Unrestricted {
		return dir, nil
	}

	rel, err := filepath.Rel(s.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, s.Workspace)
	}
	return dir, nil
}
