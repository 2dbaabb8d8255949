package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type streamConfig struct {
	runID   string
	cmd     *exec.Cmd
	out     *os.File
	timing  Timing
	queue   int
	markers []string
	log     *slog.Logger
}

// Stream is the live, ordered line stream of one running command.
//
// Next, Lines and Close must be called from a single consumer goroutine.
// Once the stream has ended the process has been shut down, and further
// calls to Next report no more lines.
type Stream struct {
	ctx     context.Context
	cmd     *exec.Cmd
	out     *os.File
	timing  Timing
	markers []string
	log     *slog.Logger
	runID   string
	started time.Time

	lines      chan string
	stop       chan struct{}
	readerDone chan struct{}
	exited     chan struct{}
	sawMarker  atomic.Bool

	once    sync.Once
	mu      sync.Mutex
	ended   bool
	pending []string
	count   int
	summary Summary
}

func newStream(ctx context.Context, cfg streamConfig) *Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Stream{
		ctx:        ctx,
		cmd:        cfg.cmd,
		out:        cfg.out,
		timing:     cfg.timing,
		markers:    cfg.markers,
		log:        cfg.log,
		runID:      cfg.runID,
		started:    time.Now(),
		lines:      make(chan string, cfg.queue),
		stop:       make(chan struct{}),
		readerDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}

	go func() {
		_ = s.cmd.Wait()
		close(s.exited)
	}()
	go s.read()

	return s
}

// RunID returns the unique identifier of this run.
func (s *Stream) RunID() string {
	return s.runID
}

// read pulls lines from the merged output pipe and hands them to the
// consumer. After a completion marker it keeps reading only until the
// grace window closes, then stops.
func (s *Stream) read() {
	defer close(s.readerDone)
	defer close(s.lines)
	// Once reading stops, further writes by the child fail with EPIPE
	// instead of blocking on a full pipe.
	defer s.out.Close()

	r := bufio.NewReader(s.out)
	grace := false
	for {
		raw, err := r.ReadString('\n')
		// A deadline error may leave a partial line; drop it.
		if raw != "" && (err == nil || errors.Is(err, io.EOF)) {
			line := strings.TrimSpace(raw)
			if !s.send(line) {
				return
			}
			if !grace && s.isCompletion(line) {
				grace = true
				s.sawMarker.Store(true)
				s.log.Debug("completion marker seen", "grace", s.timing.Grace)
				if derr := s.out.SetReadDeadline(time.Now().Add(s.timing.Grace)); derr != nil {
					// Pipe does not support deadlines.
					time.Sleep(s.timing.Grace)
					return
				}
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				s.log.Debug("grace window elapsed")
			case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
			default:
				s.log.Debug("output read failed", "error", err)
			}
			return
		}
	}
}

func (s *Stream) send(line string) bool {
	select {
	case s.lines <- line:
		return true
	case <-s.stop:
		return false
	}
}

// isCompletion reports whether line is a record whose type is one of the
// completion markers. Lines that do not decode are never markers.
func (s *Stream) isCompletion(line string) bool {
	if !strings.HasPrefix(line, "{") {
		return false
	}
	var rec struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return false
	}
	return slices.Contains(s.markers, rec.Type)
}

// Next returns the next output line. It returns false once the stream has
// ended and every remaining line has been delivered.
func (s *Stream) Next() (string, bool) {
	if s.isEnded() {
		return s.popPending()
	}

	timer := time.NewTimer(s.timing.Poll)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				reason := EndExited
				if s.sawMarker.Load() {
					reason = EndCompletion
				}
				s.finish(reason)
				return s.popPending()
			}
			s.mu.Lock()
			s.count++
			s.mu.Unlock()
			return line, true
		case <-s.ctx.Done():
			s.log.Debug("stream cancelled", "error", s.ctx.Err())
			s.finish(EndCancelled)
			return s.popPending()
		case <-timer.C:
			if s.hasExited() && s.readerFinished() {
				s.finish(EndExited)
				return s.popPending()
			}
			timer.Reset(s.timing.Poll)
		}
	}
}

// Lines returns the stream as an iterator. Breaking out of the loop ends
// the stream: the process is shut down and undelivered lines are dropped.
func (s *Stream) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, ok := s.Next()
			if !ok {
				return
			}
			if !yield(line) {
				s.finish(EndAborted)
				s.mu.Lock()
				s.pending = nil
				s.mu.Unlock()
				return
			}
		}
	}
}

// Close ends the stream if it is still running and returns its summary.
// It is safe to call more than once.
func (s *Stream) Close() Summary {
	s.finish(EndAborted)
	return s.Summary()
}

// Summary returns the summary of a finished stream. It is the zero value
// while the stream is still running.
func (s *Stream) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

func (s *Stream) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Stream) popPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	s.count++
	s.summary.Lines = s.count
	return line, true
}

func (s *Stream) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *Stream) readerFinished() bool {
	select {
	case <-s.readerDone:
		return true
	default:
		return false
	}
}

// finish runs the shutdown ladder exactly once and collects any lines
// still queued.
func (s *Stream) finish(reason EndReason) {
	s.once.Do(func() {
		s.log.Debug("stream ended", "reason", reason)
		stage := s.shutdown()
		rest := s.drain()

		exitCode := -1
		if ps := s.cmd.ProcessState; ps != nil {
			exitCode = ps.ExitCode()
		}

		s.mu.Lock()
		s.ended = true
		s.pending = rest
		s.summary = Summary{
			RunID:    s.runID,
			Reason:   reason,
			Shutdown: stage,
			ExitCode: exitCode,
			Lines:    s.count,
			Duration: time.Since(s.started),
		}
		s.mu.Unlock()

		s.log.Info("process finished",
			"reason", reason,
			"shutdown", stage,
			"exit_code", exitCode,
			"duration", time.Since(s.started).Round(time.Millisecond),
		)
	})
}

// shutdown waits for the process to exit, escalating from a natural exit
// to SIGTERM and finally SIGKILL, then joins the reader.
func (s *Stream) shutdown() Stage {
	close(s.stop)

	stage := StageNatural
	select {
	case <-s.exited:
		s.log.Debug("process exited on its own")
	case <-time.After(s.timing.ExitWait):
		s.log.Info("process still running, sending SIGTERM", "waited", s.timing.ExitWait)
		if err := terminate(s.cmd.Process); err != nil {
			s.log.Debug("SIGTERM failed", "error", err)
		}
		select {
		case <-s.exited:
			stage = StageTerminated
			s.log.Debug("process exited after SIGTERM")
		case <-time.After(s.timing.TermWait):
			s.log.Warn("process ignored SIGTERM, sending SIGKILL", "waited", s.timing.TermWait)
			if err := kill(s.cmd.Process); err != nil {
				s.log.Debug("SIGKILL failed", "error", err)
			}
			<-s.exited
			stage = StageKilled
		}
	}

	select {
	case <-s.readerDone:
	case <-time.After(s.timing.JoinWait):
		s.log.Warn("output reader did not finish", "waited", s.timing.JoinWait)
	}
	_ = s.out.Close()

	return stage
}

// drain collects queued lines without blocking.
func (s *Stream) drain() []string {
	var out []string
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return out
			}
			out = append(out, line)
		default:
			return out
		}
	}
}
