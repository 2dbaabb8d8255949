package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStreamer(t *testing.T) *Streamer {
	t.Helper()
	return &Streamer{
		Workspace: t.TempDir(),
		Timing: Timing{
			Grace:    50 * time.Millisecond,
			Poll:     20 * time.Millisecond,
			ExitWait: 2 * time.Second,
			TermWait: 500 * time.Millisecond,
			JoinWait: time.Second,
		},
	}
}

func sh(script string) Command {
	return Command{Argv: []string{"sh", "-c", script}}
}

func collect(st *Stream) []string {
	var out []string
	for line := range st.Lines() {
		out = append(out, line)
	}
	return out
}

func TestResolve(t *testing.T) {
	path, err := Resolve("sh")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path), "path = %q", path)

	_, err = Resolve("nonexistent-binary-xyz-123")
	var notFound *CommandNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nonexistent-binary-xyz-123", notFound.Name)
	assert.Contains(t, err.Error(), "nonexistent-binary-xyz-123")
}

func TestStart_BinaryNotFound(t *testing.T) {
	s := newTestStreamer(t)
	st, err := s.Start(context.Background(), Command{Argv: []string{"nonexistent-binary-xyz-123", "--flag"}})
	require.Error(t, err)
	assert.Nil(t, st)

	var notFound *CommandNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestStart_EmptyArgv(t *testing.T) {
	s := newTestStreamer(t)
	_, err := s.Start(context.Background(), Command{})
	require.Error(t, err)
}

func TestStream_MergedOrderedOutput(t *testing.T) {
	s := newTestStreamer(t)
	st, err := s.Start(context.Background(), sh("echo one; echo two 1>&2; echo three"))
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, collect(st))

	sum := st.Summary()
	assert.Equal(t, EndExited, sum.Reason)
	assert.Equal(t, StageNatural, sum.Shutdown)
	assert.Equal(t, 0, sum.ExitCode)
	assert.Equal(t, 3, sum.Lines)
	assert.NotEmpty(t, sum.RunID)
}

func TestStream_TrimsAndKeepsUnterminatedLine(t *testing.T) {
	s := newTestStreamer(t)
	st, err := s.Start(context.Background(), sh(`printf '  padded  \nlast'`))
	require.NoError(t, err)

	assert.Equal(t, []string{"padded", "last"}, collect(st))
}

func TestStream_NonZeroExitIsNotAnError(t *testing.T) {
	s := newTestStreamer(t)
	st, err := s.Start(context.Background(), sh("echo partial; exit 3"))
	require.NoError(t, err)

	assert.Equal(t, []string{"partial"}, collect(st))
	assert.Equal(t, 3, st.Summary().ExitCode)
}

func TestStream_GraceWindowDeliversBufferedLines(t *testing.T) {
	s := newTestStreamer(t)
	st, err := s.Start(context.Background(), sh(`printf 'a\n{"type":"turn.completed"}\nb\nc\n'`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", `{"type":"turn.completed"}`, "b", "c"}, collect(st))
	assert.Equal(t, EndCompletion, st.Summary().Reason)
}

func TestStream_NaturalExitAfterMarker(t *testing.T) {
	s := newTestStreamer(t)
	s.Timing.ExitWait = 5 * time.Second

	st, err := s.Start(context.Background(), sh(`printf '{"type":"turn.completed"}\n'; sleep 1`))
	require.NoError(t, err)

	lines := collect(st)
	require.Len(t, lines, 1)

	sum := st.Summary()
	assert.Equal(t, EndCompletion, sum.Reason)
	assert.Equal(t, StageNatural, sum.Shutdown)
}

func TestStream_TerminateWhenProcessHangs(t *testing.T) {
	s := newTestStreamer(t)
	s.Timing.ExitWait = 100 * time.Millisecond
	s.Timing.TermWait = 2 * time.Second

	st, err := s.Start(context.Background(), sh(`printf '{"type":"turn.completed"}\n'; sleep 30`))
	require.NoError(t, err)

	start := time.Now()
	collect(st)
	assert.Less(t, time.Since(start), 10*time.Second)

	sum := st.Summary()
	assert.Equal(t, EndCompletion, sum.Reason)
	assert.Equal(t, StageTerminated, sum.Shutdown)
}

func TestStream_KillWhenTerminateIgnored(t *testing.T) {
	s := newTestStreamer(t)
	s.Timing.ExitWait = 100 * time.Millisecond
	s.Timing.TermWait = 100 * time.Millisecond

	st, err := s.Start(context.Background(), sh(`trap '' TERM; printf '{"type":"turn.completed"}\n'; sleep 30`))
	require.NoError(t, err)

	collect(st)
	assert.Equal(t, StageKilled, st.Summary().Shutdown)
}

func TestStream_CustomCompletionTypes(t *testing.T) {
	s := newTestStreamer(t)
	s.Timing.ExitWait = 100 * time.Millisecond

	cmd := sh(`printf '{"type":"turn.completed"}\n{"type":"result"}\n'; sleep 30`)
	cmd.CompletionTypes = []string{"result"}
	st, err := s.Start(context.Background(), cmd)
	require.NoError(t, err)

	assert.Len(t, collect(st), 2)
	assert.Equal(t, EndCompletion, st.Summary().Reason)
}

func TestStream_NonJSONMarkerLookalikeIgnored(t *testing.T) {
	s := newTestStreamer(t)
	st, err := s.Start(context.Background(), sh(`printf 'turn.completed\n{"type":\n{"type":7}\nend\n'`))
	require.NoError(t, err)

	assert.Len(t, collect(st), 4)
	assert.Equal(t, EndExited, st.Summary().Reason)
}

func TestStream_DrainedStreamStaysDrained(t *testing.T) {
	s := newTestStreamer(t)
	st, err := s.Start(context.Background(), sh("echo only"))
	require.NoError(t, err)

	assert.Equal(t, []string{"only"}, collect(st))
	before := st.Summary()

	line, ok := st.Next()
	assert.False(t, ok)
	assert.Empty(t, line)
	assert.Empty(t, collect(st))
	assert.Equal(t, before, st.Close())
}

func TestStream_CancelledContext(t *testing.T) {
	s := newTestStreamer(t)
	s.Timing.ExitWait = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := s.Start(ctx, sh("echo start; sleep 30"))
	require.NoError(t, err)

	line, ok := st.Next()
	require.True(t, ok)
	assert.Equal(t, "start", line)

	cancel()
	_, ok = st.Next()
	assert.False(t, ok)

	sum := st.Summary()
	assert.Equal(t, EndCancelled, sum.Reason)
	assert.Equal(t, StageTerminated, sum.Shutdown)
}

func TestStream_BreakingLoopAborts(t *testing.T) {
	s := newTestStreamer(t)
	s.Timing.ExitWait = 100 * time.Millisecond

	st, err := s.Start(context.Background(), sh("echo a; echo b; sleep 30"))
	require.NoError(t, err)

	var got []string
	for line := range st.Lines() {
		got = append(got, line)
		break
	}
	assert.Equal(t, []string{"a"}, got)

	_, ok := st.Next()
	assert.False(t, ok)
	assert.Equal(t, EndAborted, st.Summary().Reason)
}

func TestStream_Env(t *testing.T) {
	s := newTestStreamer(t)
	cmd := sh(`echo "$CLIBRIDGE_TEST_VALUE"`)
	cmd.Env = []string{"CLIBRIDGE_TEST_VALUE=bar"}
	st, err := s.Start(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []string{"bar"}, collect(st))
}

func TestStart_CWDWithinWorkspace(t *testing.T) {
	s := newTestStreamer(t)
	require.NoError(t, os.Mkdir(filepath.Join(s.Workspace, "subdir"), 0o755))

	cmd := Command{Argv: []string{"pwd"}, Dir: "subdir"}
	st, err := s.Start(context.Background(), cmd)
	require.NoError(t, err)

	lines := collect(st)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "subdir")
}

func TestStart_CWDOutsideWorkspace(t *testing.T) {
	s := newTestStreamer(t)

	for _, dir := range []string{"../", "/tmp"} {
		_, err := s.Start(context.Background(), Command{Argv: []string{"pwd"}, Dir: dir})
		require.Error(t, err, "dir %q", dir)
		assert.Contains(t, err.Error(), "outside workspace")
	}
}

func TestStart_CWDUnrestricted(t *testing.T) {
	s := newTestStreamer(t)
	s.Unrestricted = true
	other := t.TempDir()

	st, err := s.Start(context.Background(), Command{Argv: []string{"pwd"}, Dir: other})
	require.NoError(t, err)
	lines := collect(st)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], filepath.Base(other))
}

func TestStream_WriterAfterGraceExitsNaturally(t *testing.T) {
	s := newTestStreamer(t)
	s.Timing.ExitWait = 5 * time.Second

	// Far more than a pipe buffer, written after the grace window closed.
	script := `printf '{"type":"turn.completed"}\n'; sleep 0.5; head -c 300000 /dev/zero | tr '\0' 'x'`
	st, err := s.Start(context.Background(), sh(script))
	require.NoError(t, err)

	start := time.Now()
	lines := collect(st)
	elapsed := time.Since(start)

	assert.Equal(t, []string{`{"type":"turn.completed"}`}, lines)
	sum := st.Summary()
	assert.Equal(t, EndCompletion, sum.Reason)
	assert.Equal(t, StageNatural, sum.Shutdown)
	assert.Less(t, elapsed, 3*time.Second)
}
