//go:build unix

package executor

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findBin(t *testing.T, candidates ...string) string {
	t.Helper()
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}
	t.Skipf("none of %v available", candidates)
	return ""
}

// newTestExecutor builds an executor over real binaries with captures going
// to a private temp dir the test can inspect.
func newTestExecutor(t *testing.T, opts ...Option) (*Executor, string) {
	t.Helper()
	table := map[string][]string{
		"sh":    {findBin(t, "/bin/sh", "/usr/bin/sh")},
		"sleep": {findBin(t, "/bin/sleep", "/usr/bin/sleep")},
		"env":   {findBin(t, "/usr/bin/env", "/bin/env")},
	}
	dir := t.TempDir()
	opts = append([]Option{WithTempDir(dir), WithTimeoutTool(false), WithGrace(200 * time.Millisecond)}, opts...)
	return New(NewResolver(table), opts...), dir
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "capture files must be removed")
}

func TestRunCapturesOutput(t *testing.T) {
	e, dir := newTestExecutor(t)

	res := e.Run(context.Background(), Request{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2; exit 3"},
	})

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.OK())
	assert.Empty(t, res.Output(), "failed runs expose no output to detection")
	assertNoTempFiles(t, dir)
}

func TestRunSuccess(t *testing.T) {
	e, _ := newTestExecutor(t)

	res := e.Run(context.Background(), Request{Name: "sh", Args: []string{"-c", "printf '  hi  \n'"}})
	assert.True(t, res.OK())
	assert.Equal(t, "hi", res.Output())
	assert.True(t, res.Duration() > 0)
}

func TestRunNotWhitelistedNeverSpawns(t *testing.T) {
	e, dir := newTestExecutor(t)

	res := e.Run(context.Background(), Request{Name: "rm", Args: []string{"-rf", dir}})

	assert.ErrorIs(t, res.Err, ErrNotWhitelisted)
	assert.Equal(t, ExitFailed, res.ExitCode)
	assert.Empty(t, res.Path)
	assert.Zero(t, e.Resolver().Probes())
	assertNoTempFiles(t, dir)
}

func TestRunMissingBinary(t *testing.T) {
	dir := t.TempDir()
	e := New(NewResolver(map[string][]string{"ghost": {"/nonexistent/ghost"}}), WithTempDir(dir))

	res := e.Run(context.Background(), Request{Name: "ghost"})
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assertNoTempFiles(t, dir)
}

func TestRunTimeout(t *testing.T) {
	e, dir := newTestExecutor(t)

	start := time.Now()
	res := e.Run(context.Background(), Request{
		Name:    "sleep",
		Args:    []string{"10"},
		Timeout: 300 * time.Millisecond,
	})

	assert.True(t, res.TimedOut)
	assert.Equal(t, ExitTimedOut, res.ExitCode)
	assert.ErrorIs(t, res.Err, ErrTimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
	assertNoTempFiles(t, dir)
}

func TestRunTimeoutEscalatesToKill(t *testing.T) {
	e, dir := newTestExecutor(t)

	// The shell ignores SIGTERM, so only SIGKILL after the grace period ends it.
	res := e.Run(context.Background(), Request{
		Name:    "sh",
		Args:    []string{"-c", "trap '' TERM; sleep 10 & wait; sleep 10"},
		Timeout: 200 * time.Millisecond,
	})

	assert.True(t, res.TimedOut)
	assert.Equal(t, ExitTimedOut, res.ExitCode)
	assertNoTempFiles(t, dir)
}

func TestRunTimeoutWithTool(t *testing.T) {
	table := map[string][]string{
		"sleep":   {findBin(t, "/bin/sleep", "/usr/bin/sleep")},
		"timeout": DefaultWhitelist[CmdTimeout],
	}
	dir := t.TempDir()
	e := New(NewResolver(table), WithTempDir(dir), WithGrace(200*time.Millisecond))

	res := e.Run(context.Background(), Request{Name: "sleep", Args: []string{"10"}, Timeout: 300 * time.Millisecond})

	// Either timeout(1) or the in-process supervisor enforces it; the
	// observable result is the same.
	assert.True(t, res.TimedOut)
	assert.Equal(t, ExitTimedOut, res.ExitCode)
	assertNoTempFiles(t, dir)
}

func TestRunOwnExit124WithTool(t *testing.T) {
	table := map[string][]string{
		"sh":      {findBin(t, "/bin/sh", "/usr/bin/sh")},
		"timeout": DefaultWhitelist[CmdTimeout],
	}
	e := New(NewResolver(table), WithTempDir(t.TempDir()), WithGrace(200*time.Millisecond))

	res := e.Run(context.Background(), Request{Name: "sh", Args: []string{"-c", "exit 124"}, Timeout: 5 * time.Second})

	assert.False(t, res.TimedOut)
	assert.Equal(t, 124, res.ExitCode)
	assert.NoError(t, res.Err)
}

func TestToolTimedOut(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		elapsed time.Duration
		want    bool
	}{
		{"tool timeout", 124, 2 * time.Second, true},
		{"tool kill", 137, 2 * time.Second, true},
		{"child exits 124", 124, 10 * time.Millisecond, false},
		{"child killed", 137, 10 * time.Millisecond, false},
		{"plain failure", 1, 2 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toolTimedOut(tt.code, tt.elapsed, time.Second))
		})
	}
}

func TestSafePathIncludesTermux(t *testing.T) {
	assert.True(t, strings.HasSuffix(SafePath, ":"+termuxPrefix))
	assert.Equal(t, termuxPrefix+"/uname", DefaultWhitelist[CmdUname][2])
}

func TestRunContextCancel(t *testing.T) {
	e, dir := newTestExecutor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res := e.Run(ctx, Request{Name: "sleep", Args: []string{"10"}, Timeout: 10 * time.Second})
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
	assert.False(t, res.TimedOut)
	assertNoTempFiles(t, dir)
}

func TestRunSanitizedEnv(t *testing.T) {
	t.Setenv("HOSTPROBE_TEST_SECRET", "leak")
	t.Setenv("LC_ALL", "de_DE.UTF-8")
	e, _ := newTestExecutor(t, WithEnvLookup(func(k string) string {
		return map[string]string{"HOME": "/home/alice", "USER": "alice"}[k]
	}))

	res := e.Run(context.Background(), Request{Name: "env", SanitizeEnv: true})
	require.True(t, res.OK(), "env failed: %+v", res)

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	assert.ElementsMatch(t, []string{
		"PATH=" + SafePath,
		"HOME=/home/alice",
		"USER=alice",
		"LANG=C",
		"LC_ALL=C",
		"TZ=UTC",
	}, lines)
}

func TestRunInheritedEnv(t *testing.T) {
	t.Setenv("HOSTPROBE_TEST_VISIBLE", "yes")
	e, _ := newTestExecutor(t)

	res := e.Run(context.Background(), Request{Name: "env"})
	require.True(t, res.OK())
	assert.Contains(t, res.Stdout, "HOSTPROBE_TEST_VISIBLE=yes")
}

func TestRunStdinClosed(t *testing.T) {
	e, _ := newTestExecutor(t)

	// cat on an inherited terminal would block; on the null device it ends at once.
	res := e.Run(context.Background(), Request{Name: "sh", Args: []string{"-c", "cat; echo done"}, Timeout: 2 * time.Second})
	assert.True(t, res.OK())
	assert.Equal(t, "done", res.Output())
}

func TestRunOutputCapped(t *testing.T) {
	e, _ := newTestExecutor(t, WithMaxOutput(10))

	res := e.Run(context.Background(), Request{Name: "sh", Args: []string{"-c", "echo 0123456789abcdef"}})
	assert.Len(t, res.Stdout, 10)
}

func TestSanitizedEnvStripsControl(t *testing.T) {
	env := SanitizedEnv(func(k string) string {
		return map[string]string{"HOME": "/h\nome", "USER": "bo\x1bb", "TZ": "Europe/Oslo"}[k]
	})
	assert.Contains(t, env, "HOME=/home")
	assert.Contains(t, env, "USER=bob")
	assert.Contains(t, env, "TZ=Europe/Oslo")
}

func TestCapabilitiesInProcess(t *testing.T) {
	e, _ := newTestExecutor(t)
	caps := e.Capabilities()
	assert.Equal(t, SupervisorInProcess, caps.Supervisor)
	assert.Empty(t, caps.TimeoutTool)
}
