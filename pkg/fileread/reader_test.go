package fileread

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/lajosnagyuk/hostprobe/pkg/config"
	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers tool requests from a handler and counts them.
type fakeRunner struct {
	mu     sync.Mutex
	calls  map[string]int
	handle func(req executor.Request) executor.Result
}

func newFakeRunner(handle func(req executor.Request) executor.Result) *fakeRunner {
	return &fakeRunner{calls: make(map[string]int), handle: handle}
}

func (f *fakeRunner) Run(_ context.Context, req executor.Request) executor.Result {
	f.mu.Lock()
	f.calls[req.Name]++
	f.mu.Unlock()
	return f.handle(req)
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func missingTool(req executor.Request) executor.Result {
	return executor.Result{
		ExitCode: executor.ExitFailed,
		Err:      &executor.CommandError{Name: req.Name, Err: executor.ErrNotFound},
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestCheckDenylist(t *testing.T) {
	tests := []struct {
		path   string
		denied bool
	}{
		{"/proc/kcore", true},
		{"/proc/kmsg", true},
		{"/proc/sysrq-trigger", true},
		{"/dev/zero", true},
		{"/dev/random", true},
		{"/dev/urandom", true},
		{"/dev/sda", true},
		{"/dev", true},
		{"/proc/self/fd/0", true},
		{"/proc/1/fd/3", true},
		{"/proc/1/task/1/status", true},
		{"/proc/self/mem", true},
		{"/sys/kernel/debug/tracing/trace", true},
		{"/proc/sys/kernel/random/uuid", true},
		{"/proc//kcore", true},
		{"/etc/os-release", false},
		{"/proc/cpuinfo", false},
		{"/proc/1/cgroup", false},
		{"/proc/self/mountinfo", false},
		{"/sys/class/dmi/id/sys_vendor", false},
		{"/device/not-dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			reason := checkDenylist(tt.path)
			assert.Equal(t, tt.denied, reason != "", "reason %q", reason)
		})
	}
}

func TestReadPrefixDeniedSpecialFiles(t *testing.T) {
	r := New()
	for _, path := range []string{"/proc/kcore", "/dev/zero"} {
		for _, n := range []int64{0, 1, 100, 1 << 20} {
			_, err := r.ReadPrefix(context.Background(), path, n)
			assert.ErrorIs(t, err, ErrDenied, "%s/%d", path, n)
		}
	}
}

func TestReadPrefixDeniedThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "innocent")
	require.NoError(t, os.Symlink("/dev/zero", link))

	_, err := New().ReadPrefix(context.Background(), link, 100)
	var de *DeniedError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Reason, "/dev/zero")
}

func TestReadPrefixPathPolicy(t *testing.T) {
	r := New()
	tests := []struct {
		name string
		path string
	}{
		{"relative", "etc/os-release"},
		{"traversal", "/etc/../etc/os-release"},
		{"too long", "/" + strings.Repeat("a", 300)},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ReadPrefix(context.Background(), tt.path, 100)
			assert.ErrorIs(t, err, ErrDenied)
		})
	}
}

func TestReadPrefixNotRegular(t *testing.T) {
	_, err := New().ReadPrefix(context.Background(), t.TempDir(), 100)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestReadPrefixMissing(t *testing.T) {
	_, err := New().ReadPrefix(context.Background(), filepath.Join(t.TempDir(), "absent"), 100)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrDenied)
}

func TestReadPrefixWholeFile(t *testing.T) {
	path := writeFile(t, "ID=ubuntu\n")
	got, err := New().ReadPrefix(context.Background(), path, 100)
	require.NoError(t, err)
	assert.Equal(t, "ID=ubuntu\n", got)
}

func TestReadPrefixOversizedDenied(t *testing.T) {
	path := writeFile(t, strings.Repeat("x", 500))

	_, err := New().ReadPrefix(context.Background(), path, 100)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestReadPrefixCeilingWithoutSizeProbe(t *testing.T) {
	path := writeFile(t, strings.Repeat("x", 500))

	r := New(WithSizeProbes())
	got, err := r.ReadPrefix(context.Background(), path, 100)
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestReadPrefixCeilingCapsRequest(t *testing.T) {
	path := writeFile(t, strings.Repeat("x", 500))

	r := New(WithLimit(64), WithSizeProbes())
	got, err := r.ReadPrefix(context.Background(), path, 1000)
	require.NoError(t, err)
	assert.Len(t, got, 64)
}

func TestReadPrefixToolStrategy(t *testing.T) {
	path := writeFile(t, "real content")
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	runner := newFakeRunner(func(req executor.Request) executor.Result {
		require.Equal(t, executor.CmdHead, req.Name)
		assert.Equal(t, []string{"-c", "5", resolved}, req.Args)
		return executor.Result{ExitCode: 0, Stdout: "from head, too long"}
	})

	r := New(WithRunner(runner), WithStrategies(StrategyHead), WithSizeProbes())
	got, err := r.ReadPrefix(context.Background(), path, 5)
	require.NoError(t, err)
	assert.Equal(t, "from ", got, "tool output is capped too")
	assert.Equal(t, []string{StrategyHead, StrategyNative}, r.Strategies())
}

func TestDefaultStrategyOrder(t *testing.T) {
	path := writeFile(t, "native content")
	runner := newFakeRunner(func(req executor.Request) executor.Result {
		if req.Name == executor.CmdHead {
			return executor.Result{ExitCode: 0, Stdout: "head content"}
		}
		return executor.Result{ExitCode: 1}
	})

	for name, r := range map[string]*Reader{
		"default": New(WithRunner(runner), WithSizeProbes()),
		"config":  New(WithRunner(runner), WithStrategies(config.Default().ReadStrategies...), WithSizeProbes()),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, []string{StrategyHead, StrategyDD, StrategyNative}, r.Strategies())
			got, err := r.ReadPrefix(context.Background(), path, 100)
			require.NoError(t, err)
			assert.Equal(t, "head content", got)
		})
	}
	assert.Equal(t, 2, runner.count(executor.CmdHead))
	assert.Zero(t, runner.count(executor.CmdDD))
}

func TestNativeIsAlwaysLast(t *testing.T) {
	tests := []struct {
		names []string
		want  []string
	}{
		{[]string{StrategyNative, StrategyHead}, []string{StrategyHead, StrategyNative}},
		{[]string{StrategyDD, StrategyNative}, []string{StrategyDD, StrategyNative}},
		{[]string{StrategyNative}, []string{StrategyNative}},
		{nil, []string{StrategyNative}},
	}
	for _, tt := range tests {
		r := New(WithStrategies(tt.names...))
		assert.Equal(t, tt.want, r.Strategies(), "%v", tt.names)
	}
}

func TestReadPrefixMissingToolMemoized(t *testing.T) {
	path := writeFile(t, "content")
	runner := newFakeRunner(missingTool)

	r := New(WithRunner(runner), WithStrategies(StrategyDD, StrategyHead), WithSizeProbes(ProbeStat))
	for i := 0; i < 3; i++ {
		got, err := r.ReadPrefix(context.Background(), path, 100)
		require.NoError(t, err)
		assert.Equal(t, "content", got)
	}
	assert.Equal(t, 1, runner.count(executor.CmdDD))
	assert.Equal(t, 1, runner.count(executor.CmdHead))
	assert.Equal(t, 1, runner.count(executor.CmdStat))
}

func TestReadPrefixFailingToolFallsThrough(t *testing.T) {
	path := writeFile(t, "content")
	runner := newFakeRunner(func(req executor.Request) executor.Result {
		return executor.Result{ExitCode: 1, Stderr: "boom"}
	})

	r := New(WithRunner(runner), WithStrategies(StrategyHead), WithSizeProbes())
	got, err := r.ReadPrefix(context.Background(), path, 100)
	require.NoError(t, err)
	assert.Equal(t, "content", got)

	// A failing tool is still present, so it is retried next time.
	_, _ = r.ReadPrefix(context.Background(), path, 100)
	assert.Equal(t, 2, runner.count(executor.CmdHead))
}

func TestStatSizeProbe(t *testing.T) {
	path := writeFile(t, "small")
	runner := newFakeRunner(func(req executor.Request) executor.Result {
		if req.Args[1] == "-c" {
			// GNU flags rejected, as on BSD.
			return executor.Result{ExitCode: 1}
		}
		return executor.Result{ExitCode: 0, Stdout: "999999\n"}
	})

	r := New(WithRunner(runner), WithSizeProbes(ProbeStat))
	_, err := r.ReadPrefix(context.Background(), path, 100)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 2, runner.count(executor.CmdStat))
}

func TestExists(t *testing.T) {
	r := New()
	assert.True(t, r.Exists(writeFile(t, "x")))
	assert.False(t, r.Exists("/proc/kcore"))
	assert.False(t, r.Exists(filepath.Join(t.TempDir(), "absent")))
}
