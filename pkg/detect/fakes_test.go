package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lajosnagyuk/hostprobe/pkg/config"
	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/fileread"
)

// fakeSystem is an in-memory System.
type fakeSystem struct {
	mu          sync.Mutex
	env         map[string]string
	euid, uid   int
	uname       Uname
	unameErr    error
	ids         map[string]FileID
	exists      map[string]bool
	populated   map[string]bool
	interactive bool
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		env:       map[string]string{},
		euid:      1000,
		uid:       1000,
		uname:     Uname{Sysname: "Linux", Nodename: "sys-node", Release: "6.1.0", Version: "#1 SMP", Machine: "x86_64"},
		ids:       map[string]FileID{},
		exists:    map[string]bool{},
		populated: map[string]bool{},
	}
}

func (s *fakeSystem) setEnv(k, v string) {
	s.mu.Lock()
	s.env[k] = v
	s.mu.Unlock()
}

func (s *fakeSystem) Getenv(k string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env[k]
}

func (s *fakeSystem) Geteuid() int { return s.euid }
func (s *fakeSystem) Getuid() int  { return s.uid }

func (s *fakeSystem) Uname() (Uname, error) {
	return s.uname, s.unameErr
}

func (s *fakeSystem) StatID(path string) (FileID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[path]
	if !ok {
		return FileID{}, errors.New("permission denied")
	}
	return id, nil
}

func (s *fakeSystem) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists[path]
}

func (s *fakeSystem) DirPopulated(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.populated[path]
}

func (s *fakeSystem) Interactive() bool { return s.interactive }

// allExecutable makes every whitelisted candidate resolve.
type allExecutable struct{}

func (allExecutable) Executable(string) bool { return true }

// fakeRunner resolves through a real Resolver, so resolver counters see
// every probe, and answers from canned results keyed by "name args...".
type fakeRunner struct {
	resolver *executor.Resolver

	mu      sync.Mutex
	results map[string]executor.Result
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		resolver: executor.NewResolver(nil, executor.WithFileSystem(allExecutable{})),
		results:  map[string]executor.Result{},
	}
}

// out registers a successful probe.
func (r *fakeRunner) out(cmd, stdout string) *fakeRunner {
	return r.result(cmd, executor.Result{ExitCode: 0, Stdout: stdout + "\n"})
}

func (r *fakeRunner) result(cmd string, res executor.Result) *fakeRunner {
	r.mu.Lock()
	r.results[cmd] = res
	r.mu.Unlock()
	return r
}

func (r *fakeRunner) Run(ctx context.Context, req executor.Request) executor.Result {
	key := strings.TrimSpace(req.Name + " " + strings.Join(req.Args, " "))

	r.mu.Lock()
	r.calls = append(r.calls, key)
	res, ok := r.results[key]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return executor.Result{ExitCode: executor.ExitFailed, Err: &executor.CommandError{Name: req.Name, Err: err}}
	}

	path, err := r.resolver.Resolve(req.Name)
	if err != nil {
		return executor.Result{ExitCode: executor.ExitFailed, Err: err}
	}
	if !ok {
		// Installed but not answering: behaves like a tool that failed.
		return executor.Result{Path: path, ExitCode: 1}
	}
	res.Path = path
	return res
}

func (r *fakeRunner) called(cmd string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

// fakeReader serves files from memory.
type fakeReader struct {
	mu    sync.Mutex
	files map[string]string
	reads map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{files: map[string]string{}, reads: map[string]int{}}
}

func (r *fakeReader) set(path, content string) *fakeReader {
	r.mu.Lock()
	r.files[path] = content
	r.mu.Unlock()
	return r
}

func (r *fakeReader) ReadPrefix(_ context.Context, path string, maxBytes int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads[path]++
	content, ok := r.files[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, fileread.ErrUnavailable)
	}
	if int64(len(content)) > maxBytes {
		return "", fileread.ErrTooLarge
	}
	return content, nil
}

func (r *fakeReader) readCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[path]
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// host bundles the fakes a detector is built on.
type host struct {
	sys    *fakeSystem
	runner *fakeRunner
	reader *fakeReader
	clock  *fakeClock
	cfg    *config.Config
}

func newHost() *host {
	cfg := config.Default()
	return &host{
		sys:    newFakeSystem(),
		runner: newFakeRunner(),
		reader: newFakeReader(),
		clock:  &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		cfg:    cfg,
	}
}

// ubuntuHost is a plain Ubuntu 22.04 machine: no container, VM or WSL
// markers, lsb_release not installed.
func ubuntuHost() *host {
	h := newHost()
	h.sys.setEnv("OSTYPE", "linux-gnu")
	h.sys.setEnv("USER", "alice")
	h.sys.ids["/"] = FileID{Dev: 2049, Ino: 2}
	h.sys.ids["/proc/1/root"] = FileID{Dev: 2049, Ino: 2}

	h.runner.
		out("uname -s", "Linux").
		out("uname -m", "x86_64").
		out("uname -r", "5.15.0-91-generic").
		out("uname -v", "#101-Ubuntu SMP Tue Nov 14 13:30:08 UTC 2023").
		out("uname -n", "Build-01").
		out("uname -p", "x86_64").
		result("systemd-detect-virt --vm", executor.Result{ExitCode: 1, Stdout: "none\n"})
	h.runner.resolver = executor.NewResolver(withoutCommand(executor.CmdLSBRelease),
		executor.WithFileSystem(allExecutable{}))

	h.reader.
		set("/etc/os-release", "NAME=\"Ubuntu\"\nID=ubuntu\nVERSION_ID=\"22.04\"\nVERSION_CODENAME=jammy\n").
		set("/proc/version", "Linux version 5.15.0-91-generic (buildd@lcy02-amd64-045)\n").
		set("/proc/1/cgroup", "0::/init.scope\n").
		set("/proc/self/mountinfo", "22 1 8:1 / / rw,relatime shared:1 - ext4 /dev/sda1 rw\n").
		set("/proc/cpuinfo", "processor\t: 0\nvendor_id\t: GenuineIntel\nflags\t\t: fpu vme de pse sse sse2\n").
		set("/sys/class/dmi/id/sys_vendor", "Dell Inc.\n").
		set("/sys/class/dmi/id/product_name", "OptiPlex 7090\n")
	return h
}

// withoutCommand returns the default whitelist minus name.
func withoutCommand(name string) map[string][]string {
	table := make(map[string][]string, len(executor.DefaultWhitelist))
	for k, v := range executor.DefaultWhitelist {
		if k != name {
			table[k] = v
		}
	}
	return table
}

func (h *host) detector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	base := []Option{
		WithConfig(h.cfg),
		WithSystem(h.sys),
		WithRunner(h.runner),
		WithReader(h.reader),
		WithResolver(h.runner.resolver),
		WithClock(h.clock.Now),
	}
	return New(append(base, opts...)...)
}
