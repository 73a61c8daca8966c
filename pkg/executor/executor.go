// Package executor runs the detector's external probes.
//
// Only whitelisted binaries are ever started, always by absolute path, with
// stdin closed, output captured through owner-only temp files and a hard
// time budget. Every failure comes back as a Result, never a panic, so the
// caller can treat it as "signal unavailable" and move on.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lajosnagyuk/hostprobe/pkg/log"
	"github.com/lajosnagyuk/hostprobe/pkg/validate"
)

// ExitTimedOut is the exit code reported when a probe ran out of time.
// It matches timeout(1) so shell consumers see the same value.
const ExitTimedOut = 124

// ExitFailed is reported when no exit code exists (not started, signalled).
const ExitFailed = -1

const (
	defaultTimeout   = 10 * time.Second
	defaultGrace     = time.Second
	defaultMaxOutput = 64 * 1024
)

// Request describes one probe.
type Request struct {
	// Name is the logical command name; it must be whitelisted.
	Name string

	// Args are passed verbatim, never through a shell.
	Args []string

	// Timeout bounds the run. Zero means the executor default.
	Timeout time.Duration

	// SanitizeEnv replaces the child environment with a minimal fixed set.
	SanitizeEnv bool
}

// Result contains the outcome of a probe.
type Result struct {
	// Path is the resolved binary, empty if resolution failed
	Path string

	// ExitCode is the process exit code, ExitTimedOut or ExitFailed
	ExitCode int

	// Stdout and Stderr hold captured output, capped at the executor limit.
	// Stderr is for diagnostics only.
	Stdout string
	Stderr string

	// TimedOut is true if the probe was killed for exceeding its budget
	TimedOut bool

	// Err is set if execution failed before getting an exit code
	Err error

	StartTime time.Time
	EndTime   time.Time
}

// OK reports a clean zero exit.
func (r Result) OK() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Output returns trimmed stdout of a successful run, or "".
func (r Result) Output() string {
	if !r.OK() {
		return ""
	}
	return strings.TrimSpace(r.Stdout)
}

// Duration returns how long the probe ran.
func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Executor runs whitelisted commands.
type Executor struct {
	resolver  *Resolver
	timeout   time.Duration
	grace     time.Duration
	maxOutput int64
	tempDir   string
	getenv    func(string) string
	caps      *capabilityProbe
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultTimeout sets the timeout used when a request has none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithGrace sets how long a child gets between SIGTERM and SIGKILL.
func WithGrace(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithTempDir sets where output capture files are created.
func WithTempDir(dir string) Option {
	return func(e *Executor) { e.tempDir = dir }
}

// WithMaxOutput caps how much of each stream is read back.
func WithMaxOutput(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithEnvLookup sets where HOME, USER and TZ come from for sanitized runs.
func WithEnvLookup(getenv func(string) string) Option {
	return func(e *Executor) { e.getenv = getenv }
}

// WithTimeoutTool enables or disables delegating timeouts to timeout(1).
func WithTimeoutTool(enabled bool) Option {
	return func(e *Executor) { e.caps.toolAllowed = enabled }
}

// New creates an executor backed by resolver.
func New(resolver *Resolver, opts ...Option) *Executor {
	e := &Executor{
		resolver:  resolver,
		timeout:   defaultTimeout,
		grace:     defaultGrace,
		maxOutput: defaultMaxOutput,
		getenv:    os.Getenv,
		caps:      &capabilityProbe{toolAllowed: true},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolver returns the resolver the executor consults.
func (e *Executor) Resolver() *Resolver {
	return e.resolver
}

// Run executes a probe and blocks until it exits, times out or is killed.
func (e *Executor) Run(ctx context.Context, req Request) Result {
	result := e.run(ctx, req)
	log.LogProbe(log.ProbeEvent{
		Name:     req.Name,
		Args:     req.Args,
		Duration: result.Duration(),
		ExitCode: result.ExitCode,
		TimedOut: result.TimedOut,
		Error:    result.Err,
	})
	if result.ExitCode != 0 && !result.TimedOut && result.Stderr != "" {
		log.Debug("%s stderr: %s", req.Name, firstLine(result.Stderr))
	}
	return result
}

func (e *Executor) run(ctx context.Context, req Request) (result Result) {
	result = Result{
		ExitCode:  ExitFailed,
		StartTime: time.Now(),
	}
	defer func() { result.EndTime = time.Now() }()

	path, err := e.resolver.Resolve(req.Name)
	if err != nil {
		result.Err = err
		return result
	}
	result.Path = path

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	stdout, err := newSink(e.tempDir, "hostprobe-out-")
	if err != nil {
		result.Err = &CommandError{Name: req.Name, Err: err}
		return result
	}
	defer stdout.release()

	stderr, err := newSink(e.tempDir, "hostprobe-err-")
	if err != nil {
		result.Err = &CommandError{Name: req.Name, Err: err}
		return result
	}
	defer stderr.release()

	argv := append([]string{path}, req.Args...)
	supervise := timeout
	usingTool := false
	if req.Name != CmdTimeout {
		if tool := e.timeoutTool(ctx); tool != "" {
			argv = append([]string{tool, "-k", seconds(e.grace), seconds(timeout)}, argv...)
			// Backstop in case the tool itself hangs.
			supervise = timeout + e.grace + time.Second
			usingTool = true
		}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil // reads from the null device
	cmd.Stdout = stdout.f
	cmd.Stderr = stderr.f
	cmd.Dir = "/"
	if req.SanitizeEnv {
		cmd.Env = SanitizedEnv(e.getenv)
	} else {
		cmd.Env = os.Environ()
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		result.Err = &CommandError{Name: req.Name, Err: fmt.Errorf("failed to start process: %w", err)}
		return result
	}

	waitErr, timedOut, ctxErr := e.supervise(ctx, cmd, supervise)

	switch {
	case ctxErr != nil:
		result.Err = &CommandError{Name: req.Name, Err: ctxErr}
	case timedOut:
		result.TimedOut = true
		result.ExitCode = ExitTimedOut
	default:
		if cmd.ProcessState != nil {
			result.ExitCode = cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			result.Err = &CommandError{Name: req.Name, Err: waitErr}
		}
		if usingTool && toolTimedOut(result.ExitCode, time.Since(result.StartTime), timeout) {
			result.TimedOut = true
			result.ExitCode = ExitTimedOut
		}
	}
	if result.TimedOut {
		result.Err = &CommandError{Name: req.Name, Err: ErrTimedOut}
	}

	result.Stdout = stdout.read(e.maxOutput)
	result.Stderr = stderr.read(e.maxOutput)
	return result
}

// toolTimedOut reports whether an exit code from timeout(1) means the budget
// ran out. The tool exits 124, or 137 when it had to escalate to SIGKILL; a
// child exiting with either code on its own finishes before the budget.
func toolTimedOut(code int, elapsed, timeout time.Duration) bool {
	if code != ExitTimedOut && code != 128+9 {
		return false
	}
	return elapsed >= timeout
}

// supervise waits for cmd, escalating SIGTERM then SIGKILL to the whole
// process group when the budget runs out or ctx is cancelled.
func (e *Executor) supervise(ctx context.Context, cmd *exec.Cmd, budget time.Duration) (waitErr error, timedOut bool, ctxErr error) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case err := <-done:
		return err, false, nil
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		ctxErr = ctx.Err()
	}

	terminate(cmd)
	grace := time.NewTimer(e.grace)
	defer grace.Stop()
	select {
	case waitErr = <-done:
	case <-grace.C:
		kill(cmd)
		waitErr = <-done
	}
	return waitErr, timedOut, ctxErr
}

// SanitizedEnv builds the fixed child environment. HOME, USER and TZ are
// carried over from getenv after stripping control characters.
func SanitizedEnv(getenv func(string) string) []string {
	tz := validate.StripControl(getenv("TZ"))
	if tz == "" {
		tz = "UTC"
	}
	return []string{
		"PATH=" + SafePath,
		"HOME=" + validate.StripControl(getenv("HOME")),
		"USER=" + validate.Username(getenv("USER")),
		"LANG=C",
		"LC_ALL=C",
		"TZ=" + tz,
	}
}

// sink is a private temp file receiving one output stream.
type sink struct {
	f *os.File
}

func newSink(dir, prefix string) (*sink, error) {
	f, err := os.CreateTemp(dir, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("restrict output file: %w", err)
	}
	return &sink{f: f}, nil
}

func (s *sink) read(max int64) string {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(s.f, max))
	return string(data)
}

func (s *sink) release() {
	name := s.f.Name()
	s.f.Close()
	os.Remove(name)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
