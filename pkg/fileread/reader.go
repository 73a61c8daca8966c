// Package fileread reads bounded prefixes of small system files.
//
// Every read goes through the same gate: path length and shape checks, a
// denylist of special files checked both before and after symlink
// resolution, a regular-file check, and a size probe that refuses oversized
// files instead of truncating them. The read itself walks an ordered list of
// strategies and falls back to an in-process bounded read, so it works with
// no helper tools at all.
package fileread

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
	"github.com/lajosnagyuk/hostprobe/pkg/validate"
)

// DefaultLimit is the byte ceiling used when none is configured.
const DefaultLimit = 8192

// Runner runs whitelisted tools for the tool-backed strategies.
type Runner interface {
	Run(ctx context.Context, req executor.Request) executor.Result
}

// Reader performs policy-checked bounded reads.
type Reader struct {
	limit    int64
	runner   Runner
	timeout  time.Duration
	sanitize bool

	strategies []*strategy
	sizeProbes []*sizeProbe
}

// Option configures a Reader.
type Option func(*Reader)

// WithLimit sets the byte ceiling. Requests above it are lowered to it.
func WithLimit(n int64) Option {
	return func(r *Reader) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithRunner enables the tool-backed strategies.
func WithRunner(runner Runner) Option {
	return func(r *Reader) { r.runner = runner }
}

// WithTimeout bounds each tool invocation.
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) { r.timeout = d }
}

// WithSanitizeEnv controls the environment given to tools.
func WithSanitizeEnv(on bool) Option {
	return func(r *Reader) { r.sanitize = on }
}

// WithStrategies sets the order of the tool-backed strategies. Unknown names
// are ignored. The in-process read is always the single last resort,
// wherever it appears in names.
func WithStrategies(names ...string) Option {
	return func(r *Reader) {
		r.strategies = nil
		for _, name := range names {
			if name == StrategyNative {
				continue
			}
			if s := newStrategy(name); s != nil {
				r.strategies = append(r.strategies, s)
			}
		}
	}
}

// WithSizeProbes sets the size probe preference order. With none, files are
// never rejected for size and reads are truncated at the ceiling instead.
func WithSizeProbes(names ...string) Option {
	return func(r *Reader) {
		r.sizeProbes = nil
		for _, name := range names {
			if p := newSizeProbe(name); p != nil {
				r.sizeProbes = append(r.sizeProbes, p)
			}
		}
	}
}

// New creates a Reader. By default it tries head, then dd, then the
// in-process read.
func New(opts ...Option) *Reader {
	r := &Reader{
		limit:    DefaultLimit,
		timeout:  10 * time.Second,
		sanitize: true,
	}
	WithStrategies(StrategyHead, StrategyDD)(r)
	WithSizeProbes(ProbeNative, ProbeStat)(r)
	for _, opt := range opts {
		opt(r)
	}
	r.strategies = append(r.strategies, newStrategy(StrategyNative))
	return r
}

// Limit returns the byte ceiling.
func (r *Reader) Limit() int64 {
	return r.limit
}

// Strategies returns the read strategies in the order they are tried.
func (r *Reader) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.name)
	}
	return names
}

// SizeProbes returns the size probes in the order they are tried.
func (r *Reader) SizeProbes() []string {
	names := make([]string, 0, len(r.sizeProbes))
	for _, p := range r.sizeProbes {
		names = append(names, p.name)
	}
	return names
}

// ReadPrefix returns at most maxBytes bytes from the start of path.
// A maxBytes of zero or above the ceiling means the ceiling.
//
// Errors wrap ErrDenied for policy refusals (ErrTooLarge included) and
// ErrUnavailable for missing or unreadable files.
func (r *Reader) ReadPrefix(ctx context.Context, path string, maxBytes int64) (string, error) {
	content, err := r.readPrefix(ctx, path, maxBytes)
	if err != nil {
		if errors.Is(err, ErrDenied) {
			log.Skip("%v", err)
		} else {
			log.Debug("/ %v", err)
		}
		return "", err
	}
	return content, nil
}

// Exists reports whether path passes the policy checks and names a regular
// file, without reading it.
func (r *Reader) Exists(path string) bool {
	_, _, err := r.check(path)
	return err == nil
}

func (r *Reader) readPrefix(ctx context.Context, path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 || maxBytes > r.limit {
		maxBytes = r.limit
	}

	resolved, _, err := r.check(path)
	if err != nil {
		return "", err
	}

	if size, ok := r.probeSize(ctx, resolved); ok && size > maxBytes {
		return "", &DeniedError{Path: path, Reason: "larger than read limit", Err: ErrTooLarge}
	}

	var lastErr error
	for _, s := range r.strategies {
		if s.missing.Load() {
			continue
		}
		content, err := s.read(ctx, r, resolved, maxBytes)
		if errors.Is(err, errToolMissing) {
			s.missing.Store(true)
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		if int64(len(content)) > maxBytes {
			content = content[:maxBytes]
		}
		return content, nil
	}
	if lastErr == nil {
		lastErr = unavailable(path, errors.New("no read strategy available"))
	}
	return "", lastErr
}

// check applies every pre-I/O policy and returns the symlink-resolved path.
func (r *Reader) check(path string) (string, os.FileInfo, error) {
	if err := validate.Path(path); err != nil {
		return "", nil, denied(path, err.Error())
	}
	clean := filepath.Clean(path)
	if reason := checkDenylist(clean); reason != "" {
		return "", nil, denied(path, reason)
	}

	resolved, err := filepath.EvalSymlinks(clean)
	if err != nil {
		return "", nil, unavailable(path, err)
	}
	if resolved != clean {
		if reason := checkDenylist(resolved); reason != "" {
			return "", nil, denied(path, reason+" via "+resolved)
		}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", nil, unavailable(path, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, denied(path, "not a regular file")
	}
	return resolved, info, nil
}

// probeSize asks the first working size probe. ok is false when none could
// answer.
func (r *Reader) probeSize(ctx context.Context, path string) (int64, bool) {
	for _, p := range r.sizeProbes {
		if p.missing.Load() {
			continue
		}
		size, err := p.size(ctx, r, path)
		if errors.Is(err, errToolMissing) {
			p.missing.Store(true)
			continue
		}
		if err != nil {
			continue
		}
		return size, true
	}
	return 0, false
}
