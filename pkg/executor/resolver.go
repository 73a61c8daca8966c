package executor

import (
	"sync"
	"sync/atomic"
)

// FileSystem answers the one question the resolver asks of the disk.
type FileSystem interface {
	// Executable reports whether path names an existing regular file the
	// current user may execute.
	Executable(path string) bool
}

// Resolver maps logical command names to verified absolute paths.
//
// It is the only place a binary path is chosen. Names outside the table fail
// without touching the filesystem, and both hits and misses are memoized for
// the life of the resolver.
type Resolver struct {
	table map[string][]string
	fs    FileSystem

	mu    sync.Mutex
	cache map[string]string // "" records a negative result

	calls  atomic.Int64
	probes atomic.Int64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFileSystem swaps the filesystem used for executable checks.
func WithFileSystem(fs FileSystem) ResolverOption {
	return func(r *Resolver) { r.fs = fs }
}

// NewResolver creates a resolver over table. A nil table means DefaultWhitelist.
// The table is copied so later edits by the caller have no effect.
func NewResolver(table map[string][]string, opts ...ResolverOption) *Resolver {
	if table == nil {
		table = DefaultWhitelist
	}
	r := &Resolver{
		table: make(map[string][]string, len(table)),
		fs:    osFileSystem{},
		cache: make(map[string]string),
	}
	for name, paths := range table {
		r.table[name] = append([]string(nil), paths...)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Whitelisted reports whether name is in the table.
func (r *Resolver) Whitelisted(name string) bool {
	_, ok := r.table[name]
	return ok
}

// Names returns the whitelisted command names.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	return names
}

// Resolve returns the absolute path for name.
func (r *Resolver) Resolve(name string) (string, error) {
	r.calls.Add(1)

	candidates, ok := r.table[name]
	if !ok {
		return "", &CommandError{Name: name, Err: ErrNotWhitelisted}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if path, ok := r.cache[name]; ok {
		if path == "" {
			return "", &CommandError{Name: name, Err: ErrNotFound}
		}
		if r.executable(path) {
			return path, nil
		}
		// Went away since we cached it. Evict and look again, once.
		delete(r.cache, name)
	}

	for _, candidate := range candidates {
		if r.executable(candidate) {
			r.cache[name] = candidate
			return candidate, nil
		}
	}

	r.cache[name] = ""
	return "", &CommandError{Name: name, Err: ErrNotFound}
}

// Invalidate drops the memoized result for name.
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}

// Reset drops every memoized result.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]string)
	r.mu.Unlock()
}

// Calls returns how many times Resolve has been called.
func (r *Resolver) Calls() int64 {
	return r.calls.Load()
}

// Probes returns how many filesystem checks the resolver has made.
func (r *Resolver) Probes() int64 {
	return r.probes.Load()
}

func (r *Resolver) executable(path string) bool {
	r.probes.Add(1)
	return r.fs.Executable(path)
}
