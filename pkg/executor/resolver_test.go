package executor

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFS is an instrumented filesystem: it records every path checked.
type stubFS struct {
	mu      sync.Mutex
	exec    map[string]bool
	checked []string
}

func newStubFS(paths ...string) *stubFS {
	fs := &stubFS{exec: make(map[string]bool)}
	for _, p := range paths {
		fs.exec[p] = true
	}
	return fs
}

func (s *stubFS) Executable(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, path)
	return s.exec[path]
}

func (s *stubFS) set(path string, ok bool) {
	s.mu.Lock()
	s.exec[path] = ok
	s.mu.Unlock()
}

func (s *stubFS) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checked)
}

var testTable = map[string][]string{
	"uname": {"/usr/bin/uname", "/bin/uname"},
	"id":    {"/usr/bin/id"},
}

func TestResolveFirstExecutableCandidate(t *testing.T) {
	fs := newStubFS("/bin/uname")
	r := NewResolver(testTable, WithFileSystem(fs))

	path, err := r.Resolve("uname")
	require.NoError(t, err)
	assert.Equal(t, "/bin/uname", path)
	assert.Equal(t, []string{"/usr/bin/uname", "/bin/uname"}, fs.checked)
}

func TestResolveOrderWins(t *testing.T) {
	fs := newStubFS("/usr/bin/uname", "/bin/uname")
	r := NewResolver(testTable, WithFileSystem(fs))

	path, err := r.Resolve("uname")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/uname", path)
}

func TestResolveWhitelistClosure(t *testing.T) {
	fs := newStubFS("/bin/rm", "/usr/bin/rm", "/bin/sh")
	r := NewResolver(testTable, WithFileSystem(fs))

	for _, name := range []string{"rm", "sh", "/bin/sh", "../uname", "uname ", "UNAME", "un*", ""} {
		_, err := r.Resolve(name)
		assert.ErrorIs(t, err, ErrNotWhitelisted, name)
	}
	assert.Zero(t, fs.count(), "non-whitelisted names must not touch the filesystem")
	assert.Zero(t, r.Probes())
}

func TestResolveNegativeCache(t *testing.T) {
	fs := newStubFS()
	r := NewResolver(testTable, WithFileSystem(fs))

	_, err := r.Resolve("id")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, fs.count())

	// Installing it later does not help until invalidated.
	fs.set("/usr/bin/id", true)
	_, err = r.Resolve("id")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, fs.count())

	r.Invalidate("id")
	path, err := r.Resolve("id")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/id", path)
}

func TestResolvePositiveCacheEvictsStalePath(t *testing.T) {
	fs := newStubFS("/usr/bin/uname", "/bin/uname")
	r := NewResolver(testTable, WithFileSystem(fs))

	path, err := r.Resolve("uname")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/uname", path)

	fs.set("/usr/bin/uname", false)
	path, err = r.Resolve("uname")
	require.NoError(t, err)
	assert.Equal(t, "/bin/uname", path)

	fs.set("/bin/uname", false)
	_, err = r.Resolve("uname")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolverReset(t *testing.T) {
	fs := newStubFS()
	r := NewResolver(testTable, WithFileSystem(fs))

	_, err := r.Resolve("id")
	require.Error(t, err)
	fs.set("/usr/bin/id", true)
	r.Reset()

	_, err = r.Resolve("id")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), r.Calls())
}

func TestResolverCopiesTable(t *testing.T) {
	table := map[string][]string{"id": {"/usr/bin/id"}}
	fs := newStubFS("/usr/bin/id", "/tmp/evil")
	r := NewResolver(table, WithFileSystem(fs))

	table["id"][0] = "/tmp/evil"
	table["evil"] = []string{"/tmp/evil"}

	path, err := r.Resolve("id")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/id", path)
	assert.False(t, r.Whitelisted("evil"))
}

func TestCommandErrorUnwraps(t *testing.T) {
	r := NewResolver(testTable, WithFileSystem(newStubFS()))
	_, err := r.Resolve("nope")

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "nope", cmdErr.Name)
}

func TestDefaultWhitelistIsAbsolute(t *testing.T) {
	for name, paths := range DefaultWhitelist {
		require.NotEmpty(t, paths, name)
		for _, p := range paths {
			assert.True(t, len(p) > 0 && p[0] == '/', "%s: %s", name, p)
		}
	}
}
