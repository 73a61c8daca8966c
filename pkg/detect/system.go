package detect

import (
	"errors"
	"os"
)

// Uname is the kernel identity as returned by the uname(2) syscall.
type Uname struct {
	Sysname  string
	Nodename string
	Release  string
	Version  string
	Machine  string
}

// FileID identifies a file by device and inode.
type FileID struct {
	Dev uint64
	Ino uint64
}

// System answers the questions that need neither a child process nor file
// content.
type System interface {
	Getenv(key string) string
	Geteuid() int
	Getuid() int

	// Uname calls the kernel directly. The detector only uses it for the
	// cache signature and, outside strict mode, as a probe fallback.
	Uname() (Uname, error)

	// StatID follows symlinks and returns device and inode of path.
	StatID(path string) (FileID, error)

	// Exists reports whether anything exists at path.
	Exists(path string) bool

	// DirPopulated reports whether path is a directory with at least one entry.
	DirPopulated(path string) bool

	// Interactive reports whether the session is attached to a terminal.
	Interactive() bool
}

var errUnsupported = errors.New("not supported on this platform")

// hostSystem is System backed by the running process.
type hostSystem struct{}

func (hostSystem) Getenv(key string) string { return os.Getenv(key) }
func (hostSystem) Geteuid() int             { return os.Geteuid() }
func (hostSystem) Getuid() int              { return os.Getuid() }

func (hostSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (hostSystem) DirPopulated(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	names, _ := f.Readdirnames(1)
	return len(names) > 0
}
