//go:build unix

package executor

import (
	"os"

	"golang.org/x/sys/unix"
)

// osFileSystem checks executability with access(2), which honours the
// effective IDs and mount flags such as noexec.
type osFileSystem struct{}

func (osFileSystem) Executable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
