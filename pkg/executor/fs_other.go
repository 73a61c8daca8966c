//go:build !unix

package executor

import "os"

type osFileSystem struct{}

func (osFileSystem) Executable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}
