//go:build !unix

package detect

import (
	"os"

	"golang.org/x/term"
)

func (hostSystem) Uname() (Uname, error) {
	return Uname{}, errUnsupported
}

func (hostSystem) StatID(string) (FileID, error) {
	return FileID{}, errUnsupported
}

func (hostSystem) Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
