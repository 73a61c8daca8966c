// hostprobe - what kind of box is this
//
// Detects platform, architecture, distribution and execution context
// (container, VM, WSL, CI, SSH) using a fixed set of whitelisted tools and
// bounded file reads.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/lajosnagyuk/hostprobe/pkg/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd := cli.NewRootCmd(cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})

	if err := cmd.Execute(); err != nil {
		var exit *cli.ExitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
