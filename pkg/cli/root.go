// Package cli implements the hostprobe command-line interface.
//
// Every command is a thin layer over pkg/detect: build a detector from the
// loaded configuration, ask it for a snapshot and format the answer.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lajosnagyuk/hostprobe/pkg/config"
	"github.com/lajosnagyuk/hostprobe/pkg/detect"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
)

// BuildInfo contains version information for the binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// ExitError asks main to exit with Code without printing anything.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

// app is the state shared by every command of one invocation.
type app struct {
	cfgPath string
	opts    []detect.Option

	cfg *config.Config
	det *detect.Detector
}

// config loads the configuration once.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// detector builds the detector once, from the loaded configuration.
func (a *app) detector() (*detect.Detector, error) {
	if a.det != nil {
		return a.det, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	opts := append([]detect.Option{detect.WithConfig(cfg)}, a.opts...)
	a.det = detect.New(opts...)
	return a.det, nil
}

// NewRootCmd creates the root hostprobe command. opts are passed to every
// detector the commands build.
func NewRootCmd(info BuildInfo, opts ...detect.Option) *cobra.Command {
	a := &app{opts: opts}

	var verbose, debug, quiet, noColor bool

	cmd := &cobra.Command{
		Use:   "hostprobe",
		Short: "Detect what kind of host this is",
		Long: `hostprobe - detect what kind of host this is

Platform, architecture, kernel, distribution and the environment facts
(container, VM, WSL, chroot, CI, SSH) scripts usually guess at, detected
with a fixed set of whitelisted tools and bounded file reads.

COMMANDS
  detect     Print every detected fact
  get        Print one field (hostprobe get distro)
  is         Test a predicate, exit 0 or 1 (hostprobe is container)
  refresh    Detect again, ignoring any cached snapshot
  watch      Print a snapshot whenever the host changes
  doctor     Show which tools and strategies are available
  config     Show or create the configuration file

MORE
  hostprobe <command> --help    Help for a command
  hostprobe version             Show version info`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case debug:
				log.SetLevel(log.LevelDebug)
			case verbose:
				log.SetLevel(log.LevelVerbose)
			case quiet:
				log.SetLevel(log.LevelQuiet)
			}
			if noColor {
				log.SetColor(false)
			}
			return NewPrinter(cmd).Check()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.SuggestionsMinimumDistance = 2

	cmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Config file (default ~/.hostprobe/config.toml)")
	cmd.PersistentFlags().StringP("output", "o", "text", "Output format: text, json, yaml, toml")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log every probe")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log output")

	cmd.AddCommand(
		newDetectCmd(a),
		newGetCmd(a),
		newIsCmd(a),
		newRefreshCmd(a),
		newWatchCmd(a),
		newDoctorCmd(a),
		newConfigCmd(a),
		newCompletionCmd(),
		newVersionCmd(info),
	)

	return cmd
}

func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := NewPrinter(cmd)
			return p.PrintItem(map[string]string{
				"version": info.Version,
				"commit":  info.Commit,
				"date":    info.Date,
				"schema":  detect.SchemaVersion,
			}, func() {
				fmt.Fprintf(p.Writer, "hostprobe version %s\n", info.Version)
				fmt.Fprintf(p.Writer, "  commit: %s\n", info.Commit)
				fmt.Fprintf(p.Writer, "  built:  %s\n", info.Date)
				fmt.Fprintf(p.Writer, "  schema: %s\n", detect.SchemaVersion)
			})
		},
	}
}
