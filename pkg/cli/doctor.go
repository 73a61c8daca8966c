package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lajosnagyuk/hostprobe/pkg/config"
	"github.com/lajosnagyuk/hostprobe/pkg/detect"
	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/fileread"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
	"github.com/lajosnagyuk/hostprobe/pkg/watch"
)

// Check represents a single diagnostic check.
type Check struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Status  string `json:"status" yaml:"status" toml:"status"` // "ok", "warn", "fail"
	Message string `json:"message" yaml:"message" toml:"message"`
	Fix     string `json:"fix,omitempty" yaml:"fix,omitempty" toml:"fix,omitempty"`
}

// DoctorReport represents the full doctor output.
type DoctorReport struct {
	Checks  []Check `json:"checks" yaml:"checks" toml:"checks"`
	Summary struct {
		OK    int `json:"ok" yaml:"ok" toml:"ok"`
		Warn  int `json:"warn" yaml:"warn" toml:"warn"`
		Fail  int `json:"fail" yaml:"fail" toml:"fail"`
		Total int `json:"total" yaml:"total" toml:"total"`
	} `json:"summary" yaml:"summary" toml:"summary"`
}

func (r *DoctorReport) add(c Check) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case "ok":
		r.Summary.OK++
	case "warn":
		r.Summary.Warn++
	case "fail":
		r.Summary.Fail++
	}
	r.Summary.Total++
}

// capable is implemented by runners that can report their timeout strategy.
type capable interface {
	Capabilities() executor.Capabilities
}

// existenceChecker is implemented by readers that can test a path without
// reading it.
type existenceChecker interface {
	Exists(path string) bool
}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Show which tools and strategies are available",
		Long: `Run diagnostic checks on this host.

Checks include:
- Configuration validity
- Which whitelisted tools resolve, and where
- How command timeouts are enforced
- Which read strategies and size probes are configured
- Whether a full detection succeeds, and which facts stayed undetermined

Examples:
  hostprobe doctor
  hostprobe doctor -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(cmd)
			report := runDoctorChecks(cmd, a)

			if printer.IsStructured() {
				if err := printer.Print(report); err != nil {
					return err
				}
			} else {
				printReport(printer.Writer, report)
			}

			if report.Summary.Fail > 0 {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}

func printReport(w io.Writer, report DoctorReport) {
	color := isTerminal(w)
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + "\033[0m"
	}

	fmt.Fprintln(w, "HOSTPROBE DOCTOR")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	for _, check := range report.Checks {
		symbol := paint("\033[32m", "+")
		switch check.Status {
		case "warn":
			symbol = paint("\033[33m", "~")
		case "fail":
			symbol = paint("\033[31m", "!")
		}
		fmt.Fprintf(w, "%s %s: %s\n", symbol, check.Name, check.Message)
		if check.Fix != "" && check.Status != "ok" {
			fmt.Fprintf(w, "    Fix: %s\n", check.Fix)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d failed\n",
		report.Summary.OK, report.Summary.Warn, report.Summary.Fail)
}

func runDoctorChecks(cmd *cobra.Command, a *app) DoctorReport {
	var report DoctorReport

	cfgCheck, ok := checkConfig(a)
	report.add(cfgCheck)
	if !ok {
		return report
	}

	d, err := a.detector()
	if err != nil {
		report.add(Check{Name: "detector", Status: "fail", Message: err.Error()})
		return report
	}

	for _, c := range checkTools(d.Resolver()) {
		report.add(c)
	}
	report.add(checkTimeouts(d.Runner()))
	report.add(checkReader(d.Reader()))
	if e, ok := d.Reader().(existenceChecker); ok {
		report.add(checkIdentityFiles(e, watch.DefaultPaths))
	}

	snap, err := d.Detect(cmd.Context())
	if err != nil {
		report.add(Check{
			Name:    "detection",
			Status:  "fail",
			Message: err.Error(),
			Fix:     "Run 'hostprobe detect --debug' to see every probe",
		})
		return report
	}
	report.add(Check{
		Name:    "detection",
		Status:  "ok",
		Message: fmt.Sprintf("%s in %s", summary(snap), log.FormatDuration(snap.Duration)),
	})
	if len(snap.Undetermined) > 0 {
		report.add(Check{
			Name:    "undetermined",
			Status:  "warn",
			Message: strings.Join(snap.Undetermined, ", ") + " could not be decided and report false",
			Fix:     "Run as root, or install the missing tools listed above",
		})
	}
	return report
}

func checkConfig(a *app) (Check, bool) {
	path := a.cfgPath
	if path == "" {
		path, _ = config.DefaultConfigPath()
	}
	if _, err := a.config(); err != nil {
		return Check{
			Name:    "config",
			Status:  "fail",
			Message: err.Error(),
			Fix:     fmt.Sprintf("Edit %s or remove it to use the defaults", path),
		}, false
	}
	msg := path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		msg = "defaults (no " + path + ")"
	}
	return Check{Name: "config", Status: "ok", Message: msg}, true
}

func checkTools(r *executor.Resolver) []Check {
	names := r.Names()
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		path, err := r.Resolve(name)
		if err != nil {
			checks = append(checks, Check{
				Name:    "tool " + name,
				Status:  "warn",
				Message: "not installed, sources that need it are skipped",
			})
			continue
		}
		checks = append(checks, Check{Name: "tool " + name, Status: "ok", Message: path})
	}
	return checks
}

func checkTimeouts(runner detect.Runner) Check {
	c, ok := runner.(capable)
	if !ok {
		return Check{Name: "timeouts", Status: "ok", Message: "custom runner"}
	}
	caps := c.Capabilities()
	if caps.TimeoutTool != "" {
		return Check{Name: "timeouts", Status: "ok", Message: fmt.Sprintf("%s (%s)", caps.Supervisor, caps.TimeoutTool)}
	}
	return Check{Name: "timeouts", Status: "ok", Message: caps.Supervisor + " supervisor"}
}

func checkReader(reader detect.FileReader) Check {
	r, ok := reader.(*fileread.Reader)
	if !ok {
		return Check{Name: "reads", Status: "ok", Message: "custom reader"}
	}
	probes := "none"
	if p := r.SizeProbes(); len(p) > 0 {
		probes = strings.Join(p, ", ")
	}
	return Check{
		Name:   "reads",
		Status: "ok",
		Message: fmt.Sprintf("limit %d bytes, strategies %s, size probes %s",
			r.Limit(), strings.Join(r.Strategies(), ", "), probes),
	}
}

// checkIdentityFiles lists which identity files the reader may open.
func checkIdentityFiles(e existenceChecker, paths []string) Check {
	var found []string
	for _, p := range paths {
		if e.Exists(p) {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return Check{
			Name:    "identity files",
			Status:  "warn",
			Message: "none readable, distro facts come from tools only",
			Fix:     "Check that /etc/os-release exists and is a regular file",
		}
	}
	return Check{Name: "identity files", Status: "ok", Message: strings.Join(found, ", ")}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
