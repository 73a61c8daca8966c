package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lajosnagyuk/hostprobe/pkg/facts"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
	OutputTOML OutputFormat = "toml"
)

// Printer handles formatting output based on the requested format.
type Printer struct {
	Format OutputFormat
	Writer io.Writer
}

// NewPrinter creates a printer from the command's output flag.
func NewPrinter(cmd *cobra.Command) *Printer {
	format, _ := cmd.Root().PersistentFlags().GetString("output")
	return &Printer{
		Format: OutputFormat(format),
		Writer: cmd.OutOrStdout(),
	}
}

// Check rejects unknown formats before any work is done.
func (p *Printer) Check() error {
	switch p.Format {
	case OutputText, OutputJSON, OutputYAML, OutputTOML, "":
		return nil
	}
	return fmt.Errorf("unknown output format: %s (use text, json, yaml, or toml)", p.Format)
}

// Print outputs the data in the appropriate format.
func (p *Printer) Print(data any) error {
	switch p.Format {
	case OutputJSON:
		return p.printJSON(data)
	case OutputYAML:
		return p.printYAML(data)
	case OutputTOML:
		return toml.NewEncoder(p.Writer).Encode(data)
	case OutputText, "":
		fmt.Fprintln(p.Writer, data)
		return nil
	default:
		return p.Check()
	}
}

// printJSON outputs data as formatted JSON.
func (p *Printer) printJSON(data any) error {
	enc := json.NewEncoder(p.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printYAML outputs data as YAML.
func (p *Printer) printYAML(data any) error {
	return yaml.NewEncoder(p.Writer).Encode(data)
}

// IsStructured returns true if the output format expects structured data.
func (p *Printer) IsStructured() bool {
	return p.Format == OutputJSON || p.Format == OutputYAML || p.Format == OutputTOML
}

// PrintTable prints rows as aligned columns.
func (p *Printer) PrintTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(p.Writer, "(none)")
		return
	}

	w := tabwriter.NewWriter(p.Writer, 0, 0, 2, ' ', 0)
	if len(headers) > 0 {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// PrintItem prints item in a structured format, or calls textFunc.
func (p *Printer) PrintItem(item any, textFunc func()) error {
	if p.IsStructured() {
		return p.Print(item)
	}
	textFunc()
	return nil
}

// PrintSnapshot prints every field and predicate of snap. Timing is only
// shown at verbose level.
func (p *Printer) PrintSnapshot(snap *facts.Snapshot) error {
	return p.PrintItem(snap, func() {
		var rows [][]string
		for _, name := range facts.FieldNames {
			v, _ := snap.Get(name)
			if v == "" {
				continue
			}
			rows = append(rows, []string{name, v})
		}
		for _, name := range facts.PredicateNames {
			v, _ := snap.Is(name)
			rows = append(rows, []string{"is " + name, yesNo(v)})
		}
		if len(snap.Undetermined) > 0 {
			rows = append(rows, []string{"undetermined", strings.Join(snap.Undetermined, ", ")})
		}
		if log.V() {
			rows = append(rows,
				[]string{"detected", snap.DetectedAt.Format(time.RFC3339)},
				[]string{"took", log.FormatDuration(snap.Duration)},
				[]string{"schema", snap.Version},
			)
		}
		p.PrintTable(nil, rows)
	})
}

// summary is the one-line form used by watch.
func summary(snap *facts.Snapshot) string {
	var flags []string
	for _, name := range []string{"container", "vm", "wsl", "chroot", "termux", "ci", "ssh", "root"} {
		if v, _ := snap.Is(name); v {
			flags = append(flags, name)
		}
	}
	s := fmt.Sprintf("%s/%s %s %s %s", snap.Platform, snap.Arch, snap.Hostname, snap.Distro, snap.DistroVersion)
	if len(flags) > 0 {
		s += " [" + strings.Join(flags, ",") + "]"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
