package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lajosnagyuk/hostprobe/pkg/facts"
)

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Print every detected fact",
		Long: `Detect the host and print the snapshot.

Examples:
  hostprobe detect
  hostprobe detect -o json
  hostprobe detect -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.detector()
			if err != nil {
				return err
			}
			snap, err := d.Detect(cmd.Context())
			if err != nil {
				return err
			}
			return NewPrinter(cmd).PrintSnapshot(snap)
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Detect again, ignoring any cached snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.detector()
			if err != nil {
				return err
			}
			snap, err := d.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return NewPrinter(cmd).PrintSnapshot(snap)
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <field>",
		Short: "Print one field",
		Long: `Print a single detected field.

Fields:
  ` + strings.Join(facts.FieldNames, ", ") + `

Examples:
  hostprobe get distro
  hostprobe get arch -o json`,
		ValidArgs: facts.FieldNames,
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.detector()
			if err != nil {
				return err
			}
			snap, err := d.Detect(cmd.Context())
			if err != nil {
				return err
			}
			v, err := snap.Get(args[0])
			if errors.Is(err, facts.ErrUnknownField) {
				return fmt.Errorf("unknown field %q (valid: %s)", args[0], strings.Join(facts.FieldNames, ", "))
			}
			if err != nil {
				return err
			}
			p := NewPrinter(cmd)
			return p.PrintItem(map[string]string{args[0]: v}, func() {
				fmt.Fprintln(p.Writer, v)
			})
		},
	}
}

func newIsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "is <predicate>",
		Short: "Test a predicate, exit 0 when true and 1 when false",
		Long: `Test a boolean fact. Nothing is printed in text mode, so the
command can be used directly in shell conditions.

Predicates:
  ` + strings.Join(facts.PredicateNames, ", ") + `

Examples:
  if hostprobe is container; then echo "inside a container"; fi
  hostprobe is wsl -o json`,
		ValidArgs: facts.PredicateNames,
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.detector()
			if err != nil {
				return err
			}
			snap, err := d.Detect(cmd.Context())
			if err != nil {
				return err
			}
			v, err := snap.Is(args[0])
			if errors.Is(err, facts.ErrUnknownPredicate) {
				return fmt.Errorf("unknown predicate %q (valid: %s)", args[0], strings.Join(facts.PredicateNames, ", "))
			}
			if err != nil {
				return err
			}
			p := NewPrinter(cmd)
			if p.IsStructured() {
				if err := p.Print(map[string]bool{args[0]: v}); err != nil {
					return err
				}
			}
			if !v {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}
