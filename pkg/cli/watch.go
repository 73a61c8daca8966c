package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lajosnagyuk/hostprobe/pkg/facts"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
	"github.com/lajosnagyuk/hostprobe/pkg/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		schedule string
		poll     time.Duration
		debounce time.Duration
		paths    []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a snapshot whenever the host changes",
		Long: `Watch the host and print a snapshot every time a fact changes.

Detection reruns when an identity file changes (os-release, hostname, ...),
on an optional cron schedule, and on every poll once the cached snapshot
has expired or the environment signature changed.

Examples:
  hostprobe watch
  hostprobe watch --schedule "@every 10m"
  hostprobe watch --schedule "0 * * * *" -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.detector()
			if err != nil {
				return err
			}
			if poll == 0 {
				poll = d.Config().TTL.Duration
			}

			opts := []watch.Option{
				watch.WithPoll(poll),
				watch.WithDebounce(debounce),
			}
			if schedule != "" {
				opts = append(opts, watch.WithSchedule(schedule))
			}
			if len(paths) > 0 {
				opts = append(opts, watch.WithPaths(paths...))
			}
			w, err := watch.New(d, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, w, NewPrinter(cmd))
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron spec forcing a refresh (e.g. \"@hourly\")")
	cmd.Flags().DurationVar(&poll, "poll", 0, "How often to check for expiry (default: the cache TTL)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Wait time after file changes before re-detecting")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Files to watch instead of the defaults")

	return cmd
}

func runWatch(ctx context.Context, w *watch.Watcher, p *Printer) error {
	log.Info("Watching for changes (Ctrl+C to stop)")
	return w.Run(ctx, func(snap *facts.Snapshot, reason watch.Reason) {
		if p.IsStructured() {
			if err := p.Print(snap); err != nil {
				log.Fail("print: %v", err)
			}
			return
		}
		fmt.Fprintf(p.Writer, "[%s] %-8s %s\n", time.Now().Format("15:04:05"), reason, summary(snap))
	})
}
