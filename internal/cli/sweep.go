package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carewise/carestore/internal/retention"
	"github.com/carewise/carestore/pkg/logging"
)

var (
	sweepMaxAge   string
	sweepSchedule string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete session records older than the retention age",
	Long: `Runs a retention sweep over session records. Without --schedule the sweep
runs once and exits. With --schedule the process stays up and sweeps on the
given cron expression (UTC) until interrupted. User records are never swept.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		maxAge := client.MaxSessionAge()
		if sweepMaxAge != "" {
			d, err := time.ParseDuration(sweepMaxAge)
			if err != nil {
				fmtErr("invalid --max-age: %v", err)
				os.Exit(1)
			}
			maxAge = d
		}

		if sweepSchedule != "" {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scheduler := retention.NewScheduler(client.Sweeper(), maxAge, logging.WithFields(nil))
			if err := scheduler.Run(ctx, sweepSchedule); err != nil && ctx.Err() == nil {
				fmtErr("sweep scheduler: %v", err)
				os.Exit(1)
			}
			return
		}

		deleted, err := client.CleanupOldSessions(context.Background(), maxAge)
		if err != nil {
			fmtErr("sweep: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]any{"deleted_count": deleted, "max_age": maxAge.String()})
			return
		}
		fmt.Printf("Deleted %d session record(s) older than %s.\n", deleted, maxAge)
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepMaxAge, "max-age", "", "retention age override (e.g. 168h)")
	sweepCmd.Flags().StringVar(&sweepSchedule, "schedule", "", "cron expression for recurring sweeps (UTC)")
	rootCmd.AddCommand(sweepCmd)
}
