package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/metrics"
	"github.com/pable/go-ink-metrics/internal/pipeline"
	"github.com/pable/go-ink-metrics/internal/report"
	"github.com/pable/go-ink-metrics/internal/scheduler"
)

var (
	scheduleSpec string
	scheduleNow  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the full update on a cron schedule until interrupted",
	Long: `Run 'update' on INK_SCHEDULE (standard five-field cron, or a descriptor such
as "@every 6h"). A run still in progress when the next one is due is skipped.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "cron expression (overrides INK_SCHEDULE)")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "run once immediately on start")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if scheduleSpec != "" {
		cfg.Schedule = scheduleSpec
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	f := newFetcher()
	u, err := pipeline.NewUpdater(cfg, f, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	job := func(ctx context.Context) error {
		start := time.Now()
		reps, err := u.RunAll(ctx)
		recordRun(m, f, reps, start, err)
		report.PrintRunReports(cmd.OutOrStdout(), reps)
		return err
	}
	s, err := scheduler.New(cfg.Schedule, loc, scheduleNow, job, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	cHeader.Fprintf(cmd.OutOrStdout(), "scheduled: %s (%s)\n", cfg.Schedule, cfg.Timezone)
	return s.Run(ctx)
}
