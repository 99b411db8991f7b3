package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/metrics"
	"github.com/pable/go-ink-metrics/internal/pipeline"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run every scraping step: catalog, users, then battles and details per lobby",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	f := newFetcher()
	u, err := pipeline.NewUpdater(cfg, f, log)
	if err != nil {
		return err
	}
	start := time.Now()
	reps, err := u.RunAll(ctx)
	recordRun(metrics.New(), f, reps, start, err)
	return finish(reps, err)
}
