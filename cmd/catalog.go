package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/pipeline"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Refresh weapon, rule and stage reference tables from the stat.ink API",
	Long: `Download the main weapon list (with sub, special and type), rules and
stages, with display names in INK_LOCALE, and overwrite the CSV files under
INK_SOURCE_DIR.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	u, err := newUpdater()
	if err != nil {
		return err
	}
	rep, err := u.UpdateCatalog(ctx)
	return finish([]*pipeline.Report{rep}, err)
}
