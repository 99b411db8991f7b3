package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/pipeline"
)

var detailsCmd = &cobra.Command{
	Use:   "details",
	Short: "Fetch the detail page of every stored battle not fetched yet",
	Long: `Fetch and parse the detail page of each battle in battles_<lobby>.csv that
has no row in details_<lobby>.csv. Progress is saved every
INK_CHECKPOINT_EVERY battles and on interrupt; failed battles are retried
on the next run.`,
	Args: cobra.NoArgs,
	RunE: runDetails,
}

func init() {
	detailsCmd.Flags().StringSliceVar(&lobbyFlag, "lobby", model.Lobbies, "lobbies to fetch")
}

func runDetails(cmd *cobra.Command, args []string) error {
	if err := validateLobbies(lobbyFlag); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	u, err := newUpdater()
	if err != nil {
		return err
	}
	var reps []*pipeline.Report
	var errs []error
	for _, lobby := range lobbyFlag {
		rep, err := u.UpdateBattleDetails(ctx, lobby)
		reps = append(reps, rep)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return finish(reps, errors.Join(errs...))
}
