package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/pipeline"
)

var battlesCmd = &cobra.Command{
	Use:   "battles",
	Short: "Crawl each user's battle list and store new battles",
	Long: `For every user in the user list, walk the stat.ink battle listing newest
first and stop at the first page that contains an already stored battle
(or at the last page with --full-crawl). New rows are merged into
battles_<lobby>.csv after each user.`,
	Args: cobra.NoArgs,
	RunE: runBattles,
}

func init() {
	battlesCmd.Flags().StringSliceVar(&lobbyFlag, "lobby", model.Lobbies, "lobbies to crawl")
}

func runBattles(cmd *cobra.Command, args []string) error {
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
		rep, err := u.UpdateBattleList(ctx, lobby)
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
