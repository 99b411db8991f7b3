package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/aggregator"
	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/report"
	"github.com/pable/go-ink-metrics/internal/storage"
)

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "Reshape stored battle details into one row per player",
	Long: `Melt each battle's eight player slots into one row per player, join the
weapon catalog and compute per-minute and per-5-minute rates. The uploader is
left out unless INK_INCLUDE_UPLOADER is set; only battles used in global
stats are kept unless INK_INCLUDE_DENIED is set.

Example:
  inkmetrics players --lobby xmatch --rule area --out players.csv`,
	Args: cobra.NoArgs,
	RunE: runPlayers,
}

func init() {
	f := playersCmd.Flags()
	f.StringSliceVar(&lobbyFlag, "lobby", model.Lobbies, "lobbies to read")
	f.StringVar(&ruleFlag, "rule", "", "keep only this rule (area, yagura, hoko, asari, nawabari, ...)")
	f.StringVar(&outFlag, "out", "", "write every row to this CSV file (.zst to compress)")
	f.IntVar(&limitFlag, "limit", 30, "rows to print (0 for all)")
}

func runPlayers(cmd *cobra.Command, args []string) error {
	if err := validateLobbies(lobbyFlag); err != nil {
		return err
	}
	players, err := loadPlayers(lobbyFlag)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		fmt.Fprintln(os.Stdout, "No battle details stored yet. Run 'inkmetrics update' first.")
		return nil
	}

	if outFlag != "" {
		if err := storage.Save(outFlag, storage.PlayersToTable(players)); err != nil {
			return err
		}
		cOK.Printf("wrote %d rows to %s\n", len(players), outFlag)
	}
	report.PrintPlayerTable(os.Stdout, tail(players, limitFlag))
	cMuted.Printf("%d rows, %d uploaders\n", len(players), aggregator.UniqueUsers(players))
	return nil
}
