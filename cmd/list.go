package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/report"
	"github.com/pable/go-ink-metrics/internal/storage"
)

var (
	listLobby string
	listUser  string
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored battles of a lobby, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listLobby, "lobby", model.LobbyXMatch, "lobby to list")
	listCmd.Flags().StringVar(&listUser, "user", "", "only this uploader")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "rows to print (0 for all)")
}

func runList(cmd *cobra.Command, args []string) error {
	if err := validateLobbies([]string{listLobby}); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	t, err := storage.Load(cfg.BattleListPath(listLobby))
	if err != nil {
		return err
	}
	if listUser != "" {
		t = t.Filter(func(row []string) bool { return t.Get(row, storage.ColUsername) == listUser })
	}
	battles, err := storage.TableToSummaries(t, loc)
	if err != nil {
		return err
	}
	if len(battles) == 0 {
		fmt.Fprintln(os.Stdout, "No battles stored yet. Run 'inkmetrics battles' to add some.")
		return nil
	}
	shown := battles
	if listLimit > 0 && listLimit < len(battles) {
		shown = battles[:listLimit]
	}
	report.PrintBattleList(os.Stdout, shown)
	cMuted.Printf("%d of %d battles\n", len(shown), len(battles))
	return nil
}
