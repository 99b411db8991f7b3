package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/report"
	"github.com/pable/go-ink-metrics/internal/storage"
)

var showCmd = &cobra.Command{
	Use:   "show <battle-url-or-suffix>",
	Short: "Show a stored battle's detail by URL",
	Long: `Print both teams of a stored battle. The argument matches the full battle
URL or its trailing part, e.g. the battle UUID.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	needle := args[0]
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	for _, lobby := range model.Lobbies {
		t, err := storage.Load(cfg.DetailsPath(lobby))
		if err != nil {
			return err
		}
		match := t.Filter(func(row []string) bool {
			return strings.HasSuffix(t.Get(row, storage.ColURL), needle)
		})
		if match.Len() == 0 {
			continue
		}
		details, err := storage.TableToDetails(match, loc)
		if err != nil {
			return err
		}
		if len(details) > 1 {
			cWarn.Printf("%d battles match %q, showing the newest\n", len(details), needle)
		}
		report.PrintBattleDetail(os.Stdout, details[0])
		cMuted.Println(details[0].ID)
		return nil
	}
	fmt.Fprintf(os.Stderr, "No stored battle matches %q\n", needle)
	return nil
}
