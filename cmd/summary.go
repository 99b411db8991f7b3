package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/crawler"
	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/report"
	"github.com/pable/go-ink-metrics/internal/storage"
)

// summaryCmd is the cobra command for displaying a high-level store overview.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a high-level overview of the stored data",
	Long: `Display, per lobby, how many battles and details are stored, how many
details are still to fetch, the date range and the battle count per rule.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	users, err := storage.Load(cfg.UsersPath())
	if err != nil {
		return err
	}

	var sums []report.StoreSummary
	for _, lobby := range model.Lobbies {
		s, err := lobbySummary(lobby)
		if err != nil {
			return err
		}
		sums = append(sums, s)
	}

	fmt.Fprintf(os.Stdout, "\n=== Store Summary ===\n\n")
	fmt.Fprintf(os.Stdout, "  Data dir      : %s\n", cfg.DataDir)
	fmt.Fprintf(os.Stdout, "  Catalog dir   : %s\n", cfg.SourceDir)
	fmt.Fprintf(os.Stdout, "  Users tracked : %d\n\n", users.Len())
	report.PrintStoreSummary(os.Stdout, sums)
	return nil
}

func lobbySummary(lobby string) (report.StoreSummary, error) {
	s := report.StoreSummary{Lobby: lobby, RuleCount: make(map[string]int)}
	battles, err := storage.Load(cfg.BattleListPath(lobby))
	if err != nil {
		return s, err
	}
	details, err := storage.Load(cfg.DetailsPath(lobby))
	if err != nil {
		return s, err
	}

	fetched := crawler.IDSet{}
	for _, id := range details.Column(storage.ColURL) {
		fetched.Add(id)
	}
	uploaders := make(map[string]bool)
	for _, row := range battles.Rows {
		uploaders[battles.Get(row, storage.ColUsername)] = true
		if !fetched.Has(battles.Get(row, storage.ColURL)) {
			s.Pending++
		}
	}
	for _, rule := range details.Column(storage.ColRule) {
		s.RuleCount[rule]++
	}

	s.Users = len(uploaders)
	s.Battles = battles.Len()
	s.Details = details.Len()
	// Stored newest first.
	if dates := battles.Column(storage.ColDatetime); len(dates) > 0 {
		s.Newest, s.Oldest = dates[0], dates[len(dates)-1]
	}
	return s, nil
}
