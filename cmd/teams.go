package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/report"
	"github.com/pable/go-ink-metrics/internal/storage"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Per-team totals of each battle, per 5 minutes",
	Args:  cobra.NoArgs,
	RunE:  runTeams,
}

func init() {
	f := teamsCmd.Flags()
	f.StringSliceVar(&lobbyFlag, "lobby", model.Lobbies, "lobbies to read")
	f.StringVar(&ruleFlag, "rule", "", "keep only this rule")
	f.StringVar(&outFlag, "out", "", "write every row to this CSV file (.zst to compress)")
	f.IntVar(&limitFlag, "limit", 30, "rows to print (0 for all)")
}

func runTeams(cmd *cobra.Command, args []string) error {
	if err := validateLobbies(lobbyFlag); err != nil {
		return err
	}
	details, err := loadDetails(lobbyFlag)
	if err != nil {
		return err
	}
	r, err := newReshaper()
	if err != nil {
		return err
	}
	teams, err := r.Teams(details)
	if err != nil {
		return fmt.Errorf("reshape: %w", err)
	}
	if ruleFlag != "" {
		kept := teams[:0]
		for _, t := range teams {
			if t.Rule == ruleFlag {
				kept = append(kept, t)
			}
		}
		teams = kept
	}
	if len(teams) == 0 {
		fmt.Fprintln(os.Stdout, "No battle details stored yet. Run 'inkmetrics update' first.")
		return nil
	}

	if outFlag != "" {
		if err := storage.Save(outFlag, storage.TeamsToTable(teams)); err != nil {
			return err
		}
		cOK.Printf("wrote %d rows to %s\n", len(teams), outFlag)
	}
	report.PrintTeamTable(os.Stdout, tail(teams, limitFlag))
	return nil
}
