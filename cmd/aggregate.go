package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/aggregator"
	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/report"
	"github.com/pable/go-ink-metrics/internal/storage"
)

var (
	aggregateBy    string
	aggregatePivot string
	aggregateShow  []string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Usage rate, win rate and metric means per rule and category",
	Long: `Group player rows by rule and a category column, then report each group's
size, usage rate within the rule, win rate and the mean of every metric.

With --pivot, lay one metric out as category rows by rule columns
(area, yagura, hoko, asari) with the row mean and median, sorted by median.

Example:
  inkmetrics aggregate --by "Main Weapon" --pivot "Win Rate"
  inkmetrics aggregate --by "Weapon Type" --out types.csv`,
	Args: cobra.NoArgs,
	RunE: runAggregate,
}

func init() {
	f := aggregateCmd.Flags()
	f.StringSliceVar(&lobbyFlag, "lobby", model.Lobbies, "lobbies to read")
	f.StringVar(&ruleFlag, "rule", "", "keep only this rule")
	f.StringVar(&aggregateBy, "by", storage.FieldMainWeapon, "category column: "+strings.Join(aggregator.Columns(), ", "))
	f.StringVar(&aggregatePivot, "pivot", "", `metric to pivot by rule ("Count", "Usage Rate", "Win Rate" or a metric column)`)
	f.StringSliceVar(&aggregateShow, "show", []string{
		storage.Per5Min(storage.FieldKill),
		storage.Per5Min(storage.FieldDeath),
		storage.Per5Min(storage.FieldSpecials),
		storage.Per5Min(storage.FieldInked),
	}, "metric columns to print")
	f.StringVar(&outFlag, "out", "", "write the result to this CSV file (.zst to compress)")
}

func runAggregate(cmd *cobra.Command, args []string) error {
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
	cHeader.Printf("\n%d players from %d uploaders\n", len(players), aggregator.UniqueUsers(players))

	if aggregatePivot != "" {
		p, err := aggregator.Pivot(players, aggregateBy, aggregatePivot)
		if err != nil {
			return err
		}
		if outFlag != "" {
			if err := storage.Save(outFlag, storage.PivotToTable(p)); err != nil {
				return err
			}
			cOK.Printf("wrote %d rows to %s\n", len(p.Rows), outFlag)
		}
		report.PrintPivotTable(os.Stdout, p)
		return nil
	}

	rows, err := aggregator.GroupByRuleAnd(players, aggregateBy)
	if err != nil {
		return err
	}
	if outFlag != "" {
		if err := storage.Save(outFlag, storage.AggregatesToTable(aggregateBy, rows, aggregator.MetricNames())); err != nil {
			return err
		}
		cOK.Printf("wrote %d rows to %s\n", len(rows), outFlag)
	}
	report.PrintAggregateTable(os.Stdout, aggregateBy, rows, aggregateShow)
	return nil
}
