package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/aarondl/null/v8"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/pipeline"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
}

func cells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func fmtNull(v null.Float64, format string) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf(format, v.Float64)
}

// StoreSummary describes what is on disk for one lobby.
type StoreSummary struct {
	Lobby     string
	Users     int
	Battles   int
	Details   int
	Pending   int
	Newest    string
	Oldest    string
	RuleCount map[string]int
}

// PrintStoreSummary prints one row per lobby with battle and detail counts.
func PrintStoreSummary(w io.Writer, sums []StoreSummary) {
	table := newTable(w)
	header := []string{"LOBBY", "USERS", "BATTLES", "DETAILS", "PENDING", "OLDEST", "NEWEST"}
	header = append(header, model.RuleOrder...)
	table.Header(cells(header)...)
	for _, s := range sums {
		row := []string{
			s.Lobby,
			strconv.Itoa(s.Users),
			strconv.Itoa(s.Battles),
			strconv.Itoa(s.Details),
			strconv.Itoa(s.Pending),
			s.Oldest,
			s.Newest,
		}
		for _, r := range model.RuleOrder {
			row = append(row, strconv.Itoa(s.RuleCount[r]))
		}
		table.Append(cells(row)...)
	}
	table.Render()
}

// PrintBattleList prints stored battle summaries, newest first as stored.
func PrintBattleList(w io.Writer, battles []model.BattleSummary) {
	table := newTable(w)
	table.Header("DATETIME", "USER", "RULE", "DC", "URL")
	for _, b := range battles {
		dc := ""
		if b.Disconnected {
			dc = "x"
		}
		table.Append(b.Datetime.Format("2006-01-02 15:04"), b.Username, b.Rule, dc, b.ID)
	}
	table.Render()
}

// PrintBattleHeader prints a one-line summary header for a battle.
func PrintBattleHeader(w io.Writer, d *model.BattleDetail) {
	fmt.Fprintf(w, "\n%s  |  @%s  |  %s / %s / %s  |  Result: %s  |  %ds  |  X Power: %s  |  v%s  |  stats: %s\n\n",
		d.Datetime.Format("2006-01-02 15:04"), d.Username, d.Lobby, d.Rule, d.Stage,
		d.Outcome, d.ElapsedSeconds, fmtNull(d.RankPower, "%.1f"), d.GameVersion, d.Stats)
}

// PrintBattleDetail prints both teams of a battle. The uploader's row is
// marked with ">".
func PrintBattleDetail(w io.Writer, d *model.BattleDetail) {
	PrintBattleHeader(w, d)
	table := newTable(w)
	table.Header(" ", "SLOT", "MAIN", "SUB", "SPECIAL", "INKED", "K+A", "K", "A", "D", "SP")
	for _, team := range []model.Team{model.TeamAlpha, model.TeamBravo} {
		for i, p := range d.Team(team) {
			marker := " "
			if p.Self {
				marker = ">"
			}
			table.Append(
				marker,
				model.SlotName(team, i),
				p.MainWeapon,
				p.SubWeapon,
				p.SpecialWeapon,
				strconv.Itoa(p.Inked),
				strconv.Itoa(p.KillAndAssist),
				strconv.Itoa(p.Kill),
				strconv.Itoa(p.Assist),
				strconv.Itoa(p.Death),
				strconv.Itoa(p.Specials),
			)
		}
	}
	table.Render()
}

// PrintPlayerTable prints reshaped player rows with their per-5-minute rates.
func PrintPlayerTable(w io.Writer, players []model.PlayerRecord) {
	table := newTable(w)
	table.Header("DATETIME", "RULE", "SLOT", "W", "MAIN", "TYPE", "K", "A", "D", "SP", "K/5M", "A/5M", "D/5M", "INK/5M")
	for _, p := range players {
		win := ""
		if p.Win {
			win = "W"
		}
		typ := "-"
		if p.WeaponType.Valid {
			typ = p.WeaponType.String
		}
		table.Append(
			p.Datetime.Format("2006-01-02 15:04"),
			p.Rule,
			p.Slot,
			win,
			p.MainWeapon,
			typ,
			strconv.Itoa(p.Kill),
			strconv.Itoa(p.Assist),
			strconv.Itoa(p.Death),
			strconv.Itoa(p.Specials),
			fmtNull(p.Per5Min.Kill, "%.2f"),
			fmtNull(p.Per5Min.Assist, "%.2f"),
			fmtNull(p.Per5Min.Death, "%.2f"),
			fmtNull(p.Per5Min.Inked, "%.0f"),
		)
	}
	table.Render()
}

// PrintTeamTable prints per-team rows of each battle.
func PrintTeamTable(w io.Writer, teams []model.TeamRecord) {
	table := newTable(w)
	table.Header("DATETIME", "RULE", "TEAM", "W", "K/5M", "A/5M", "D/5M", "SP/5M", "K-D/5M", "INVOLVED")
	for _, t := range teams {
		win := ""
		if t.Win {
			win = "W"
		}
		table.Append(
			t.Datetime.Format("2006-01-02 15:04"),
			t.Rule,
			t.Team.String(),
			win,
			fmtNull(t.Per5Min.Kill, "%.2f"),
			fmtNull(t.Per5Min.Assist, "%.2f"),
			fmtNull(t.Per5Min.Death, "%.2f"),
			fmtNull(t.Per5Min.Specials, "%.2f"),
			fmtNull(t.KillDeathPer5Min, "%+.2f"),
			fmtNull(t.Involved, "%.2f"),
		)
	}
	table.Render()
}

func sampleFlag(n int) string {
	switch {
	case n >= 100:
		return "OK"
	case n >= 30:
		return "LOW"
	default:
		return "VERY_LOW"
	}
}

// wilsonCI computes the 95% Wilson score confidence interval for a proportion.
// Returns (lo, hi) as fractions in [0, 1].
func wilsonCI(hits, n int) (lo, hi float64) {
	if n == 0 {
		return 0, 1
	}
	z := 1.96
	p := float64(hits) / float64(n)
	nf := float64(n)
	denom := 1 + z*z/nf
	center := (p + z*z/(2*nf)) / denom
	half := z * math.Sqrt(p*(1-p)/nf+z*z/(4*nf*nf)) / denom
	return math.Max(0, center-half), math.Min(1, center+half)
}

// PrintAggregateTable prints grouped rows with usage, win rate and its 95%
// interval, then the mean of each metric.
func PrintAggregateTable(w io.Writer, column string, rows []model.AggregateRow, metrics []string) {
	table := newTable(w)
	header := []string{"RULE", column, "N", "USAGE%", "WIN%", "WIN_CI", "SAMPLE"}
	table.Header(cells(append(header, metrics...))...)
	for _, r := range rows {
		wins := int(math.Round(r.WinRate / 100 * float64(r.Count)))
		lo, hi := wilsonCI(wins, r.Count)
		row := []string{
			r.Rule,
			r.Category,
			strconv.Itoa(r.Count),
			fmt.Sprintf("%.1f", r.UsageRate),
			fmt.Sprintf("%.1f", r.WinRate),
			fmt.Sprintf("[%.0f-%.0f]", lo*100, hi*100),
			sampleFlag(r.Count),
		}
		for _, m := range metrics {
			row = append(row, fmtNull(r.Means[m], "%.2f"))
		}
		table.Append(cells(row)...)
	}
	table.Render()
}

// PrintPivotTable prints a category by rule pivot with its mean and median.
func PrintPivotTable(w io.Writer, p *model.PivotTable) {
	fmt.Fprintf(w, "\n%s by %s\n\n", p.Metric, p.Subject)
	table := newTable(w)
	header := append([]string{p.Subject}, p.Columns...)
	table.Header(cells(append(header, "MEAN", "MEDIAN"))...)
	for _, r := range p.Rows {
		row := []string{r.Category}
		for _, v := range r.Values {
			row = append(row, fmtNull(v, "%.2f"))
		}
		row = append(row, fmtNull(r.Mean, "%.2f"), fmtNull(r.Median, "%.2f"))
		table.Append(cells(row)...)
	}
	table.Render()
}

// PrintRunReports prints what each pipeline step did.
func PrintRunReports(w io.Writer, reps []*pipeline.Report) {
	table := newTable(w)
	table.Header("STEP", "LOBBY", "PROCESSED", "ADDED", "FAILED", "PAGES")
	for _, r := range reps {
		lobby := r.Lobby
		if lobby == "" {
			lobby = "-"
		}
		table.Append(
			r.Step,
			lobby,
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Pages),
		)
	}
	table.Render()
}
