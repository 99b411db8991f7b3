package storage

import (
	"strconv"

	"github.com/aarondl/null/v8"

	"github.com/pable/go-ink-metrics/internal/model"
)

// Export column names for reshaped and aggregated tables.
const (
	ColSlot           = "Slot"
	ColTeam           = "Team"
	ColUploader       = "Uploader"
	ColWeaponType     = "Weapon Type"
	ColCatalogSub     = "Catalog Sub"
	ColCatalogSpecial = "Catalog Special"
	ColKillDeath5Min  = "Kill-Death / 5min"
	ColInvolved       = "Involved"
	ColCount          = "Count"
	ColTotalCount     = "Total Count"
	ColUsageRate      = "Usage Rate"
	ColWinRate        = "Win Rate"
	ColMean           = "mean"
	ColMedian         = "median"
)

// PerMinute names the per-minute rate column of a counter field.
func PerMinute(field string) string { return field + "/m" }

// Per5Min names the per-5-minutes rate column of a counter field.
func Per5Min(field string) string { return field + " / 5min" }

func rateValues(r model.StatRates) []null.Float64 {
	return []null.Float64{r.Inked, r.KillAndAssist, r.Kill, r.Assist, r.Death, r.Specials}
}

// PlayerHeader is the header of an exported player table.
func PlayerHeader() []string {
	h := []string{
		ColUsername, ColURL, ColDatetime, ColRule, ColLobby, ColStage, ColRankPower, ColTime, ColGameVersion,
		ColSlot, ColTeam, ColWin, ColUploader,
		FieldMainWeapon, FieldSubWeapon, FieldSpecialWeapon, ColWeaponType, ColCatalogSub, ColCatalogSpecial,
	}
	h = append(h, CounterFields...)
	for _, f := range CounterFields {
		h = append(h, PerMinute(f))
	}
	for _, f := range CounterFields {
		h = append(h, Per5Min(f))
	}
	return h
}

// PlayersToTable encodes reshaped player rows.
func PlayersToTable(players []model.PlayerRecord) *Table {
	t := NewTable(PlayerHeader()...)
	for _, p := range players {
		row := []string{
			p.Username, p.BattleID, FormatTime(p.Datetime), p.Rule, p.Lobby, p.Stage,
			FormatFloat(p.RankPower), strconv.Itoa(p.ElapsedSeconds), p.GameVersion,
			p.Slot, p.Team.String(), strconv.FormatBool(p.Win), strconv.FormatBool(p.Uploader),
			p.MainWeapon, p.SubWeapon, p.SpecialWeapon,
			p.WeaponType.String, p.CatalogSub.String, p.CatalogSpecial.String,
			strconv.Itoa(p.Inked), strconv.Itoa(p.KillAndAssist), strconv.Itoa(p.Kill),
			strconv.Itoa(p.Assist), strconv.Itoa(p.Death), strconv.Itoa(p.Specials),
		}
		for _, v := range rateValues(p.PerMinute) {
			row = append(row, FormatFloat(v))
		}
		for _, v := range rateValues(p.Per5Min) {
			row = append(row, FormatFloat(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// TeamHeader is the header of an exported team table.
func TeamHeader() []string {
	h := []string{ColUsername, ColURL, ColDatetime, ColRule, ColStage, ColTime, ColTeam, ColWin}
	for _, f := range CounterFields {
		h = append(h, Per5Min(f))
	}
	return append(h, ColKillDeath5Min, ColInvolved)
}

// TeamsToTable encodes team rows.
func TeamsToTable(teams []model.TeamRecord) *Table {
	t := NewTable(TeamHeader()...)
	for _, r := range teams {
		row := []string{
			r.Username, r.BattleID, FormatTime(r.Datetime), r.Rule, r.Stage,
			strconv.Itoa(r.ElapsedSeconds), r.Team.String(), strconv.FormatBool(r.Win),
		}
		for _, v := range rateValues(r.Per5Min) {
			row = append(row, FormatFloat(v))
		}
		row = append(row, FormatFloat(r.KillDeathPer5Min), FormatFloat(r.Involved))
		t.Rows = append(t.Rows, row)
	}
	return t
}

// AggregatesToTable encodes grouped rows; metrics fixes the order of the mean columns.
func AggregatesToTable(category string, rows []model.AggregateRow, metrics []string) *Table {
	h := []string{ColRule, category, ColCount, ColTotalCount, ColUsageRate, ColWinRate}
	t := NewTable(append(h, metrics...)...)
	for _, r := range rows {
		row := []string{
			r.Rule, r.Category, strconv.Itoa(r.Count), strconv.Itoa(r.TotalCount),
			strconv.FormatFloat(r.UsageRate, 'f', -1, 64), strconv.FormatFloat(r.WinRate, 'f', -1, 64),
		}
		for _, m := range metrics {
			row = append(row, FormatFloat(r.Means[m]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// PivotToTable encodes a pivot: category, one column per rule, mean, median.
func PivotToTable(p *model.PivotTable) *Table {
	h := append([]string{p.Subject}, p.Columns...)
	t := NewTable(append(h, ColMean, ColMedian)...)
	for _, r := range p.Rows {
		row := []string{r.Category}
		for _, v := range r.Values {
			row = append(row, FormatFloat(v))
		}
		row = append(row, FormatFloat(r.Mean), FormatFloat(r.Median))
		t.Rows = append(t.Rows, row)
	}
	return t
}
