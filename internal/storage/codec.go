package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aarondl/null/v8"

	"github.com/pable/go-ink-metrics/internal/model"
)

// Column names shared by the stored files.
const (
	ColDatetime     = "Datetime"
	ColUsername     = "Username"
	ColURL          = "Url"
	ColRule         = "Rule"
	ColDisconnected = "Disconnected"
	ColLobby        = "Lobby"
	ColStage        = "Stage"
	ColWin          = "Win"
	ColRankPower    = "X Power"
	ColTime         = "Time"
	ColGameVersion  = "Game Version"
	ColStats        = "Stats"

	ColKey  = "Key"
	ColName = "Name"
)

// Per-slot field suffixes of the detail file, in column order.
const (
	FieldMainWeapon    = "Main Weapon"
	FieldSubWeapon     = "Sub Weapon"
	FieldSpecialWeapon = "Special Weapon"
	FieldInked         = "Inked"
	FieldKillAndAssist = "Kill & Assist"
	FieldKill          = "Kill"
	FieldAssist        = "Assist"
	FieldDeath         = "Death"
	FieldSpecials      = "Specials"
)

// SlotFields lists the per-slot fields; the first three are weapon keys,
// the rest non-negative counters.
var SlotFields = []string{
	FieldMainWeapon, FieldSubWeapon, FieldSpecialWeapon,
	FieldInked, FieldKillAndAssist, FieldKill, FieldAssist, FieldDeath, FieldSpecials,
}

// CounterFields are the numeric per-slot fields.
var CounterFields = SlotFields[3:]

// SlotColumn names the wide detail column for slot and field, e.g. "A2 Kill".
func SlotColumn(slot, field string) string { return slot + " " + field }

// Key columns used when merging each file.
var (
	SummaryKey = []string{ColURL}
	DetailKey  = []string{ColURL}
	UserKey    = []string{ColUsername}
	CatalogKey = []string{ColKey}
)

// SummaryHeader is the battle list file header.
var SummaryHeader = []string{ColDatetime, ColUsername, ColURL, ColRule, ColDisconnected}

// UserHeader is the user list file header.
var UserHeader = []string{ColUsername}

// CatalogHeader is the header of the sub, special, type, rule and stage files.
var CatalogHeader = []string{ColKey, ColName}

// WeaponHeader is the main weapon catalog header.
var WeaponHeader = []string{ColKey, ColName, "Type", "Type Name", "Sub", "Sub Name", "Special", "Special Name"}

// DetailHeader returns the wide detail file header: battle columns followed
// by every slot's fields.
func DetailHeader() []string {
	h := []string{ColUsername, ColURL, ColDatetime, ColRule, ColLobby, ColStage, ColWin, ColRankPower, ColTime, ColGameVersion, ColStats}
	for _, slot := range model.Slots() {
		for _, f := range SlotFields {
			h = append(h, SlotColumn(slot, f))
		}
	}
	return h
}

// FormatTime renders a timestamp the way every file stores it.
func FormatTime(t time.Time) string { return t.Format(time.RFC3339) }

// ParseTime reads a stored timestamp into loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t, nil
}

// FormatFloat renders a nullable float; null is an empty cell.
func FormatFloat(v null.Float64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

// ParseFloat reads a nullable float; an empty cell is null.
func ParseFloat(s string) (null.Float64, error) {
	if s == "" {
		return null.Float64{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float64{}, err
	}
	return null.Float64From(f), nil
}

// ---- Summaries ----

// SummaryRow encodes one summary.
func SummaryRow(s model.BattleSummary) []string {
	return []string{FormatTime(s.Datetime), s.Username, s.ID, s.Rule, strconv.FormatBool(s.Disconnected)}
}

// SummariesToTable encodes summaries under SummaryHeader.
func SummariesToTable(summaries []model.BattleSummary) *Table {
	t := NewTable(SummaryHeader...)
	for _, s := range summaries {
		t.Rows = append(t.Rows, SummaryRow(s))
	}
	return t
}

// TableToSummaries decodes a battle list file.
func TableToSummaries(t *Table, loc *time.Location) ([]model.BattleSummary, error) {
	out := make([]model.BattleSummary, 0, t.Len())
	for i, r := range t.Rows {
		dt, err := ParseTime(t.Get(r, ColDatetime), loc)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, model.BattleSummary{
			ID:           t.Get(r, ColURL),
			Datetime:     dt,
			Username:     t.Get(r, ColUsername),
			Rule:         t.Get(r, ColRule),
			Disconnected: t.Get(r, ColDisconnected) == "true" || t.Get(r, ColDisconnected) == "True",
		})
	}
	return out, nil
}

// ---- Users ----

// UsersToTable encodes usernames under UserHeader.
func UsersToTable(users []string) *Table {
	t := NewTable(UserHeader...)
	for _, u := range users {
		t.Rows = append(t.Rows, []string{u})
	}
	return t
}

// TableToUsers decodes the user list, skipping blanks.
func TableToUsers(t *Table) []string {
	var out []string
	for _, u := range t.Column(ColUsername) {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ---- Details ----

// DetailRow encodes one detail under DetailHeader. Missing players leave
// their slot columns empty.
func DetailRow(d *model.BattleDetail) []string {
	row := []string{
		d.Username, d.ID, FormatTime(d.Datetime), d.Rule, d.Lobby, d.Stage,
		string(d.Outcome), FormatFloat(d.RankPower), strconv.Itoa(d.ElapsedSeconds),
		d.GameVersion, string(d.Stats),
	}
	for _, team := range []model.Team{model.TeamAlpha, model.TeamBravo} {
		players := d.Team(team)
		for i := 0; i < model.TeamSize; i++ {
			if i >= len(players) {
				row = append(row, make([]string, len(SlotFields))...)
				continue
			}
			p := players[i]
			row = append(row,
				p.MainWeapon, p.SubWeapon, p.SpecialWeapon,
				strconv.Itoa(p.Inked), strconv.Itoa(p.KillAndAssist), strconv.Itoa(p.Kill),
				strconv.Itoa(p.Assist), strconv.Itoa(p.Death), strconv.Itoa(p.Specials),
			)
		}
	}
	return row
}

// DetailsToTable encodes details under DetailHeader.
func DetailsToTable(details []*model.BattleDetail) *Table {
	t := NewTable(DetailHeader()...)
	for _, d := range details {
		t.Rows = append(t.Rows, DetailRow(d))
	}
	return t
}

// TableToDetails decodes a detail file. The uploader (slot A1) is marked Self.
func TableToDetails(t *Table, loc *time.Location) ([]*model.BattleDetail, error) {
	out := make([]*model.BattleDetail, 0, t.Len())
	for i, r := range t.Rows {
		d, err := decodeDetail(t, r, loc)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, t.Get(r, ColURL), err)
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeDetail(t *Table, r []string, loc *time.Location) (*model.BattleDetail, error) {
	d := &model.BattleDetail{
		ID:          t.Get(r, ColURL),
		Username:    t.Get(r, ColUsername),
		Rule:        t.Get(r, ColRule),
		Lobby:       t.Get(r, ColLobby),
		Stage:       t.Get(r, ColStage),
		Outcome:     model.ParseOutcome(t.Get(r, ColWin)),
		GameVersion: t.Get(r, ColGameVersion),
		Stats:       model.ParseStatsVisibility(t.Get(r, ColStats)),
	}
	var err error
	if d.Datetime, err = ParseTime(t.Get(r, ColDatetime), loc); err != nil {
		return nil, err
	}
	if d.RankPower, err = ParseFloat(t.Get(r, ColRankPower)); err != nil {
		return nil, fmt.Errorf("%s: %w", ColRankPower, err)
	}
	if d.ElapsedSeconds, err = atoiOrZero(t.Get(r, ColTime)); err != nil {
		return nil, fmt.Errorf("%s: %w", ColTime, err)
	}

	for _, team := range []model.Team{model.TeamAlpha, model.TeamBravo} {
		var players []model.PlayerResult
		for i := 0; i < model.TeamSize; i++ {
			slot := model.SlotName(team, i)
			main := t.Get(r, SlotColumn(slot, FieldMainWeapon))
			if main == "" {
				continue
			}
			p := model.PlayerResult{
				Self:          slot == model.UploaderSlot,
				MainWeapon:    main,
				SubWeapon:     t.Get(r, SlotColumn(slot, FieldSubWeapon)),
				SpecialWeapon: t.Get(r, SlotColumn(slot, FieldSpecialWeapon)),
			}
			for _, c := range []struct {
				field string
				dst   *int
			}{
				{FieldInked, &p.Inked},
				{FieldKillAndAssist, &p.KillAndAssist},
				{FieldKill, &p.Kill},
				{FieldAssist, &p.Assist},
				{FieldDeath, &p.Death},
				{FieldSpecials, &p.Specials},
			} {
				if *c.dst, err = atoiOrZero(t.Get(r, SlotColumn(slot, c.field))); err != nil {
					return nil, fmt.Errorf("%s: %w", SlotColumn(slot, c.field), err)
				}
			}
			players = append(players, p)
		}
		if team == model.TeamAlpha {
			d.Alpha = players
		} else {
			d.Bravo = players
		}
	}
	return d, nil
}

// atoiOrZero parses an integer cell; blank is 0. Float-formatted values such
// as "12.0" are accepted.
func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ---- Catalogs ----

// WeaponsToTable encodes the main weapon catalog.
func WeaponsToTable(weapons []model.Weapon) *Table {
	t := NewTable(WeaponHeader...)
	for _, w := range weapons {
		t.Rows = append(t.Rows, []string{w.Key, w.Name, w.Type, w.TypeName, w.Sub, w.SubName, w.Special, w.SpecialName})
	}
	return t
}

// TableToWeapons decodes the main weapon catalog.
func TableToWeapons(t *Table) []model.Weapon {
	out := make([]model.Weapon, 0, t.Len())
	for _, r := range t.Rows {
		out = append(out, model.Weapon{
			Key:         t.Get(r, ColKey),
			Name:        t.Get(r, ColName),
			Type:        t.Get(r, "Type"),
			TypeName:    t.Get(r, "Type Name"),
			Sub:         t.Get(r, "Sub"),
			SubName:     t.Get(r, "Sub Name"),
			Special:     t.Get(r, "Special"),
			SpecialName: t.Get(r, "Special Name"),
		})
	}
	return out
}

// CatalogToTable encodes a key/name catalog, dropping repeated keys.
func CatalogToTable(entries []model.CatalogEntry) *Table {
	t := NewTable(CatalogHeader...)
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Key]; dup {
			continue
		}
		seen[e.Key] = struct{}{}
		t.Rows = append(t.Rows, []string{e.Key, e.Name})
	}
	return t
}

// TableToCatalog decodes a key/name catalog.
func TableToCatalog(t *Table) []model.CatalogEntry {
	out := make([]model.CatalogEntry, 0, t.Len())
	for _, r := range t.Rows {
		out = append(out, model.CatalogEntry{Key: t.Get(r, ColKey), Name: t.Get(r, ColName)})
	}
	return out
}
