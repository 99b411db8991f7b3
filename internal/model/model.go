package model

import (
	"fmt"
	"time"

	"github.com/aarondl/null/v8"
)

// Team represents which side a player is on.
type Team int

const (
	TeamUnknown Team = 0
	TeamAlpha   Team = 1
	TeamBravo   Team = 2
)

func (t Team) String() string {
	switch t {
	case TeamAlpha:
		return "alpha"
	case TeamBravo:
		return "bravo"
	default:
		return "?"
	}
}

// Prefix returns the slot prefix used in wide detail columns ("A" or "B").
func (t Team) Prefix() string {
	switch t {
	case TeamAlpha:
		return "A"
	case TeamBravo:
		return "B"
	default:
		return ""
	}
}

// Outcome records which team won a battle. Alpha is always the uploader's team.
type Outcome string

const (
	OutcomeAlpha   Outcome = "alpha"
	OutcomeBravo   Outcome = "bravo"
	OutcomeDraw    Outcome = "draw"
	OutcomeUnknown Outcome = "unknown"
)

// ParseOutcome maps a stored outcome value back to an Outcome.
// Unrecognised values become OutcomeUnknown.
func ParseOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeAlpha, OutcomeBravo, OutcomeDraw:
		return Outcome(s)
	default:
		return OutcomeUnknown
	}
}

// Winner returns the winning team, or TeamUnknown for draws and unknown results.
func (o Outcome) Winner() Team {
	switch o {
	case OutcomeAlpha:
		return TeamAlpha
	case OutcomeBravo:
		return TeamBravo
	default:
		return TeamUnknown
	}
}

// StatsVisibility is the "Used in global stats" marker shown on a battle page.
type StatsVisibility string

const (
	StatsAllow        StatsVisibility = "allow"
	StatsDeny         StatsVisibility = "deny"
	StatsExempted     StatsVisibility = "exempted"
	StatsDisconnected StatsVisibility = "disconnected"
	StatsUnknown      StatsVisibility = "unknown"
)

// ParseStatsVisibility maps a stored value back to a StatsVisibility.
func ParseStatsVisibility(s string) StatsVisibility {
	switch StatsVisibility(s) {
	case StatsAllow, StatsDeny, StatsExempted, StatsDisconnected:
		return StatsVisibility(s)
	default:
		return StatsUnknown
	}
}

// Lobbies scraped by default, in processing order.
const (
	LobbyXMatch             = "xmatch"
	LobbyBankaraChallenge   = "bankara_challenge"
	LobbySplatfestChallenge = "splatfest_challenge"
)

// Lobbies lists every lobby the tool knows how to scrape.
var Lobbies = []string{LobbyXMatch, LobbyBankaraChallenge, LobbySplatfestChallenge}

// RuleOrder is the fixed column order used when pivoting by rule.
var RuleOrder = []string{"area", "yagura", "hoko", "asari"}

// TeamSize is the maximum number of players per team.
const TeamSize = 4

// ---- Scraped records ----

// BattleSummary is one row of a user's battle listing.
type BattleSummary struct {
	ID           string // absolute detail URL
	Datetime     time.Time
	Username     string
	Rule         string
	Disconnected bool
}

// PlayerResult is one player's line on a battle detail page.
type PlayerResult struct {
	Self          bool
	MainWeapon    string
	SubWeapon     string
	SpecialWeapon string
	Inked         int
	KillAndAssist int
	Kill          int
	Assist        int
	Death         int
	Specials      int
}

// BattleDetail is the full record scraped from a single battle page.
type BattleDetail struct {
	ID             string
	Username       string
	Datetime       time.Time
	Rule           string
	Lobby          string
	Stage          string
	Outcome        Outcome
	ElapsedSeconds int
	GameVersion    string
	Stats          StatsVisibility
	RankPower      null.Float64 // X Power; only shown for xmatch
	Alpha          []PlayerResult
	Bravo          []PlayerResult
}

// Team returns the players of the given team.
func (d *BattleDetail) Team(t Team) []PlayerResult {
	switch t {
	case TeamAlpha:
		return d.Alpha
	case TeamBravo:
		return d.Bravo
	default:
		return nil
	}
}

// SlotName returns the wide-column label for a team position, e.g. "A1".
func SlotName(t Team, index int) string {
	return fmt.Sprintf("%s%d", t.Prefix(), index+1)
}

// Slots lists every slot label in column order.
func Slots() []string {
	out := make([]string, 0, 2*TeamSize)
	for _, t := range []Team{TeamAlpha, TeamBravo} {
		for i := 0; i < TeamSize; i++ {
			out = append(out, SlotName(t, i))
		}
	}
	return out
}

// SlotTeam returns the team a slot label belongs to.
func SlotTeam(slot string) Team {
	if slot == "" {
		return TeamUnknown
	}
	switch slot[0] {
	case 'A':
		return TeamAlpha
	case 'B':
		return TeamBravo
	default:
		return TeamUnknown
	}
}

// UploaderSlot is the slot of the player who submitted the battle.
const UploaderSlot = "A1"

// ---- Reference data ----

// Weapon is one main weapon from the catalog with its kit.
type Weapon struct {
	Key         string
	Name        string
	Type        string
	TypeName    string
	Sub         string
	SubName     string
	Special     string
	SpecialName string
}

// CatalogEntry is a key/display-name pair (sub, special, type, rule, stage).
type CatalogEntry struct {
	Key  string
	Name string
}

// ---- Reshaped records ----

// StatRates holds a rate per time window for each counter.
type StatRates struct {
	Inked         null.Float64
	KillAndAssist null.Float64
	Kill          null.Float64
	Assist        null.Float64
	Death         null.Float64
	Specials      null.Float64
}

// PlayerRecord is one (battle, slot) row after the wide-to-long reshape.
type PlayerRecord struct {
	BattleID       string
	Username       string
	Datetime       time.Time
	Rule           string
	Lobby          string
	Stage          string
	GameVersion    string
	RankPower      null.Float64
	ElapsedSeconds int

	Slot     string
	Team     Team
	Win      bool
	Uploader bool

	MainWeapon     string
	SubWeapon      string
	SpecialWeapon  string
	WeaponType     null.String // catalog join
	CatalogSub     null.String
	CatalogSpecial null.String

	Inked         int
	KillAndAssist int
	Kill          int
	Assist        int
	Death         int
	Specials      int

	PerMinute StatRates
	Per5Min   StatRates
}

// TeamRecord is one (battle, team) row with team totals per 5 minutes.
type TeamRecord struct {
	BattleID       string
	Username       string
	Datetime       time.Time
	Rule           string
	Stage          string
	ElapsedSeconds int
	Team           Team
	Win            bool

	Per5Min          StatRates
	KillDeathPer5Min null.Float64
	Involved         null.Float64 // kill+assist per kill
}

// ---- Aggregates ----

// AggregateRow is one (rule, category) group.
type AggregateRow struct {
	Rule       string
	Category   string
	Count      int
	TotalCount int
	UsageRate  float64
	WinRate    float64
	Means      map[string]null.Float64
}

// PivotRow is one category across the rule columns.
type PivotRow struct {
	Category string
	Values   []null.Float64 // aligned with PivotTable.Columns
	Mean     null.Float64
	Median   null.Float64
}

// PivotTable is an aggregate metric reshaped to category × rule.
type PivotTable struct {
	Subject string
	Metric  string
	Columns []string
	Rows    []PivotRow
}
