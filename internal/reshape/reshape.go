// Package reshape turns the wide detail table (one row per battle, one column
// group per slot) into one row per player or per team.
package reshape

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/rs/zerolog"

	"github.com/pable/go-ink-metrics/internal/config"
	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/storage"
)

// Separator joins a slot's fields into one cell while the table is melted.
// It is the ASCII unit separator, which never appears in weapon keys or counters.
const Separator = "\x1f"

// ErrSeparatorInValue means a field value contains Separator and cannot be packed.
var ErrSeparatorInValue = errors.New("value contains the field separator")

// Pack joins values with Separator.
func Pack(values []string) (string, error) {
	for _, v := range values {
		if strings.Contains(v, Separator) {
			return "", fmt.Errorf("pack %q: %w", v, ErrSeparatorInValue)
		}
	}
	return strings.Join(values, Separator), nil
}

// Unpack splits a packed cell back into exactly n values.
func Unpack(packed string, n int) ([]string, error) {
	values := strings.Split(packed, Separator)
	if len(values) != n {
		return nil, fmt.Errorf("unpack: %d fields, want %d", len(values), n)
	}
	return values, nil
}

// DataQualityError is a key missing from a reference catalog. The joined
// fields are left null and the batch continues.
type DataQualityError struct {
	Column string
	Key    string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("%s %q not in catalog", e.Column, e.Key)
}

// Catalog indexes the main weapon table by key.
type Catalog struct {
	weapons map[string]model.Weapon
}

// NewCatalog builds a Catalog from the main weapon list.
func NewCatalog(weapons []model.Weapon) *Catalog {
	c := &Catalog{weapons: make(map[string]model.Weapon, len(weapons))}
	for _, w := range weapons {
		c.weapons[w.Key] = w
	}
	return c
}

// Weapon looks up a main weapon.
func (c *Catalog) Weapon(key string) (model.Weapon, bool) {
	w, ok := c.weapons[key]
	return w, ok
}

// Len returns the number of weapons.
func (c *Catalog) Len() int { return len(c.weapons) }

// Options control which rows are produced.
type Options struct {
	ExcludeUploader bool
	// Variants maps a weapon key to the key it is counted as.
	Variants     map[string]string
	AllowedStats []model.StatsVisibility
	Location     *time.Location
}

// DefaultOptions excludes the uploader, folds the Hero Shot replica into the
// Splattershot and keeps only battles allowed in global stats.
func DefaultOptions() Options {
	return Options{
		ExcludeUploader: true,
		Variants:        map[string]string{"heroshooter_replica": "sshooter"},
		AllowedStats:    []model.StatsVisibility{model.StatsAllow},
	}
}

// OptionsFromConfig applies the INK_INCLUDE_UPLOADER, INK_KEEP_VARIANTS and
// INK_INCLUDE_DENIED switches to DefaultOptions.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()
	opts.ExcludeUploader = !cfg.IncludeUploader
	if cfg.KeepVariants {
		opts.Variants = nil
	}
	if cfg.IncludeDenied {
		opts.AllowedStats = append(opts.AllowedStats, model.StatsDeny)
	}
	loc, err := cfg.Location()
	if err != nil {
		return opts, err
	}
	opts.Location = loc
	return opts, nil
}

// Reshaper melts detail tables. It is not safe for concurrent use.
type Reshaper struct {
	catalog *Catalog
	opts    Options
	logger  zerolog.Logger
	issues  []*DataQualityError
}

// New returns a Reshaper. A nil catalog leaves the joined fields null.
func New(catalog *Catalog, opts Options, logger zerolog.Logger) *Reshaper {
	return &Reshaper{catalog: catalog, opts: opts, logger: logger}
}

// Issues returns the catalog misses of the last call, one per key.
func (r *Reshaper) Issues() []*DataQualityError { return r.issues }

func (r *Reshaper) allowed(details *storage.Table, row []string) bool {
	if len(r.opts.AllowedStats) == 0 {
		return true
	}
	s := model.ParseStatsVisibility(details.Get(row, storage.ColStats))
	for _, a := range r.opts.AllowedStats {
		if s == a {
			return true
		}
	}
	return false
}

// battleMeta holds the per-battle columns copied onto every player row.
type battleMeta struct {
	id, username, rule, lobby, stage, version string
	datetime                                  time.Time
	outcome                                   model.Outcome
	rankPower                                 null.Float64
	elapsed                                   int
}

func (r *Reshaper) meta(details *storage.Table, row []string) (battleMeta, error) {
	m := battleMeta{
		id:       details.Get(row, storage.ColURL),
		username: details.Get(row, storage.ColUsername),
		rule:     details.Get(row, storage.ColRule),
		lobby:    details.Get(row, storage.ColLobby),
		stage:    details.Get(row, storage.ColStage),
		version:  details.Get(row, storage.ColGameVersion),
		outcome:  model.ParseOutcome(details.Get(row, storage.ColWin)),
	}
	var err error
	if m.datetime, err = storage.ParseTime(details.Get(row, storage.ColDatetime), r.opts.Location); err != nil {
		return m, fmt.Errorf("%s: %s: %w", m.id, storage.ColDatetime, err)
	}
	if m.rankPower, err = storage.ParseFloat(details.Get(row, storage.ColRankPower)); err != nil {
		return m, fmt.Errorf("%s: %s: %w", m.id, storage.ColRankPower, err)
	}
	if m.elapsed, err = parseCounter(details.Get(row, storage.ColTime)); err != nil {
		return m, fmt.Errorf("%s: %s: %w", m.id, storage.ColTime, err)
	}
	return m, nil
}

// melted is one (battle, slot) row with the slot's fields packed.
type melted struct {
	battle int
	slot   string
	packed string
}

// melt packs each present slot of each battle into one cell.
func melt(details *storage.Table, rows []int) ([]melted, error) {
	var out []melted
	for _, i := range rows {
		row := details.Rows[i]
		for _, slot := range model.Slots() {
			values := make([]string, len(storage.SlotFields))
			for f, field := range storage.SlotFields {
				values[f] = details.Get(row, storage.SlotColumn(slot, field))
			}
			if values[0] == "" {
				continue
			}
			packed, err := Pack(values)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", details.Get(row, storage.ColURL), slot, err)
			}
			out = append(out, melted{battle: i, slot: slot, packed: packed})
		}
	}
	return out, nil
}

// Players returns one record per (battle, slot), in table order.
func (r *Reshaper) Players(details *storage.Table) ([]model.PlayerRecord, error) {
	r.issues = nil
	missing := make(map[string]bool)

	var kept []int
	metas := make(map[int]battleMeta)
	for i, row := range details.Rows {
		if !r.allowed(details, row) {
			continue
		}
		m, err := r.meta(details, row)
		if err != nil {
			return nil, err
		}
		metas[i] = m
		kept = append(kept, i)
	}

	long, err := melt(details, kept)
	if err != nil {
		return nil, err
	}

	out := make([]model.PlayerRecord, 0, len(long))
	for _, l := range long {
		uploader := l.slot == model.UploaderSlot
		if uploader && r.opts.ExcludeUploader {
			continue
		}
		values, err := Unpack(l.packed, len(storage.SlotFields))
		if err != nil {
			return nil, err
		}
		m := metas[l.battle]
		team := model.SlotTeam(l.slot)
		p := model.PlayerRecord{
			BattleID:       m.id,
			Username:       m.username,
			Datetime:       m.datetime,
			Rule:           m.rule,
			Lobby:          m.lobby,
			Stage:          m.stage,
			GameVersion:    m.version,
			RankPower:      m.rankPower,
			ElapsedSeconds: m.elapsed,
			Slot:           l.slot,
			Team:           team,
			Win:            team == m.outcome.Winner(),
			Uploader:       uploader,
			MainWeapon:     values[0],
			SubWeapon:      values[1],
			SpecialWeapon:  values[2],
		}
		counters := []*int{&p.Inked, &p.KillAndAssist, &p.Kill, &p.Assist, &p.Death, &p.Specials}
		for c, dst := range counters {
			if *dst, err = parseCounter(values[3+c]); err != nil {
				return nil, fmt.Errorf("%s %s %s: %w", m.id, l.slot, storage.CounterFields[c], err)
			}
		}

		r.join(&p, missing)
		if v, ok := r.opts.Variants[p.MainWeapon]; ok {
			p.MainWeapon = v
		}
		p.PerMinute = rates(m.elapsed, 60, p.Inked, p.KillAndAssist, p.Kill, p.Assist, p.Death, p.Specials)
		p.Per5Min = rates(m.elapsed, 300, p.Inked, p.KillAndAssist, p.Kill, p.Assist, p.Death, p.Specials)
		out = append(out, p)
	}
	return out, nil
}

func (r *Reshaper) join(p *model.PlayerRecord, missing map[string]bool) {
	if r.catalog == nil {
		return
	}
	w, ok := r.catalog.Weapon(p.MainWeapon)
	if !ok {
		if !missing[p.MainWeapon] {
			missing[p.MainWeapon] = true
			issue := &DataQualityError{Column: storage.FieldMainWeapon, Key: p.MainWeapon}
			r.issues = append(r.issues, issue)
			r.logger.Warn().Err(issue).Str("battle", p.BattleID).Msg("catalog join skipped")
		}
		return
	}
	p.WeaponType = null.StringFrom(w.Type)
	p.CatalogSub = null.StringFrom(w.Sub)
	p.CatalogSpecial = null.StringFrom(w.Special)
}

// Teams returns two records per battle (alpha then bravo) with team totals
// per 5 minutes.
func (r *Reshaper) Teams(details *storage.Table) ([]model.TeamRecord, error) {
	var out []model.TeamRecord
	for _, row := range details.Rows {
		if !r.allowed(details, row) {
			continue
		}
		m, err := r.meta(details, row)
		if err != nil {
			return nil, err
		}
		for _, team := range []model.Team{model.TeamAlpha, model.TeamBravo} {
			sums := make([]int, len(storage.CounterFields))
			for i := 0; i < model.TeamSize; i++ {
				slot := model.SlotName(team, i)
				if details.Get(row, storage.SlotColumn(slot, storage.FieldMainWeapon)) == "" {
					continue
				}
				for c, field := range storage.CounterFields {
					n, err := parseCounter(details.Get(row, storage.SlotColumn(slot, field)))
					if err != nil {
						return nil, fmt.Errorf("%s %s %s: %w", m.id, slot, field, err)
					}
					sums[c] += n
				}
			}

			t := model.TeamRecord{
				BattleID:       m.id,
				Username:       m.username,
				Datetime:       m.datetime,
				Rule:           m.rule,
				Stage:          m.stage,
				ElapsedSeconds: m.elapsed,
				Team:           team,
				Win:            team == m.outcome.Winner(),
				Per5Min:        rates(m.elapsed, 300, sums...),
			}
			if t.Per5Min.Kill.Valid {
				t.KillDeathPer5Min = null.Float64From(t.Per5Min.Kill.Float64 - t.Per5Min.Death.Float64)
				if t.Per5Min.Kill.Float64 > 0 {
					t.Involved = null.Float64From(t.Per5Min.KillAndAssist.Float64 / t.Per5Min.Kill.Float64)
				}
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// Rate returns count per window seconds, or null when elapsed is 0.
func Rate(count, elapsed, window int) null.Float64 {
	if elapsed <= 0 {
		return null.Float64{}
	}
	return null.Float64From(float64(count) * float64(window) / float64(elapsed))
}

// rates expects counters in StatRates field order.
func rates(elapsed, window int, counters ...int) model.StatRates {
	return model.StatRates{
		Inked:         Rate(counters[0], elapsed, window),
		KillAndAssist: Rate(counters[1], elapsed, window),
		Kill:          Rate(counters[2], elapsed, window),
		Assist:        Rate(counters[3], elapsed, window),
		Death:         Rate(counters[4], elapsed, window),
		Specials:      Rate(counters[5], elapsed, window),
	}
}

func parseCounter(s string) (int, error) {
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
