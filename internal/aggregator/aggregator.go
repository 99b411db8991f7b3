package aggregator

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/aarondl/null/v8"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/storage"
)

// Pivot metrics computed from the group itself rather than a column mean.
const (
	MetricCount     = "Count"
	MetricUsageRate = "Usage Rate"
	MetricWinRate   = "Win Rate"
)

// Metric is a numeric player column averaged per group.
type Metric struct {
	Name  string
	Value func(p *model.PlayerRecord) null.Float64
}

func intMetric(name string, f func(p *model.PlayerRecord) int) Metric {
	return Metric{Name: name, Value: func(p *model.PlayerRecord) null.Float64 { return null.Float64From(float64(f(p))) }}
}

func rateMetrics(suffix func(string) string, f func(p *model.PlayerRecord) model.StatRates) []Metric {
	pick := []func(model.StatRates) null.Float64{
		func(r model.StatRates) null.Float64 { return r.Inked },
		func(r model.StatRates) null.Float64 { return r.KillAndAssist },
		func(r model.StatRates) null.Float64 { return r.Kill },
		func(r model.StatRates) null.Float64 { return r.Assist },
		func(r model.StatRates) null.Float64 { return r.Death },
		func(r model.StatRates) null.Float64 { return r.Specials },
	}
	out := make([]Metric, len(pick))
	for i, p := range pick {
		p := p
		out[i] = Metric{Name: suffix(storage.CounterFields[i]), Value: func(r *model.PlayerRecord) null.Float64 { return p(f(r)) }}
	}
	return out
}

// Metrics lists every averaged column, in output order.
var Metrics = func() []Metric {
	m := []Metric{
		{Name: storage.ColRankPower, Value: func(p *model.PlayerRecord) null.Float64 { return p.RankPower }},
		intMetric(storage.ColTime, func(p *model.PlayerRecord) int { return p.ElapsedSeconds }),
		intMetric(storage.FieldInked, func(p *model.PlayerRecord) int { return p.Inked }),
		intMetric(storage.FieldKillAndAssist, func(p *model.PlayerRecord) int { return p.KillAndAssist }),
		intMetric(storage.FieldKill, func(p *model.PlayerRecord) int { return p.Kill }),
		intMetric(storage.FieldAssist, func(p *model.PlayerRecord) int { return p.Assist }),
		intMetric(storage.FieldDeath, func(p *model.PlayerRecord) int { return p.Death }),
		intMetric(storage.FieldSpecials, func(p *model.PlayerRecord) int { return p.Specials }),
	}
	m = append(m, rateMetrics(storage.PerMinute, func(p *model.PlayerRecord) model.StatRates { return p.PerMinute })...)
	return append(m, rateMetrics(storage.Per5Min, func(p *model.PlayerRecord) model.StatRates { return p.Per5Min })...)
}()

// MetricNames returns the names of Metrics in order.
func MetricNames() []string {
	out := make([]string, len(Metrics))
	for i, m := range Metrics {
		out[i] = m.Name
	}
	return out
}

// categoryColumns maps a groupable column to its value. An invalid value
// leaves the row out of every group, as the join it came from failed.
var categoryColumns = map[string]func(p *model.PlayerRecord) null.String{
	storage.FieldMainWeapon:    func(p *model.PlayerRecord) null.String { return null.StringFrom(p.MainWeapon) },
	storage.FieldSubWeapon:     func(p *model.PlayerRecord) null.String { return null.StringFrom(p.SubWeapon) },
	storage.FieldSpecialWeapon: func(p *model.PlayerRecord) null.String { return null.StringFrom(p.SpecialWeapon) },
	storage.ColWeaponType:      func(p *model.PlayerRecord) null.String { return p.WeaponType },
	storage.ColStage:           func(p *model.PlayerRecord) null.String { return null.StringFrom(p.Stage) },
	storage.ColLobby:           func(p *model.PlayerRecord) null.String { return null.StringFrom(p.Lobby) },
	storage.ColSlot:            func(p *model.PlayerRecord) null.String { return null.StringFrom(p.Slot) },
	storage.ColTeam:            func(p *model.PlayerRecord) null.String { return null.StringFrom(p.Team.String()) },
	storage.ColUsername:        func(p *model.PlayerRecord) null.String { return null.StringFrom(p.Username) },
	storage.ColGameVersion:     func(p *model.PlayerRecord) null.String { return null.StringFrom(p.GameVersion) },
}

// Columns returns the columns GroupByRuleAnd accepts, sorted.
func Columns() []string {
	out := make([]string, 0, len(categoryColumns))
	for c := range categoryColumns {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type groupKey struct{ rule, category string }

type accumulator struct {
	count int
	wins  int
	sums  []float64
	ns    []int
}

// GroupByRuleAnd groups players by rule and column. Each row carries the
// group size, the number of players in the rule, usage rate (percent of the
// rule), win rate (percent) and the mean of every metric, nulls skipped.
// Rows are ordered by rule then category.
func GroupByRuleAnd(players []model.PlayerRecord, column string) ([]model.AggregateRow, error) {
	value, ok := categoryColumns[column]
	if !ok {
		return nil, fmt.Errorf("cannot group by %q", column)
	}

	perRule := make(map[string]int)
	groups := make(map[groupKey]*accumulator)
	for i := range players {
		p := &players[i]
		perRule[p.Rule]++
		cat := value(p)
		if !cat.Valid {
			continue
		}
		k := groupKey{p.Rule, cat.String}
		acc := groups[k]
		if acc == nil {
			acc = &accumulator{sums: make([]float64, len(Metrics)), ns: make([]int, len(Metrics))}
			groups[k] = acc
		}
		acc.count++
		if p.Win {
			acc.wins++
		}
		for m, metric := range Metrics {
			if v := metric.Value(p); v.Valid {
				acc.sums[m] += v.Float64
				acc.ns[m]++
			}
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].rule != keys[j].rule {
			return keys[i].rule < keys[j].rule
		}
		return keys[i].category < keys[j].category
	})

	out := make([]model.AggregateRow, 0, len(keys))
	for _, k := range keys {
		acc := groups[k]
		row := model.AggregateRow{
			Rule:       k.rule,
			Category:   k.category,
			Count:      acc.count,
			TotalCount: perRule[k.rule],
			UsageRate:  float64(acc.count) / float64(perRule[k.rule]) * 100,
			WinRate:    float64(acc.wins) / float64(acc.count) * 100,
			Means:      make(map[string]null.Float64, len(Metrics)),
		}
		for m, metric := range Metrics {
			if acc.ns[m] > 0 {
				row.Means[metric.Name] = null.Float64From(acc.sums[m] / float64(acc.ns[m]))
			} else {
				row.Means[metric.Name] = null.Float64{}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func knownMetric(metric string) bool {
	switch metric {
	case MetricCount, MetricUsageRate, MetricWinRate:
		return true
	}
	for _, m := range Metrics {
		if m.Name == metric {
			return true
		}
	}
	return false
}

func metricValue(row model.AggregateRow, metric string) (null.Float64, error) {
	switch metric {
	case MetricCount:
		return null.Float64From(float64(row.Count)), nil
	case MetricUsageRate:
		return null.Float64From(row.UsageRate), nil
	case MetricWinRate:
		return null.Float64From(row.WinRate), nil
	}
	v, ok := row.Means[metric]
	if !ok {
		return null.Float64{}, fmt.Errorf("unknown metric %q", metric)
	}
	return v, nil
}

// Pivot aggregates players by rule and subject, then lays metric out with one
// row per category and one column per rule in model.RuleOrder, plus the mean
// and median across the row. Rows are sorted by median, highest first; equal
// medians keep category order and null medians go last.
func Pivot(players []model.PlayerRecord, subject, metric string) (*model.PivotTable, error) {
	if !knownMetric(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	rows, err := GroupByRuleAnd(players, subject)
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(model.RuleOrder))
	for i, r := range model.RuleOrder {
		col[r] = i
	}

	byCategory := make(map[string][]null.Float64)
	var categories []string
	for _, r := range rows {
		i, ok := col[r.Rule]
		if !ok {
			continue
		}
		v, err := metricValue(r, metric)
		if err != nil {
			return nil, err
		}
		values, seen := byCategory[r.Category]
		if !seen {
			values = make([]null.Float64, len(model.RuleOrder))
			categories = append(categories, r.Category)
		}
		values[i] = v
		byCategory[r.Category] = values
	}
	sort.Strings(categories)

	p := &model.PivotTable{Subject: subject, Metric: metric, Columns: append([]string(nil), model.RuleOrder...)}
	for _, c := range categories {
		values := byCategory[c]
		p.Rows = append(p.Rows, model.PivotRow{Category: c, Values: values, Mean: Mean(values), Median: Median(values)})
	}
	sort.SliceStable(p.Rows, func(i, j int) bool {
		a, b := p.Rows[i].Median, p.Rows[j].Median
		if !a.Valid || !b.Valid {
			return a.Valid && !b.Valid
		}
		return a.Float64 > b.Float64
	})
	return p, nil
}

// Mean averages the valid values; null when there are none.
func Mean(values []null.Float64) null.Float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if v.Valid {
			sum += v.Float64
			n++
		}
	}
	if n == 0 {
		return null.Float64{}
	}
	return null.Float64From(sum / float64(n))
}

// Median of the valid values; null when there are none.
func Median(values []null.Float64) null.Float64 {
	var vs []float64
	for _, v := range values {
		if v.Valid && !math.IsNaN(v.Float64) {
			vs = append(vs, v.Float64)
		}
	}
	if len(vs) == 0 {
		return null.Float64{}
	}
	sort.Float64s(vs)
	mid := len(vs) / 2
	if len(vs)%2 == 1 {
		return null.Float64From(vs[mid])
	}
	return null.Float64From((vs[mid-1] + vs[mid]) / 2)
}

// UniqueUsers counts distinct uploaders.
func UniqueUsers(players []model.PlayerRecord) int {
	seen := make(map[string]struct{})
	for _, p := range players {
		seen[p.Username] = struct{}{}
	}
	return len(seen)
}

// FormatRate renders a percentage the way the report tables show it.
func FormatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}
