package aggregator

import (
	"testing"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/storage"
)

// makePlayer returns a minimal player row on rule using main.
func makePlayer(rule, main string, win bool, kill int) model.PlayerRecord {
	return model.PlayerRecord{
		Username:   "alice",
		Rule:       rule,
		MainWeapon: main,
		Win:        win,
		Kill:       kill,
		Per5Min:    model.StatRates{Kill: null.Float64From(float64(kill))},
		RankPower:  null.Float64From(2000),
	}
}

func repeat(n int, p model.PlayerRecord) []model.PlayerRecord {
	out := make([]model.PlayerRecord, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func findRow(rows []model.AggregateRow, rule, category string) *model.AggregateRow {
	for i := range rows {
		if rows[i].Rule == rule && rows[i].Category == category {
			return &rows[i]
		}
	}
	return nil
}

func TestGroupByRuleAndUsageAndWinRate(t *testing.T) {
	// 100 area rows: W1 appears 20 times with 12 wins.
	var players []model.PlayerRecord
	players = append(players, repeat(12, makePlayer("area", "W1", true, 4))...)
	players = append(players, repeat(8, makePlayer("area", "W1", false, 2))...)
	players = append(players, repeat(80, makePlayer("area", "W2", false, 1))...)
	players = append(players, repeat(10, makePlayer("asari", "W1", true, 0))...)

	rows, err := GroupByRuleAnd(players, storage.FieldMainWeapon)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	w1 := findRow(rows, "area", "W1")
	require.NotNil(t, w1)
	assert.Equal(t, 20, w1.Count)
	assert.Equal(t, 100, w1.TotalCount)
	assert.InDelta(t, 20.0, w1.UsageRate, 1e-9)
	assert.InDelta(t, 60.0, w1.WinRate, 1e-9)
	assert.InDelta(t, (12*4+8*2)/20.0, w1.Means[storage.FieldKill].Float64, 1e-9)
	assert.InDelta(t, 2000, w1.Means[storage.ColRankPower].Float64, 1e-9)

	asari := findRow(rows, "asari", "W1")
	require.NotNil(t, asari)
	assert.Equal(t, 10, asari.TotalCount)
	assert.InDelta(t, 100.0, asari.UsageRate, 1e-9)

	// Ordered by rule then category.
	assert.Equal(t, "area", rows[0].Rule)
	assert.Equal(t, "W1", rows[0].Category)
	assert.Equal(t, "W2", rows[1].Category)
	assert.Equal(t, "asari", rows[2].Rule)
}

func TestGroupByRuleAndUsageSumsTo100(t *testing.T) {
	var players []model.PlayerRecord
	for i, main := range []string{"a", "b", "c", "c", "d", "d", "d"} {
		players = append(players, makePlayer("yagura", main, i%2 == 0, i))
	}
	rows, err := GroupByRuleAnd(players, storage.FieldMainWeapon)
	require.NoError(t, err)
	total := 0.0
	for _, r := range rows {
		total += r.UsageRate
	}
	assert.InDelta(t, 100.0, total, 1e-9)
}

func TestGroupByRuleAndMeansSkipNulls(t *testing.T) {
	a := makePlayer("area", "W1", true, 1)
	b := makePlayer("area", "W1", false, 3)
	b.RankPower = null.Float64{}
	c := makePlayer("area", "W2", false, 3)
	c.RankPower = null.Float64{}

	rows, err := GroupByRuleAnd([]model.PlayerRecord{a, b, c}, storage.FieldMainWeapon)
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(2000), findRow(rows, "area", "W1").Means[storage.ColRankPower])
	assert.False(t, findRow(rows, "area", "W2").Means[storage.ColRankPower].Valid)
}

func TestGroupByRuleAndSkipsNullCategory(t *testing.T) {
	known := makePlayer("area", "W1", true, 1)
	known.WeaponType = null.StringFrom("shooter")
	unknown := makePlayer("area", "mystery", true, 1)

	rows, err := GroupByRuleAnd([]model.PlayerRecord{known, unknown}, storage.ColWeaponType)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "shooter", rows[0].Category)
	assert.Equal(t, 2, rows[0].TotalCount)
	assert.InDelta(t, 50.0, rows[0].UsageRate, 1e-9)
}

func TestGroupByRuleAndUnknownColumn(t *testing.T) {
	_, err := GroupByRuleAnd(nil, "Favourite Colour")
	assert.Error(t, err)
}

func TestPivotColumnsAndMedianOrder(t *testing.T) {
	var players []model.PlayerRecord
	// W1 wins everywhere it appears: area and hoko.
	players = append(players, repeat(2, makePlayer("area", "W1", true, 0))...)
	players = append(players, repeat(2, makePlayer("hoko", "W1", true, 0))...)
	// W2 wins half in area, never in asari.
	players = append(players, makePlayer("area", "W2", true, 0), makePlayer("area", "W2", false, 0))
	players = append(players, makePlayer("asari", "W2", false, 0))
	// W0 loses everywhere.
	players = append(players, makePlayer("yagura", "W0", false, 0))
	// Unknown rules are ignored by the pivot.
	players = append(players, makePlayer("tricolor", "W0", true, 0))

	p, err := Pivot(players, storage.FieldMainWeapon, MetricWinRate)
	require.NoError(t, err)
	assert.Equal(t, model.RuleOrder, p.Columns)
	require.Len(t, p.Rows, 3)

	assert.Equal(t, "W1", p.Rows[0].Category)
	assert.Equal(t, []null.Float64{null.Float64From(100), {}, null.Float64From(100), {}}, p.Rows[0].Values)
	assert.Equal(t, null.Float64From(100), p.Rows[0].Median)

	assert.Equal(t, "W2", p.Rows[1].Category)
	assert.Equal(t, null.Float64From(25), p.Rows[1].Median)
	assert.Equal(t, null.Float64From(25), p.Rows[1].Mean)

	assert.Equal(t, "W0", p.Rows[2].Category)
	assert.Equal(t, null.Float64From(0), p.Rows[2].Median)
}

func TestPivotTiesKeepCategoryOrder(t *testing.T) {
	players := []model.PlayerRecord{
		makePlayer("area", "zeta", true, 0),
		makePlayer("area", "alpha", true, 0),
		makePlayer("area", "mid", true, 0),
	}
	p, err := Pivot(players, storage.FieldMainWeapon, MetricCount)
	require.NoError(t, err)
	var got []string
	for _, r := range p.Rows {
		got = append(got, r.Category)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, got)
}

func TestPivotNullMediansLast(t *testing.T) {
	withPower := makePlayer("area", "b", true, 0)
	withPower.RankPower = null.Float64From(1500)
	noPower := makePlayer("area", "a", true, 0)
	noPower.RankPower = null.Float64{}

	p, err := Pivot([]model.PlayerRecord{noPower, withPower}, storage.FieldMainWeapon, storage.ColRankPower)
	require.NoError(t, err)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, "b", p.Rows[0].Category)
	assert.Equal(t, "a", p.Rows[1].Category)
	assert.False(t, p.Rows[1].Median.Valid)
	assert.False(t, p.Rows[1].Mean.Valid)
}

func TestPivotUnknownMetric(t *testing.T) {
	_, err := Pivot(nil, storage.FieldMainWeapon, "Style")
	assert.Error(t, err)
	_, err = Pivot(nil, "Style", MetricCount)
	assert.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, null.Float64From(2.5), Median([]null.Float64{null.Float64From(4), {}, null.Float64From(1), null.Float64From(3), null.Float64From(2)}))
	assert.Equal(t, null.Float64From(3), Median([]null.Float64{null.Float64From(3)}))
	assert.False(t, Median([]null.Float64{{}, {}}).Valid)
}

func TestUniqueUsers(t *testing.T) {
	a := makePlayer("area", "W1", true, 0)
	b := a
	b.Username = "bob"
	assert.Equal(t, 2, UniqueUsers([]model.PlayerRecord{a, a, b}))
	assert.Equal(t, 0, UniqueUsers(nil))
}

func TestMetricNamesIncludeRates(t *testing.T) {
	names := MetricNames()
	assert.Contains(t, names, storage.Per5Min(storage.FieldKill))
	assert.Contains(t, names, storage.PerMinute(storage.FieldInked))
	assert.Equal(t, storage.ColRankPower, names[0])
}
