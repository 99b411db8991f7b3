package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/pipeline"
)

func TestWilsonCI(t *testing.T) {
	lo, hi := wilsonCI(0, 0)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	lo, hi = wilsonCI(12, 20)
	assert.Less(t, lo, 0.6)
	assert.Greater(t, hi, 0.6)
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.LessOrEqual(t, hi, 1.0)
}

func TestSampleFlag(t *testing.T) {
	assert.Equal(t, "OK", sampleFlag(100))
	assert.Equal(t, "LOW", sampleFlag(30))
	assert.Equal(t, "VERY_LOW", sampleFlag(29))
}

func TestPrintBattleDetailMarksUploader(t *testing.T) {
	d := &model.BattleDetail{
		ID:        "https://stat.ink/@alice/spl3/b1",
		Username:  "alice",
		Datetime:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Rule:      "area",
		Lobby:     "xmatch",
		Outcome:   model.OutcomeAlpha,
		RankPower: null.Float64From(2100.5),
		Alpha:     []model.PlayerResult{{Self: true, MainWeapon: "wakaba"}},
		Bravo:     []model.PlayerResult{{MainWeapon: "sshooter"}},
	}
	var buf bytes.Buffer
	PrintBattleDetail(&buf, d)
	out := buf.String()
	assert.Contains(t, out, "@alice")
	assert.Contains(t, out, "2100.5")
	assert.Contains(t, out, ">")
	assert.Contains(t, out, "B1")
	assert.Contains(t, out, "sshooter")
}

func TestPrintPivotTableNulls(t *testing.T) {
	p := &model.PivotTable{
		Subject: "Main Weapon",
		Metric:  "Win Rate",
		Columns: model.RuleOrder,
		Rows: []model.PivotRow{{
			Category: "wakaba",
			Values:   []null.Float64{null.Float64From(55), {}, {}, {}},
			Mean:     null.Float64From(55),
			Median:   null.Float64From(55),
		}},
	}
	var buf bytes.Buffer
	PrintPivotTable(&buf, p)
	out := buf.String()
	assert.Contains(t, out, "Win Rate by Main Weapon")
	assert.Contains(t, out, "55.00")
	assert.Contains(t, out, "-")
}

func TestPrintRunReports(t *testing.T) {
	var buf bytes.Buffer
	PrintRunReports(&buf, []*pipeline.Report{
		{Step: "users", Processed: 3, Added: 1},
		{Step: "battles", Lobby: "xmatch", Processed: 3, Added: 7, Failed: 1, Pages: 4},
	})
	out := buf.String()
	assert.Contains(t, out, "xmatch")
	assert.Contains(t, out, "users")
}
