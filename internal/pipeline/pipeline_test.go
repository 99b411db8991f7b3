package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-ink-metrics/internal/config"
	"github.com/pable/go-ink-metrics/internal/fetcher"
	"github.com/pable/go-ink-metrics/internal/parser"
	"github.com/pable/go-ink-metrics/internal/storage"
)

// fakeSite serves canned bodies by URL; unknown URLs return a 404 StatusError.
type fakeSite struct {
	bodies  map[string]string
	fetched []string
}

func (s *fakeSite) Get(_ context.Context, url string) ([]byte, error) {
	s.fetched = append(s.fetched, url)
	body, ok := s.bodies[url]
	if !ok {
		return nil, &fetcher.StatusError{URL: url, Code: 404}
	}
	return []byte(body), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.SourceDir = filepath.Join(dir, "sources")
	cfg.CheckpointEvery = 1
	return cfg
}

func newTestUpdater(t *testing.T, cfg *config.Config, site *fakeSite) *Updater {
	t.Helper()
	u, err := NewUpdater(cfg, site, zerolog.Nop())
	require.NoError(t, err)
	return u
}

func listURL(user string, page int) string {
	u := fmt.Sprintf("https://stat.ink/@%s/spl3?f%%5Blobby%%5D=xmatch", user)
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

func battleURL(user, id string) string { return fmt.Sprintf("https://stat.ink/@%s/spl3/%s", user, id) }

// listing renders a listing page; ids are "id@hour" pairs, newest first.
func listing(user, next string, ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for _, entry := range ids {
		id, hour, _ := strings.Cut(entry, "@")
		fmt.Fprintf(&b, `<tr class="battle-row"><td class="cell-rule-icon"><img src="/a/spl3/area.png"></td>`+
			`<td class="cell-datetime"><time datetime="2024-03-01T%s:00:00+00:00"></time></td>`+
			`<td><a href="/@%s/spl3/%s">Detail</a></td></tr>`, hour, user, id)
	}
	b.WriteString("</table>")
	if next != "" {
		fmt.Fprintf(&b, `<ul class="pagination"><li class="next"><a href="%s">next</a></li></ul>`, strings.TrimPrefix(next, "https://stat.ink"))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailPage(hour string, withResult bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><table id="battle">`)
	fmt.Fprintf(&b, `<tr><th>Battle End</th><td><time datetime="2024-03-01T%s:00:00+00:00"></time></td></tr>`, hour)
	b.WriteString(`<tr><th>Mode</th><td><img src="/a/spl3/area.png"><img src="/a/spl3/xmatch.png"></td></tr>`)
	b.WriteString(`<tr><th>Stage</th><td><a href="/x?f%5Bmap%5D=yunohana">s</a></td></tr>`)
	if withResult {
		b.WriteString(`<tr><th>Result</th><td><span class="label">Victory</span></td></tr>`)
	}
	b.WriteString(`<tr><th>X Power</th><td>2000.5</td></tr>`)
	b.WriteString(`<tr><th>Elapsed Time</th><td>5:00 (300 seconds)</td></tr>`)
	b.WriteString(`<tr><th>Game Version</th><td>6.0.0</td></tr>`)
	b.WriteString(`<tr><th>Stats</th><td>Used in global stats: Yes</td></tr></table>`)
	b.WriteString(`<table id="players"><thead><tr><th></th><th>Weapon</th><th>Inked</th><th>k</th><th>d</th><th>Sp</th></tr></thead><tbody>`)
	for _, team := range []string{"Good Guys", "Bad Guys"} {
		fmt.Fprintf(&b, `<tr><th colspan="6">%s</th></tr>`, team)
		for i := 0; i < 4; i++ {
			self := ""
			if team == "Good Guys" && i == 0 {
				self = "<span></span>"
			}
			fmt.Fprintf(&b, `<tr><td>%s</td><td><img src="/a/main/sshooter.png"><img src="/a/sub/quickbomb.png"><img src="/a/special/ultrashot.png"></td>`+
				`<td>1,000</td><td>4 + 1</td><td>2</td><td>1</td></tr>`, self)
		}
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}

func writeUsers(t *testing.T, cfg *config.Config, users ...string) {
	t.Helper()
	require.NoError(t, storage.Save(cfg.UsersPath(), storage.UsersToTable(users)))
}

func TestUpdateUsersMergesLatest(t *testing.T) {
	cfg := testConfig(t)
	writeUsers(t, cfg, "alice")
	site := &fakeSite{bodies: map[string]string{
		"https://stat.ink/api/internal/latest-battles": `{"battles":[{"user":{"url":"https://stat.ink/@bob"}},{"user":{"url":"https://stat.ink/@alice"}}]}`,
	}}

	rep, err := newTestUpdater(t, cfg, site).UpdateUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)

	tbl, err := storage.Load(cfg.UsersPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, storage.TableToUsers(tbl))
}

func TestUpdateBattleListIncremental(t *testing.T) {
	cfg := testConfig(t)
	writeUsers(t, cfg, "alice")
	site := &fakeSite{bodies: map[string]string{
		listURL("alice", 1): listing("alice", listURL("alice", 2), "b3@12", "b2@11"),
		listURL("alice", 2): listing("alice", "", "b1@10"),
	}}
	u := newTestUpdater(t, cfg, site)

	rep, err := u.UpdateBattleList(context.Background(), "xmatch")
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Added)
	assert.Equal(t, 2, rep.Pages)

	// A new battle appears; the next run stops at the first known one.
	site.bodies[listURL("alice", 1)] = listing("alice", listURL("alice", 2), "b4@13", "b3@12")
	site.bodies[listURL("alice", 2)] = listing("alice", listURL("alice", 3), "b2@11", "b1@10")
	site.fetched = nil

	rep, err = u.UpdateBattleList(context.Background(), "xmatch")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)
	assert.Equal(t, []string{listURL("alice", 1)}, site.fetched)

	tbl, err := storage.Load(cfg.BattleListPath("xmatch"))
	require.NoError(t, err)
	assert.Equal(t, []string{battleURL("alice", "b4"), battleURL("alice", "b3"), battleURL("alice", "b2"), battleURL("alice", "b1")},
		tbl.Column(storage.ColURL))
}

func TestUpdateBattleListSkipsFailingUser(t *testing.T) {
	cfg := testConfig(t)
	writeUsers(t, cfg, "alice", "bob", "carol")
	site := &fakeSite{bodies: map[string]string{
		listURL("alice", 1): listing("alice", "", "a1@10"),
		// bob's first page parses, his second is broken: nothing of bob is kept.
		listURL("bob", 1):   listing("bob", listURL("bob", 2), "x2@11"),
		listURL("bob", 2):   `<html><table><tr class="battle-row"><td>no fields</td></tr></table></html>`,
		listURL("carol", 1): listing("carol", "", "c1@9"),
	}}

	rep, err := newTestUpdater(t, cfg, site).UpdateBattleList(context.Background(), "xmatch")
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, 1, runErr.Failures)
	var pe *parser.ParseError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, 1, rep.Failed)

	tbl, err := storage.Load(cfg.BattleListPath("xmatch"))
	require.NoError(t, err)
	assert.Equal(t, []string{battleURL("alice", "a1"), battleURL("carol", "c1")}, tbl.Column(storage.ColURL))
}

func TestUpdateBattleDetailsCheckpointsAndReportsFailures(t *testing.T) {
	cfg := testConfig(t)
	writeUsers(t, cfg, "alice")
	site := &fakeSite{bodies: map[string]string{
		listURL("alice", 1):      listing("alice", "", "b3@12", "b2@11", "b1@10"),
		battleURL("alice", "b3"): detailPage("12", true),
		battleURL("alice", "b2"): detailPage("11", false),
		battleURL("alice", "b1"): detailPage("10", true),
	}}
	u := newTestUpdater(t, cfg, site)
	_, err := u.UpdateBattleList(context.Background(), "xmatch")
	require.NoError(t, err)

	rep, err := u.UpdateBattleDetails(context.Background(), "xmatch")
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, 1, runErr.Failures)
	var pe *parser.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Result", pe.Field)
	assert.Equal(t, 2, rep.Added)

	tbl, err := storage.Load(cfg.DetailsPath("xmatch"))
	require.NoError(t, err)
	assert.Equal(t, []string{battleURL("alice", "b3"), battleURL("alice", "b1")}, tbl.Column(storage.ColURL))
	assert.Equal(t, "2000.5", tbl.Get(tbl.Rows[0], storage.ColRankPower))
	assert.Equal(t, "4", tbl.Get(tbl.Rows[0], storage.SlotColumn("B4", storage.FieldKill)))

	// Only the failed battle is retried.
	site.fetched = nil
	site.bodies[battleURL("alice", "b2")] = detailPage("11", true)
	rep, err = u.UpdateBattleDetails(context.Background(), "xmatch")
	require.NoError(t, err)
	assert.Equal(t, []string{battleURL("alice", "b2")}, site.fetched)
	assert.Equal(t, 1, rep.Added)

	tbl, err = storage.Load(cfg.DetailsPath("xmatch"))
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, battleURL("alice", "b2"), tbl.Get(tbl.Rows[1], storage.ColURL))
}

func TestUpdateBattleDetailsNetworkFailure(t *testing.T) {
	cfg := testConfig(t)
	writeUsers(t, cfg, "alice")
	site := &fakeSite{bodies: map[string]string{
		listURL("alice", 1): listing("alice", "", "b1@10"),
	}}
	u := newTestUpdater(t, cfg, site)
	_, err := u.UpdateBattleList(context.Background(), "xmatch")
	require.NoError(t, err)

	_, err = u.UpdateBattleDetails(context.Background(), "xmatch")
	var se *fetcher.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.Code)
}

func TestUpdateCatalog(t *testing.T) {
	cfg := testConfig(t)
	site := &fakeSite{bodies: map[string]string{
		"https://stat.ink/api/v3/weapon": `[{"key":"sshooter","name":{"ja_JP":"スプラシューター"},
			"type":{"key":"shooter","name":{"ja_JP":"シューター"}},
			"sub":{"key":"quickbomb","name":{"ja_JP":"クイックボム"}},
			"special":{"key":"ultrashot","name":{"ja_JP":"ウルトラショット"}}}]`,
		"https://stat.ink/api/v3/rule":  `[{"key":"area","name":{"ja_JP":"ガチエリア"},"short_name":{"ja_JP":"エリア"}}]`,
		"https://stat.ink/api/v3/stage": `[{"key":"yunohana","name":{"ja_JP":"ユノハナ大渓谷"}}]`,
	}}

	rep, err := newTestUpdater(t, cfg, site).UpdateCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Processed)

	main, err := storage.Load(cfg.CatalogPath("main"))
	require.NoError(t, err)
	assert.Equal(t, storage.WeaponHeader, main.Header)
	assert.Equal(t, "shooter", main.Get(main.Rows[0], "Type"))

	for name, key := range map[string]string{"sub": "quickbomb", "special": "ultrashot", "type": "shooter", "rule": "area", "stage": "yunohana"} {
		tbl, err := storage.Load(cfg.CatalogPath(name))
		require.NoError(t, err, name)
		assert.Equal(t, []string{key}, tbl.Column(storage.ColKey), name)
	}
}

func TestRunAllContinuesAfterStepFailure(t *testing.T) {
	cfg := testConfig(t)
	writeUsers(t, cfg, "alice")
	// No catalog endpoints: that step fails, the scraping steps still run.
	site := &fakeSite{bodies: map[string]string{
		"https://stat.ink/api/internal/latest-battles": `{"battles":[]}`,
		listURL("alice", 1):      listing("alice", "", "b1@10"),
		battleURL("alice", "b1"): detailPage("10", true),
	}}

	reports, err := newTestUpdater(t, cfg, site).RunAll(context.Background())
	require.Error(t, err)
	assert.Len(t, reports, 2+2*3)

	tbl, err := storage.Load(cfg.DetailsPath("xmatch"))
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
}

func TestRunAllStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	site := &fakeSite{bodies: map[string]string{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestUpdater(t, cfg, site).RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
