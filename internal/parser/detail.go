package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aarondl/null/v8"

	"github.com/pable/go-ink-metrics/internal/model"
)

var (
	reElapsed       = regexp.MustCompile(`\((\d+) seconds\)`)
	reKillAssist    = regexp.MustCompile(`^(\d+)\s*\+\s*(\d+)$`)
	reMainWeapon    = regexp.MustCompile(`/main/([^/]+)\.png`)
	reSubWeapon     = regexp.MustCompile(`/sub/([^/]+)\.png`)
	reSpecialWeapon = regexp.MustCompile(`/special/([^/]+)\.png`)
)

// Header labels of the players table.
const (
	colSelf     = ""
	colWeapon   = "Weapon"
	colInked    = "Inked"
	colKill     = "k"
	colDeath    = "d"
	colSpecials = "Sp"
)

// ParseDetailPage extracts one BattleDetail from a single-battle page.
func ParseDetailPage(pageURL string, body []byte, loc *time.Location) (*model.BattleDetail, error) {
	doc, err := newDocument(pageURL, body)
	if err != nil {
		return nil, err
	}

	d := &model.BattleDetail{ID: pageURL}
	var ok bool
	if d.Username, ok = UsernameFromURL(pageURL); !ok {
		return nil, &ParseError{URL: pageURL, Field: "Username"}
	}

	battle := doc.Find("#battle")
	if battle.Length() == 0 {
		return nil, &ParseError{URL: pageURL, Field: "battle"}
	}
	if err := parseBattleInfo(pageURL, battle, loc, d); err != nil {
		return nil, err
	}

	players := doc.Find("#players")
	if players.Length() == 0 {
		return nil, &ParseError{URL: pageURL, Field: "players"}
	}
	if d.Alpha, err = parseTeam(pageURL, players, "Good Guys"); err != nil {
		return nil, err
	}
	if d.Bravo, err = parseTeam(pageURL, players, "Bad Guys"); err != nil {
		return nil, err
	}
	return d, nil
}

// infoCell returns the <td> next to the <th> labelled label.
func infoCell(battle *goquery.Selection, label string) (*goquery.Selection, bool) {
	th := byText(battle, "th", label).First()
	if th.Length() == 0 {
		return nil, false
	}
	td := th.Next()
	return td, td.Length() > 0
}

func parseBattleInfo(pageURL string, battle *goquery.Selection, loc *time.Location, d *model.BattleDetail) error {
	missing := func(field string) error { return &ParseError{URL: pageURL, Field: field} }

	td, ok := infoCell(battle, "Battle End")
	if !ok {
		return missing("Battle End")
	}
	raw, ok := td.Find("time").First().Attr("datetime")
	if !ok {
		return missing("Battle End")
	}
	dt, err := parseTimestamp(raw, loc)
	if err != nil {
		return &ParseError{URL: pageURL, Field: "Battle End", Err: err}
	}
	d.Datetime = dt

	if td, ok = infoCell(battle, "Mode"); !ok {
		return missing("Mode")
	}
	icons := td.Find("img")
	if d.Rule, ok = iconKey(icons.Eq(0), reIconKey); !ok {
		return missing("Rule")
	}
	if d.Lobby, ok = iconKey(icons.Eq(1), reIconKey); !ok {
		return missing("Lobby")
	}

	if td, ok = infoCell(battle, "Stage"); !ok {
		return missing("Stage")
	}
	href, _ := td.Find("a").First().Attr("href")
	m := reStage.FindStringSubmatch(href)
	if m == nil {
		return missing("Stage")
	}
	d.Stage = m[1]

	if td, ok = infoCell(battle, "Result"); !ok {
		return missing("Result")
	}
	var labels []string
	td.Find("span.label").Each(func(_ int, s *goquery.Selection) {
		labels = append(labels, s.Text())
	})
	d.Outcome = outcomeFromLabels(labels)

	if d.Lobby == model.LobbyXMatch {
		if td, ok = infoCell(battle, "X Power"); ok {
			if d.RankPower, err = parseRankPower(td); err != nil {
				return &ParseError{URL: pageURL, Field: "X Power", Err: err}
			}
		}
	}

	if td, ok = infoCell(battle, "Elapsed Time"); !ok {
		return missing("Elapsed Time")
	}
	m = reElapsed.FindStringSubmatch(td.Text())
	if m == nil {
		return missing("Elapsed Time")
	}
	d.ElapsedSeconds, _ = strconv.Atoi(m[1])

	if td, ok = infoCell(battle, "Game Version"); !ok {
		return missing("Game Version")
	}
	d.GameVersion = strings.TrimSpace(td.Text())

	if td, ok = infoCell(battle, "Stats"); !ok {
		return missing("Stats")
	}
	d.Stats = statsFromText(td.Text())
	return nil
}

// parseRankPower reads the X Power cell. A blank cell or a placeholder <span>
// means "not shown" and yields null, never zero.
func parseRankPower(td *goquery.Selection) (null.Float64, error) {
	first := td.Contents().First()
	if first.Length() == 0 || goquery.NodeName(first) == "span" {
		return null.Float64{}, nil
	}
	text := strings.ReplaceAll(strings.TrimSpace(first.Text()), ",", "")
	if text == "" {
		return null.Float64{}, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return null.Float64{}, err
	}
	return null.Float64From(v), nil
}

func outcomeFromLabels(labels []string) model.Outcome {
	has := func(word string) bool {
		for _, l := range labels {
			if strings.Contains(l, word) {
				return true
			}
		}
		return false
	}
	switch {
	case has("Victory"):
		return model.OutcomeAlpha
	case has("Defeat"):
		return model.OutcomeBravo
	case has("Draw"):
		return model.OutcomeDraw
	default:
		return model.OutcomeUnknown
	}
}

func statsFromText(text string) model.StatsVisibility {
	switch {
	case strings.Contains(text, "Used in global stats: Yes"):
		return model.StatsAllow
	case strings.Contains(text, "Used in global stats: No"):
		return model.StatsDeny
	case strings.Contains(text, "Defeat (Exempted)"):
		return model.StatsExempted
	case strings.Contains(text, "Disconnected"):
		return model.StatsDisconnected
	default:
		return model.StatsUnknown
	}
}

type columnIndex struct {
	self, weapon, inked, kill, death, specials int
}

func (c columnIndex) max() int {
	m := c.self
	for _, v := range []int{c.weapon, c.inked, c.kill, c.death, c.specials} {
		if v > m {
			m = v
		}
	}
	return m
}

func headerIndex(pageURL string, players *goquery.Selection) (columnIndex, error) {
	var headers []string
	players.Find("thead th").Each(func(_ int, s *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(s.Text()))
	})
	find := func(label string) (int, error) {
		for i, h := range headers {
			if h == label {
				return i, nil
			}
		}
		return 0, &ParseError{URL: pageURL, Field: fmt.Sprintf("players header %q", label)}
	}

	var idx columnIndex
	var err error
	if idx.self, err = find(colSelf); err != nil {
		return idx, err
	}
	if idx.weapon, err = find(colWeapon); err != nil {
		return idx, err
	}
	if idx.inked, err = find(colInked); err != nil {
		return idx, err
	}
	if idx.kill, err = find(colKill); err != nil {
		return idx, err
	}
	if idx.death, err = find(colDeath); err != nil {
		return idx, err
	}
	if idx.specials, err = find(colSpecials); err != nil {
		return idx, err
	}
	return idx, nil
}

// parseTeam reads the player rows following the team header row labelled
// teamLabel, stopping after TeamSize rows or at the first non-player row.
// The self player is moved to the front; the others keep page order.
func parseTeam(pageURL string, players *goquery.Selection, teamLabel string) ([]model.PlayerResult, error) {
	idx, err := headerIndex(pageURL, players)
	if err != nil {
		return nil, err
	}
	header := byText(players, "th", teamLabel).First()
	if header.Length() == 0 {
		return nil, &ParseError{URL: pageURL, Field: teamLabel}
	}

	var team []model.PlayerResult
	row := header.Parent()
	for len(team) < model.TeamSize {
		row = row.Next()
		cells := row.ChildrenFiltered("td")
		if row.Length() == 0 || cells.Length() == 0 {
			break
		}
		if cells.Length() <= idx.max() {
			return nil, &ParseError{URL: pageURL, Field: fmt.Sprintf("%s player %d", teamLabel, len(team)+1)}
		}
		p, err := parsePlayer(cells, idx)
		if err != nil {
			return nil, &ParseError{URL: pageURL, Field: fmt.Sprintf("%s player %d", teamLabel, len(team)+1), Err: err}
		}
		team = append(team, p)
	}
	if len(team) == 0 {
		return nil, &ParseError{URL: pageURL, Field: teamLabel + " players"}
	}

	sort.SliceStable(team, func(i, j int) bool {
		return team[i].Self && !team[j].Self
	})
	return team, nil
}

func parsePlayer(cells *goquery.Selection, idx columnIndex) (model.PlayerResult, error) {
	var p model.PlayerResult
	p.Self = cells.Eq(idx.self).Find("span").Length() > 0

	icons := cells.Eq(idx.weapon).Find("img")
	var ok bool
	if p.MainWeapon, ok = weaponKey(icons, reMainWeapon); !ok {
		return p, fmt.Errorf("main weapon icon")
	}
	if p.SubWeapon, ok = weaponKey(icons, reSubWeapon); !ok {
		return p, fmt.Errorf("sub weapon icon")
	}
	if p.SpecialWeapon, ok = weaponKey(icons, reSpecialWeapon); !ok {
		return p, fmt.Errorf("special weapon icon")
	}

	var err error
	if p.Inked, err = parseCount(cells.Eq(idx.inked).Text()); err != nil {
		return p, fmt.Errorf("inked: %w", err)
	}
	if p.Kill, p.Assist, err = parseKillAssist(cells.Eq(idx.kill).Text()); err != nil {
		return p, fmt.Errorf("kill & assist: %w", err)
	}
	p.KillAndAssist = p.Kill + p.Assist
	if p.Death, err = parseCount(cells.Eq(idx.death).Text()); err != nil {
		return p, fmt.Errorf("death: %w", err)
	}
	if p.Specials, err = parseCount(cells.Eq(idx.specials).Text()); err != nil {
		return p, fmt.Errorf("specials: %w", err)
	}
	return p, nil
}

// weaponKey finds the first icon whose src matches re.
func weaponKey(icons *goquery.Selection, re *regexp.Regexp) (string, bool) {
	var key string
	icons.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if k, ok := iconKey(img, re); ok {
			key = k
			return false
		}
		return true
	})
	return key, key != ""
}

// parseKillAssist reads "k + a". Blank is 0 + 0.
func parseKillAssist(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	m := reKillAssist.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("unexpected %q", s)
	}
	kill, _ := strconv.Atoi(m[1])
	assist, _ := strconv.Atoi(m[2])
	return kill, assist, nil
}
