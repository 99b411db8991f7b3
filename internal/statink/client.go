// Package statink reads stat.ink's JSON endpoints: the weapon, rule and stage
// reference lists and the feed of latest battles used to discover users.
package statink

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/text/language"

	"github.com/pable/go-ink-metrics/internal/fetcher"
	"github.com/pable/go-ink-metrics/internal/model"
)

// Locales stat.ink translates names into, keyed the way its JSON is.
var supportedLocales = []struct {
	tag language.Tag
	key string
}{
	{language.Japanese, "ja_JP"},
	{language.AmericanEnglish, "en_US"},
	{language.BritishEnglish, "en_GB"},
	{language.EuropeanSpanish, "es_ES"},
	{language.LatinAmericanSpanish, "es_MX"},
	{language.French, "fr_FR"},
	{language.CanadianFrench, "fr_CA"},
	{language.German, "de_DE"},
	{language.Italian, "it_IT"},
	{language.Dutch, "nl_NL"},
	{language.Russian, "ru_RU"},
	{language.SimplifiedChinese, "zh_CN"},
	{language.TraditionalChinese, "zh_TW"},
	{language.Korean, "ko_KR"},
}

var localeMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(supportedLocales))
	for i, l := range supportedLocales {
		tags[i] = l.tag
	}
	return language.NewMatcher(tags)
}()

// LocaleKey maps a BCP 47 tag such as "ja-JP" or "en" to the closest
// stat.ink name key ("ja_JP", "en_US").
func LocaleKey(locale string) (string, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("locale %q: %w", locale, err)
	}
	_, i, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return "", fmt.Errorf("locale %q: not translated by stat.ink", locale)
	}
	return supportedLocales[i].key, nil
}

// Names is a localized name map as served by the API.
type Names map[string]string

// Pick returns the name for key, falling back to English and then to fallback.
func (n Names) Pick(key, fallback string) string {
	if v := n[key]; v != "" {
		return v
	}
	if v := n["en_US"]; v != "" {
		return v
	}
	return fallback
}

type keyed struct {
	Key  string `json:"key"`
	Name Names  `json:"name"`
}

type weaponJSON struct {
	Key     string `json:"key"`
	Name    Names  `json:"name"`
	Type    keyed  `json:"type"`
	Sub     keyed  `json:"sub"`
	Special keyed  `json:"special"`
}

type ruleJSON struct {
	Key       string `json:"key"`
	Name      Names  `json:"name"`
	ShortName Names  `json:"short_name"`
}

type latestBattlesJSON struct {
	Battles []struct {
		User struct {
			URL string `json:"url"`
		} `json:"user"`
	} `json:"battles"`
}

// Client talks to one stat.ink instance through a rate-limited Getter.
type Client struct {
	get     fetcher.Getter
	baseURL string
	locale  string
}

// New returns a Client resolving names in locale (BCP 47).
func New(get fetcher.Getter, baseURL, locale string) (*Client, error) {
	key, err := LocaleKey(locale)
	if err != nil {
		return nil, err
	}
	return &Client{get: get, baseURL: strings.TrimRight(baseURL, "/"), locale: key}, nil
}

// Locale returns the resolved stat.ink locale key.
func (c *Client) Locale() string { return c.locale }

// BaseURL returns the site root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// BattleListURL is the first listing page of user's battles in lobby.
func (c *Client) BattleListURL(user, lobby string) string {
	return fmt.Sprintf("%s/@%s/spl3?f%%5Blobby%%5D=%s", c.baseURL, user, lobby)
}

func getJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var result T
	url := c.baseURL + path
	body, err := c.get.Get(ctx, url)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("decode %s: %w", url, err)
	}
	return result, nil
}

// Weapons fetches the main weapon catalog with each weapon's kit.
func (c *Client) Weapons(ctx context.Context) ([]model.Weapon, error) {
	raw, err := getJSON[[]weaponJSON](ctx, c, "/api/v3/weapon")
	if err != nil {
		return nil, err
	}
	out := make([]model.Weapon, 0, len(raw))
	for _, w := range raw {
		out = append(out, model.Weapon{
			Key:         w.Key,
			Name:        w.Name.Pick(c.locale, w.Key),
			Type:        w.Type.Key,
			TypeName:    w.Type.Name.Pick(c.locale, w.Type.Key),
			Sub:         w.Sub.Key,
			SubName:     w.Sub.Name.Pick(c.locale, w.Sub.Key),
			Special:     w.Special.Key,
			SpecialName: w.Special.Name.Pick(c.locale, w.Special.Key),
		})
	}
	return out, nil
}

// Rules fetches the rule catalog using the short names.
func (c *Client) Rules(ctx context.Context) ([]model.CatalogEntry, error) {
	raw, err := getJSON[[]ruleJSON](ctx, c, "/api/v3/rule")
	if err != nil {
		return nil, err
	}
	out := make([]model.CatalogEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.CatalogEntry{Key: r.Key, Name: r.ShortName.Pick(c.locale, r.Name.Pick(c.locale, r.Key))})
	}
	return out, nil
}

// Stages fetches the stage catalog.
func (c *Client) Stages(ctx context.Context) ([]model.CatalogEntry, error) {
	raw, err := getJSON[[]keyed](ctx, c, "/api/v3/stage")
	if err != nil {
		return nil, err
	}
	out := make([]model.CatalogEntry, 0, len(raw))
	for _, s := range raw {
		out = append(out, model.CatalogEntry{Key: s.Key, Name: s.Name.Pick(c.locale, s.Key)})
	}
	return out, nil
}

var reUserURL = regexp.MustCompile(`/@([^/?#]+)`)

// LatestUsers returns the distinct uploaders of the latest battles, sorted.
func (c *Client) LatestUsers(ctx context.Context) ([]string, error) {
	raw, err := getJSON[latestBattlesJSON](ctx, c, "/api/internal/latest-battles")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var users []string
	for _, b := range raw.Battles {
		m := reUserURL.FindStringSubmatch(b.User.URL)
		if m == nil {
			continue
		}
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		users = append(users, m[1])
	}
	sort.Strings(users)
	return users, nil
}

// SplitKit derives the sub, special and type catalogs from the weapon list.
func SplitKit(weapons []model.Weapon) (subs, specials, types []model.CatalogEntry) {
	for _, w := range weapons {
		subs = append(subs, model.CatalogEntry{Key: w.Sub, Name: w.SubName})
		specials = append(specials, model.CatalogEntry{Key: w.Special, Name: w.SpecialName})
		types = append(types, model.CatalogEntry{Key: w.Type, Name: w.TypeName})
	}
	return subs, specials, types
}
