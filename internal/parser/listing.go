package parser

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pable/go-ink-metrics/internal/model"
)

// ListPage is one page of a user's battle listing.
type ListPage struct {
	Summaries []model.BattleSummary
	NextURL   string // empty on the last page
}

// ParseListPage extracts every battle row and the "next page" link.
// A row missing any expected field fails the whole page: silently dropping a
// row would let the crawler mistake it for an unseen battle later.
func ParseListPage(pageURL string, body []byte, loc *time.Location) (*ListPage, error) {
	doc, err := newDocument(pageURL, body)
	if err != nil {
		return nil, err
	}

	page := &ListPage{}
	var rowErr error
	doc.Find("tr.battle-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		s, err := parseBattleRow(pageURL, row, loc)
		if err != nil {
			rowErr = err
			return false
		}
		page.Summaries = append(page.Summaries, s)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	if href, ok := doc.Find("ul.pagination > li.next > a").First().Attr("href"); ok && href != "" {
		next, err := resolve(pageURL, href)
		if err != nil {
			return nil, &ParseError{URL: pageURL, Field: "next", Err: err}
		}
		page.NextURL = next
	}
	return page, nil
}

func parseBattleRow(pageURL string, row *goquery.Selection, loc *time.Location) (model.BattleSummary, error) {
	var s model.BattleSummary

	raw, ok := row.Find(".cell-datetime time").First().Attr("datetime")
	if !ok {
		return s, &ParseError{URL: pageURL, Field: "Datetime"}
	}
	dt, err := parseTimestamp(raw, loc)
	if err != nil {
		return s, &ParseError{URL: pageURL, Field: "Datetime", Err: err}
	}
	s.Datetime = dt

	href, ok := byText(row, "a", "Detail").First().Attr("href")
	if !ok {
		return s, &ParseError{URL: pageURL, Field: "Url"}
	}
	if s.ID, err = resolve(pageURL, href); err != nil {
		return s, &ParseError{URL: pageURL, Field: "Url", Err: err}
	}

	if s.Username, ok = UsernameFromURL(s.ID); !ok {
		return s, &ParseError{URL: pageURL, Field: "Username"}
	}

	if s.Rule, ok = iconKey(row.Find(".cell-rule-icon img").First(), reIconKey); !ok {
		return s, &ParseError{URL: pageURL, Field: "Rule"}
	}

	s.Disconnected = row.HasClass("disconnected")
	return s, nil
}
