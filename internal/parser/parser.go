// Package parser turns stat.ink HTML pages into typed records.
//
// Each function takes the page URL and its raw body so callers (and tests) can
// feed synthetic documents without a network.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ParseError reports an expected element or value that was missing or malformed.
type ParseError struct {
	URL   string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: field %q: %v", e.URL, e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s: field %q missing", e.URL, e.Field)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	reUsername = regexp.MustCompile(`/@([^/]+)/spl3`)
	reIconKey  = regexp.MustCompile(`/spl3/([^/]+)\.png`)
	reStage    = regexp.MustCompile(`map%5D=(.+)$`)
)

func newDocument(pageURL string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Field: "document", Err: err}
	}
	return doc, nil
}

// UsernameFromURL extracts the user from a ".../@name/spl3..." URL.
func UsernameFromURL(u string) (string, bool) {
	m := reUsername.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	name, err := url.PathUnescape(m[1])
	if err != nil {
		return m[1], true
	}
	return name, true
}

// resolve turns a site-relative href into an absolute URL based on pageURL.
func resolve(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			if loc != nil {
				t = t.In(loc)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// iconKey returns the key encoded in an icon URL such as ".../spl3/area.png".
func iconKey(sel *goquery.Selection, re *regexp.Regexp) (string, bool) {
	src, ok := sel.Attr("src")
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(src)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// byText returns elements matching selector whose trimmed text equals text.
func byText(root *goquery.Selection, selector, text string) *goquery.Selection {
	return root.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == text
	})
}

// parseCount parses a counter cell. Blank means zero, following the site's convention.
func parseCount(s string) (int, error) {
	s = strings.Map(func(r rune) rune {
		if r == ',' || r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
