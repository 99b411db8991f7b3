// Package crawler walks a user's paginated battle listing and returns only the
// battles not already stored.
package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pable/go-ink-metrics/internal/fetcher"
	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/parser"
)

// IDSet is the set of battle IDs already stored for a user.
type IDSet map[string]struct{}

// NewIDSet builds a set from stored summaries.
func NewIDSet(summaries []model.BattleSummary) IDSet {
	s := make(IDSet, len(summaries))
	for _, b := range summaries {
		s[b.ID] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id string) { s[id] = struct{}{} }

// Detect reports whether any candidate is already known and returns the
// candidates that are not, in their original order. Equality is by ID only.
func Detect(known IDSet, candidates []model.BattleSummary) (bool, []model.BattleSummary) {
	if len(known) == 0 || len(candidates) == 0 {
		return false, candidates
	}
	overlap := false
	unseen := make([]model.BattleSummary, 0, len(candidates))
	for _, c := range candidates {
		if known.Has(c.ID) {
			overlap = true
			continue
		}
		unseen = append(unseen, c)
	}
	return overlap, unseen
}

// ListParser parses one listing page.
type ListParser func(pageURL string, body []byte) (*parser.ListPage, error)

// NewListParser binds parser.ParseListPage to a timezone.
func NewListParser(loc *time.Location) ListParser {
	return func(pageURL string, body []byte) (*parser.ListPage, error) {
		return parser.ParseListPage(pageURL, body, loc)
	}
}

// StopReason says why a crawl ended.
type StopReason string

const (
	StopOverlap  StopReason = "overlap"
	StopLastPage StopReason = "last page"
	StopEmpty    StopReason = "empty page"
	StopCycle    StopReason = "next link already visited"
)

// Result is the outcome of one crawl.
type Result struct {
	New          []model.BattleSummary // newest first, as listed
	PagesFetched int
	Stopped      StopReason
}

// Crawler fetches listing pages until it reaches battles it already knows.
type Crawler struct {
	fetch     fetcher.Getter
	parse     ListParser
	logger    zerolog.Logger
	fullCrawl bool
}

// New returns a Crawler. With fullCrawl set, pages are followed to the end
// even after an overlap; known IDs are still filtered out.
func New(fetch fetcher.Getter, parse ListParser, logger zerolog.Logger, fullCrawl bool) *Crawler {
	return &Crawler{fetch: fetch, parse: parse, logger: logger, fullCrawl: fullCrawl}
}

// Crawl starts at startURL and returns every unseen summary up to the first
// page that overlaps known. An empty known set walks every page.
//
// Any fetch or parse error aborts the crawl and discards the partial result:
// storing only the newer pages would make the next run stop before the
// older ones.
func (c *Crawler) Crawl(ctx context.Context, startURL string, known IDSet) (*Result, error) {
	res := &Result{}
	// A row repeated across pages (the listing shifts when a battle is
	// uploaded mid-crawl) is kept once and does not count as overlap.
	seen := make(IDSet)
	visited := make(IDSet)

	pageURL := startURL
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited.Add(pageURL)

		body, err := c.fetch.Get(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
		}
		res.PagesFetched++

		page, err := c.parse(pageURL, body)
		if err != nil {
			return nil, err
		}
		if len(page.Summaries) == 0 {
			res.Stopped = StopEmpty
			break
		}

		overlap, unseen := Detect(known, page.Summaries)
		added := 0
		for _, s := range unseen {
			if seen.Has(s.ID) {
				continue
			}
			seen.Add(s.ID)
			res.New = append(res.New, s)
			added++
		}
		c.logger.Info().
			Str("url", pageURL).
			Int("rows", len(page.Summaries)).
			Int("new", added).
			Bool("overlap", overlap).
			Msg("listing page")

		switch {
		case overlap && !c.fullCrawl:
			res.Stopped = StopOverlap
		case page.NextURL == "":
			res.Stopped = StopLastPage
		case visited.Has(page.NextURL):
			res.Stopped = StopCycle
		}
		if res.Stopped != "" {
			break
		}
		pageURL = page.NextURL
	}
	return res, nil
}
