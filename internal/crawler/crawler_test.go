package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/parser"
)

// site serves canned listing pages keyed by URL and records every fetch.
type site struct {
	pages   map[string]*parser.ListPage
	fail    map[string]error
	fetched []string
}

func (s *site) Get(_ context.Context, url string) ([]byte, error) {
	s.fetched = append(s.fetched, url)
	if err := s.fail[url]; err != nil {
		return nil, err
	}
	return []byte(url), nil
}

func (s *site) parse(pageURL string, body []byte) (*parser.ListPage, error) {
	p, ok := s.pages[string(body)]
	if !ok {
		return nil, &parser.ParseError{URL: pageURL, Field: "Datetime"}
	}
	return p, nil
}

func battle(id string) model.BattleSummary {
	return model.BattleSummary{
		ID:       "https://stat.ink/@alice/spl3/" + id,
		Username: "alice",
		Rule:     "area",
		Datetime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func ids(summaries []model.BattleSummary) []string {
	out := make([]string, len(summaries))
	for i, s := range summaries {
		out[i] = s.ID[len("https://stat.ink/@alice/spl3/"):]
	}
	return out
}

func pageURL(n int) string { return fmt.Sprintf("https://stat.ink/@alice/spl3?page=%d", n) }

// newSite builds a listing where page i holds rows[i] and links to page i+1.
func newSite(rows ...[]string) *site {
	s := &site{pages: map[string]*parser.ListPage{}, fail: map[string]error{}}
	for i, r := range rows {
		p := &parser.ListPage{}
		for _, id := range r {
			p.Summaries = append(p.Summaries, battle(id))
		}
		if i+1 < len(rows) {
			p.NextURL = pageURL(i + 2)
		}
		s.pages[pageURL(i+1)] = p
	}
	return s
}

func newCrawler(s *site, full bool) *Crawler {
	return New(s, s.parse, zerolog.Nop(), full)
}

func TestDetect(t *testing.T) {
	known := NewIDSet([]model.BattleSummary{battle("b2"), battle("b1")})

	overlap, unseen := Detect(known, []model.BattleSummary{battle("b3"), battle("b2")})
	assert.True(t, overlap)
	assert.Equal(t, []string{"b3"}, ids(unseen))

	overlap, unseen = Detect(known, []model.BattleSummary{battle("b5"), battle("b4")})
	assert.False(t, overlap)
	assert.Equal(t, []string{"b5", "b4"}, ids(unseen))
}

func TestDetectEmptyInputs(t *testing.T) {
	candidates := []model.BattleSummary{battle("b1")}
	overlap, unseen := Detect(IDSet{}, candidates)
	assert.False(t, overlap)
	assert.Equal(t, candidates, unseen)

	overlap, unseen = Detect(NewIDSet(candidates), nil)
	assert.False(t, overlap)
	assert.Empty(t, unseen)
}

func TestDetectMatchesOnIDOnly(t *testing.T) {
	stored := battle("b1")
	known := NewIDSet([]model.BattleSummary{stored})

	changed := stored
	changed.Rule = "asari"
	changed.Datetime = stored.Datetime.Add(time.Hour)
	overlap, unseen := Detect(known, []model.BattleSummary{changed})
	assert.True(t, overlap)
	assert.Empty(t, unseen)
}

func TestCrawlStopsAtFirstOverlap(t *testing.T) {
	// alice has B2 and B1 stored; the listing now shows B3, B2 then B1.
	s := newSite([]string{"b3", "b2"}, []string{"b1"})
	known := NewIDSet([]model.BattleSummary{battle("b2"), battle("b1")})

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), known)
	require.NoError(t, err)
	assert.Equal(t, []string{"b3"}, ids(res.New))
	assert.Equal(t, 1, res.PagesFetched)
	assert.Equal(t, StopOverlap, res.Stopped)
	assert.Equal(t, []string{pageURL(1)}, s.fetched)
}

func TestCrawlFetchesOnlyNecessaryPages(t *testing.T) {
	// Overlap first appears on page 3 of 5.
	s := newSite(
		[]string{"b10", "b9"},
		[]string{"b8", "b7"},
		[]string{"b6", "b5"},
		[]string{"b4", "b3"},
		[]string{"b2", "b1"},
	)
	known := NewIDSet([]model.BattleSummary{battle("b5"), battle("b4"), battle("b3")})

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), known)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PagesFetched)
	assert.Equal(t, []string{"b10", "b9", "b8", "b7", "b6"}, ids(res.New))
}

func TestCrawlColdStartWalksEveryPage(t *testing.T) {
	s := newSite([]string{"b6", "b5"}, []string{"b4", "b3"}, []string{"b2", "b1"})

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), IDSet{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.PagesFetched)
	assert.Equal(t, StopLastPage, res.Stopped)
	assert.Equal(t, []string{"b6", "b5", "b4", "b3", "b2", "b1"}, ids(res.New))
}

func TestCrawlStopsOnEmptyPage(t *testing.T) {
	s := newSite([]string{"b2", "b1"}, nil, []string{"b0"})

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), IDSet{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.PagesFetched)
	assert.Equal(t, StopEmpty, res.Stopped)
	assert.Equal(t, []string{"b2", "b1"}, ids(res.New))
}

func TestCrawlStopsOnNextLinkCycle(t *testing.T) {
	s := newSite([]string{"b2"}, []string{"b1"})
	s.pages[pageURL(2)].NextURL = pageURL(1)

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), IDSet{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.PagesFetched)
	assert.Equal(t, StopCycle, res.Stopped)
}

func TestCrawlKeepsRowRepeatedAcrossPagesOnce(t *testing.T) {
	// A battle uploaded mid-crawl pushes b3 from page 1 onto page 2.
	s := newSite([]string{"b4", "b3"}, []string{"b3", "b2"}, []string{"b1"})

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), IDSet{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.PagesFetched)
	assert.Equal(t, []string{"b4", "b3", "b2", "b1"}, ids(res.New))
}

func TestCrawlMissesOlderUnseenAfterReorder(t *testing.T) {
	// b0 is older than the stored b1 but was uploaded later and listed
	// after it. Early termination stops at the overlap and never sees b0.
	s := newSite([]string{"b3", "b1"}, []string{"b0"})
	known := NewIDSet([]model.BattleSummary{battle("b1")})

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), known)
	require.NoError(t, err)
	assert.Equal(t, []string{"b3"}, ids(res.New))

	// A full crawl still finds it.
	s.fetched = nil
	res, err = newCrawler(s, true).Crawl(context.Background(), pageURL(1), known)
	require.NoError(t, err)
	assert.Equal(t, []string{"b3", "b0"}, ids(res.New))
	assert.Equal(t, 2, res.PagesFetched)
}

func TestCrawlParseErrorDiscardsPartialResult(t *testing.T) {
	s := newSite([]string{"b3"}, []string{"b2"})
	s.pages[pageURL(1)].NextURL = pageURL(9) // no fixture: parse fails

	res, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), IDSet{})
	assert.Nil(t, res)
	var pe *parser.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pageURL(9), pe.URL)
}

func TestCrawlFetchError(t *testing.T) {
	s := newSite([]string{"b3"}, []string{"b2"})
	boom := errors.New("connection reset")
	s.fail[pageURL(2)] = boom

	_, err := newCrawler(s, false).Crawl(context.Background(), pageURL(1), IDSet{})
	assert.ErrorIs(t, err, boom)
}

func TestCrawlHonoursCancellation(t *testing.T) {
	s := newSite([]string{"b1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCrawler(s, false).Crawl(ctx, pageURL(1), IDSet{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.fetched)
}
