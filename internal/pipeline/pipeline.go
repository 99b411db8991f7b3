// Package pipeline runs the scraping steps end to end: discover users, crawl
// their battle lists, fetch battle details and refresh the reference catalogs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pable/go-ink-metrics/internal/config"
	"github.com/pable/go-ink-metrics/internal/crawler"
	"github.com/pable/go-ink-metrics/internal/fetcher"
	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/parser"
	"github.com/pable/go-ink-metrics/internal/statink"
	"github.com/pable/go-ink-metrics/internal/storage"
)

// RunError collects the per-user or per-battle failures of one step.
// The step still persisted everything that succeeded.
type RunError struct {
	Step     string
	Failures int
	Err      error // errors.Join of every failure
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %d failure(s): %v", e.Step, e.Failures, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func newRunError(step string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &RunError{Step: step, Failures: len(errs), Err: errors.Join(errs...)}
}

// Report summarises one step.
type Report struct {
	Step      string
	Lobby     string
	Processed int // users crawled or battles fetched
	Added     int // rows added to the store
	Failed    int
	Pages     int
}

// Updater owns the configured paths and the shared rate-limited Getter.
type Updater struct {
	cfg    *config.Config
	get    fetcher.Getter
	client *statink.Client
	loc    *time.Location
	logger zerolog.Logger
}

// NewUpdater wires an Updater. All network access goes through get.
func NewUpdater(cfg *config.Config, get fetcher.Getter, logger zerolog.Logger) (*Updater, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	client, err := statink.New(get, cfg.BaseURL, cfg.Locale)
	if err != nil {
		return nil, err
	}
	return &Updater{cfg: cfg, get: get, client: client, loc: loc, logger: logger}, nil
}

// UpdateUsers adds the uploaders of stat.ink's latest battles to the user list.
func (u *Updater) UpdateUsers(ctx context.Context) (*Report, error) {
	rep := &Report{Step: "users"}
	latest, err := u.client.LatestUsers(ctx)
	if err != nil {
		return rep, fmt.Errorf("latest battles: %w", err)
	}
	path := u.cfg.UsersPath()
	existing, err := storage.Load(path)
	if err != nil {
		return rep, err
	}
	merged, err := storage.MergeAndPersist(path, existing, storage.UsersToTable(latest), storage.UserKey, "")
	if err != nil {
		return rep, err
	}
	rep.Processed = len(latest)
	rep.Added = merged.Len() - existing.Len()
	u.logger.Info().Int("seen", len(latest)).Int("added", rep.Added).Int("total", merged.Len()).Msg("user list updated")
	return rep, nil
}

// UpdateBattleList crawls every user's listing for lobby and merges the new
// summaries. A user whose crawl fails is skipped without persisting partial
// pages; the run goes on and the failures come back as a *RunError.
func (u *Updater) UpdateBattleList(ctx context.Context, lobby string) (*Report, error) {
	rep := &Report{Step: "battles", Lobby: lobby}
	usersTable, err := storage.Load(u.cfg.UsersPath())
	if err != nil {
		return rep, err
	}
	users := storage.TableToUsers(usersTable)

	path := u.cfg.BattleListPath(lobby)
	stored, err := storage.Load(path)
	if err != nil {
		return rep, err
	}
	if len(stored.Header) == 0 {
		stored = storage.NewTable(storage.SummaryHeader...)
	}

	c := crawler.New(u.get, crawler.NewListParser(u.loc), u.logger.With().Str("lobby", lobby).Logger(), u.cfg.FullCrawl)
	u.logger.Info().Str("lobby", lobby).Int("users", len(users)).Msg("update battle list")

	var failures []error
	for i, user := range users {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		log := u.logger.With().Str("lobby", lobby).Str("user", user).Logger()
		log.Info().Msgf("(%d/%d) @%s", i+1, len(users), user)

		known := crawler.IDSet{}
		for _, r := range stored.Rows {
			if stored.Get(r, storage.ColUsername) == user {
				known.Add(stored.Get(r, storage.ColURL))
			}
		}

		res, err := c.Crawl(ctx, u.client.BattleListURL(user, lobby), known)
		rep.Processed++
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			log.Error().Err(err).Msg("crawl failed, user skipped")
			failures = append(failures, fmt.Errorf("@%s: %w", user, err))
			rep.Failed++
			continue
		}
		rep.Pages += res.PagesFetched
		if len(res.New) == 0 {
			log.Info().Int("pages", res.PagesFetched).Str("stop", string(res.Stopped)).Msg("no new battles")
			continue
		}

		merged, err := storage.MergeAndPersist(path, stored, storage.SummariesToTable(res.New), storage.SummaryKey, storage.ColDatetime)
		if err != nil {
			return rep, err
		}
		rep.Added += merged.Len() - stored.Len()
		stored = merged
		log.Info().Int("pages", res.PagesFetched).Int("new", len(res.New)).Str("stop", string(res.Stopped)).Msg("battles stored")
	}
	return rep, newRunError("battles "+lobby, failures)
}

// UpdateBattleDetails fetches the detail page of every stored summary of
// lobby that has no detail row yet. Rows are checkpointed every
// cfg.CheckpointEvery battles. A battle that fails to fetch or parse is
// skipped and reported in the returned *RunError.
func (u *Updater) UpdateBattleDetails(ctx context.Context, lobby string) (*Report, error) {
	rep := &Report{Step: "details", Lobby: lobby}
	summaries, err := storage.Load(u.cfg.BattleListPath(lobby))
	if err != nil {
		return rep, err
	}
	path := u.cfg.DetailsPath(lobby)
	stored, err := storage.Load(path)
	if err != nil {
		return rep, err
	}

	fetched := crawler.IDSet{}
	for _, id := range stored.Column(storage.ColURL) {
		fetched.Add(id)
	}
	var pending []string
	for _, id := range summaries.Column(storage.ColURL) {
		if !fetched.Has(id) {
			pending = append(pending, id)
			fetched.Add(id)
		}
	}
	u.logger.Info().Str("lobby", lobby).Int("battles", len(pending)).Msg("get battle details")

	header := storage.DetailHeader()
	cp := storage.NewCheckpointer(path, stored, header, storage.DetailKey, storage.ColDatetime, u.cfg.CheckpointEvery, u.logger)

	var failures []error
	for i, id := range pending {
		if err := ctx.Err(); err != nil {
			if ferr := cp.Flush(); ferr != nil {
				return rep, ferr
			}
			return rep, err
		}
		log := u.logger.With().Str("lobby", lobby).Str("url", id).Logger()
		log.Info().Msgf("(%d/%d) request", i+1, len(pending))
		rep.Processed++

		detail, err := u.fetchDetail(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				if ferr := cp.Flush(); ferr != nil {
					return rep, ferr
				}
				return rep, ctx.Err()
			}
			log.Error().Err(err).Msg("battle skipped")
			failures = append(failures, err)
			rep.Failed++
			continue
		}
		if err := cp.Add(storage.DetailRow(detail)); err != nil {
			return rep, err
		}
		rep.Added++
	}
	if err := cp.Flush(); err != nil {
		return rep, err
	}
	if rep.Failed > 0 {
		u.logger.Warn().Str("lobby", lobby).Int("failed", rep.Failed).Int("stored", rep.Added).Msg("battle details finished with failures")
	}
	return rep, newRunError("details "+lobby, failures)
}

func (u *Updater) fetchDetail(ctx context.Context, url string) (*model.BattleDetail, error) {
	body, err := u.get.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return parser.ParseDetailPage(url, body, u.loc)
}

// UpdateCatalog refreshes main, sub, special, type, rule and stage tables.
func (u *Updater) UpdateCatalog(ctx context.Context) (*Report, error) {
	rep := &Report{Step: "catalog"}
	weapons, err := u.client.Weapons(ctx)
	if err != nil {
		return rep, fmt.Errorf("weapons: %w", err)
	}
	rules, err := u.client.Rules(ctx)
	if err != nil {
		return rep, fmt.Errorf("rules: %w", err)
	}
	stages, err := u.client.Stages(ctx)
	if err != nil {
		return rep, fmt.Errorf("stages: %w", err)
	}
	subs, specials, types := statink.SplitKit(weapons)

	tables := []struct {
		name  string
		table *storage.Table
	}{
		{"main", storage.WeaponsToTable(weapons)},
		{"sub", storage.CatalogToTable(subs)},
		{"special", storage.CatalogToTable(specials)},
		{"type", storage.CatalogToTable(types)},
		{"rule", storage.CatalogToTable(rules)},
		{"stage", storage.CatalogToTable(stages)},
	}
	for _, t := range tables {
		if err := storage.Save(u.cfg.CatalogPath(t.name), t.table); err != nil {
			return rep, err
		}
		rep.Added += t.table.Len()
		u.logger.Info().Str("catalog", t.name).Int("rows", t.table.Len()).Str("locale", u.client.Locale()).Msg("catalog saved")
	}
	rep.Processed = len(tables)
	return rep, nil
}

// RunAll refreshes the catalog and user list, then the battle lists and
// details of every lobby. Step failures are collected and the remaining
// steps still run; cancellation stops immediately.
func (u *Updater) RunAll(ctx context.Context) ([]*Report, error) {
	var reports []*Report
	var errs []error
	record := func(rep *Report, err error) bool {
		if rep != nil {
			reports = append(reports, rep)
		}
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			return false
		}
		errs = append(errs, err)
		return true
	}

	if !record(u.UpdateCatalog(ctx)) {
		return reports, errors.Join(errs...)
	}
	if !record(u.UpdateUsers(ctx)) {
		return reports, errors.Join(errs...)
	}
	for _, lobby := range model.Lobbies {
		if !record(u.UpdateBattleList(ctx, lobby)) {
			return reports, errors.Join(errs...)
		}
		if !record(u.UpdateBattleDetails(ctx, lobby)) {
			return reports, errors.Join(errs...)
		}
	}
	return reports, errors.Join(errs...)
}
