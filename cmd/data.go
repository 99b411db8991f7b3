package cmd

import (
	"fmt"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/reshape"
	"github.com/pable/go-ink-metrics/internal/storage"
)

// Shared by the analysis commands.
var (
	ruleFlag  string
	outFlag   string
	limitFlag int
)

// loadDetails concatenates the detail stores of lobbies, newest first.
func loadDetails(lobbies []string) (*storage.Table, error) {
	all := storage.NewTable(storage.DetailHeader()...)
	for _, lobby := range lobbies {
		t, err := storage.Load(cfg.DetailsPath(lobby))
		if err != nil {
			return nil, err
		}
		if t.Len() == 0 {
			continue
		}
		if all, err = storage.Merge(all, t, storage.DetailKey, storage.ColDatetime); err != nil {
			return nil, fmt.Errorf("details %s: %w", lobby, err)
		}
	}
	return all, nil
}

// loadCatalog reads main.csv. A missing catalog is not fatal: the joined
// columns stay empty.
func loadCatalog() (*reshape.Catalog, error) {
	t, err := storage.Load(cfg.CatalogPath("main"))
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		log.Warn().Str("path", cfg.CatalogPath("main")).Msg("no weapon catalog, run 'inkmetrics catalog' first")
		return nil, nil
	}
	return reshape.NewCatalog(storage.TableToWeapons(t)), nil
}

func newReshaper() (*reshape.Reshaper, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	opts, err := reshape.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return reshape.New(catalog, opts, log), nil
}

// loadPlayers reshapes the stored details of lobbies into player rows,
// keeping only ruleFlag when set.
func loadPlayers(lobbies []string) ([]model.PlayerRecord, error) {
	details, err := loadDetails(lobbies)
	if err != nil {
		return nil, err
	}
	r, err := newReshaper()
	if err != nil {
		return nil, err
	}
	players, err := r.Players(details)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	if n := len(r.Issues()); n > 0 {
		cWarn.Printf("%d weapon key(s) missing from the catalog\n", n)
	}
	if ruleFlag == "" {
		return players, nil
	}
	kept := players[:0]
	for _, p := range players {
		if p.Rule == ruleFlag {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

// tail returns the last n items, or all of them when n <= 0.
func tail[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}
