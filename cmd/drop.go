package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/model"
)

var (
	dropForce   bool
	dropCatalog bool
)

// dropCmd deletes the scraped data files.
var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the scraped data files",
	Long:  "Permanently delete users.csv and every battle list and detail file. With --catalog the reference tables go too. Run 'inkmetrics update' afterwards to rebuild.",
	Args:  cobra.NoArgs,
	RunE:  runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "skip confirmation prompt")
	dropCmd.Flags().BoolVar(&dropCatalog, "catalog", false, "also delete the catalog files")
}

func dataFiles() []string {
	files := []string{cfg.UsersPath()}
	for _, lobby := range model.Lobbies {
		files = append(files, cfg.BattleListPath(lobby), cfg.DetailsPath(lobby))
	}
	if dropCatalog {
		for _, name := range []string{"main", "sub", "special", "type", "rule", "stage"} {
			files = append(files, cfg.CatalogPath(name))
		}
	}
	return files
}

func runDrop(cmd *cobra.Command, args []string) error {
	files := dataFiles()
	if !dropForce {
		fmt.Fprintln(os.Stderr, "This will permanently delete:")
		for _, f := range files {
			fmt.Fprintf(os.Stderr, "  %s\n", f)
		}
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}

	deleted := 0
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("remove %s: %w", f, err)
		}
		deleted++
		fmt.Fprintf(os.Stdout, "Deleted: %s\n", f)
	}
	if deleted == 0 {
		fmt.Fprintln(os.Stdout, "Nothing to drop.")
	}
	return nil
}
