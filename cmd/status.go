package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/fatih/color"

	"github.com/pable/go-ink-metrics/internal/model"
	"github.com/pable/go-ink-metrics/internal/pipeline"
	"github.com/pable/go-ink-metrics/internal/report"
)

var (
	cOK     = color.New(color.FgGreen, color.Bold)
	cMuted  = color.New(color.Faint)
	cError  = color.New(color.FgRed, color.Bold)
	cWarn   = color.New(color.FgYellow)
	cHeader = color.New(color.FgCyan, color.Bold)
)

// lobbyFlag holds the --lobby values of the scraping and analysis commands.
var lobbyFlag []string

func validateLobbies(lobbies []string) error {
	for _, l := range lobbies {
		if !slices.Contains(model.Lobbies, l) {
			return fmt.Errorf("unknown lobby %q (want one of %v)", l, model.Lobbies)
		}
	}
	return nil
}

// finish prints the step reports and a coloured status line. Partial
// failures still return an error so the process exits non-zero.
func finish(reps []*pipeline.Report, err error) error {
	if len(reps) > 0 {
		report.PrintRunReports(os.Stdout, reps)
	}
	var runErr *pipeline.RunError
	switch {
	case err == nil:
		cOK.Fprintln(os.Stdout, "done")
		return nil
	case errors.As(err, &runErr):
		cWarn.Fprintf(os.Stdout, "finished with %d failure(s); successful rows were saved\n", failures(reps))
		return err
	default:
		cError.Fprintln(os.Stdout, "aborted")
		return err
	}
}

func failures(reps []*pipeline.Report) int {
	n := 0
	for _, r := range reps {
		n += r.Failed
	}
	return n
}
