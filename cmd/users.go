package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/pipeline"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Add uploaders of stat.ink's latest battles to the user list",
	Args:  cobra.NoArgs,
	RunE:  runUsers,
}

func runUsers(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	u, err := newUpdater()
	if err != nil {
		return err
	}
	rep, err := u.UpdateUsers(ctx)
	return finish([]*pipeline.Report{rep}, err)
}
