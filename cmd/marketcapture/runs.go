package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/marketplace-capture/config"
	"github.com/aluiziolira/marketplace-capture/store"
)

func newRunsCmd() *cobra.Command {
	var archive string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the most recent runs stored in the archive.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if archive == "" {
				archive, _ = config.EnvString(config.EnvPrefix + "ARCHIVE")
			}
			if archive == "" {
				return errors.New("no archive configured (use --archive or MARKET_ARCHIVE)")
			}
			db, err := store.Open(archive)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "SQLite run archive")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	return cmd
}
