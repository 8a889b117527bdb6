package main

import (
	"github.com/spf13/cobra"

	"github.com/visawatch/bulletin-cli/internal/model"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show repository contents and ingest freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.GetStats(ctx)
		if err != nil {
			return &model.StorageError{Err: err}
		}
		return printJSON(stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
