package main

import (
	"github.com/spf13/cobra"

	"github.com/visawatch/bulletin-cli/internal/collector"
	"github.com/visawatch/bulletin-cli/internal/fetcher"
	"github.com/visawatch/bulletin-cli/internal/planner"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Ingest the current bulletin from the index page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f := fetcher.New(fetcher.Options{
			UserAgent:  cfg.HTTP.UserAgent,
			Timeout:    cfg.HTTP.Timeout(),
			MaxRetries: cfg.HTTP.Retries,
			MaxWorkers: 1,
		})
		p := planner.New(cfg.Source.BaseURL, cfg.Source.IndexURL)
		c := collector.New(st, f, p, cfg.Parser.MinDateParseRate, cfg.Collector.BulletinTimeout())

		report, err := c.FetchCurrent(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
		return reportExit(report)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
