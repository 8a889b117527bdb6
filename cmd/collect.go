package main

import (
	"github.com/spf13/cobra"

	"github.com/visawatch/bulletin-cli/internal/collector"
	"github.com/visawatch/bulletin-cli/internal/fetcher"
	"github.com/visawatch/bulletin-cli/internal/planner"
)

var (
	collectStartYear int
	collectEndYear   int
	collectWorkers   int
	collectForce     bool
	collectVerify    bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Ingest bulletins for a fiscal-year range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		workers := cfg.HTTP.MaxWorkers
		if collectWorkers > 0 {
			workers = collectWorkers
		}
		f := fetcher.New(fetcher.Options{
			UserAgent:  cfg.HTTP.UserAgent,
			Timeout:    cfg.HTTP.Timeout(),
			MaxRetries: cfg.HTTP.Retries,
			MaxWorkers: workers,
		})
		p := planner.New(cfg.Source.BaseURL, cfg.Source.IndexURL)
		c := collector.New(st, f, p, cfg.Parser.MinDateParseRate, cfg.Collector.BulletinTimeout())

		report, err := c.Collect(ctx, collectStartYear, collectEndYear, collector.Options{
			Force:  collectForce,
			Verify: collectVerify,
		})
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
	collectCmd.Flags().IntVar(&collectStartYear, "start-year", 0, "first fiscal year to ingest (required)")
	collectCmd.Flags().IntVar(&collectEndYear, "end-year", 0, "last fiscal year to ingest (required)")
	collectCmd.Flags().IntVar(&collectWorkers, "workers", 0, "parallel fetch workers (default from config)")
	collectCmd.Flags().BoolVar(&collectForce, "force", false, "re-ingest months that are already stored")
	collectCmd.Flags().BoolVar(&collectVerify, "verify", false, "probe each URL with HEAD before downloading")
	_ = collectCmd.MarkFlagRequired("start-year")
	_ = collectCmd.MarkFlagRequired("end-year")
	rootCmd.AddCommand(collectCmd)
}
