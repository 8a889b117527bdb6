package main

import (
	"github.com/spf13/cobra"

	"github.com/visawatch/bulletin-cli/internal/analytics"
	"github.com/visawatch/bulletin-cli/internal/model"
)

var (
	analyzeCategory string
	analyzeCountry  string
	analyzeChart    string
	analyzeWindow   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize cutoff movement trends",
	Long:  "Computes trend statistics for one series, or for every category of a country when --category is omitted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		country, err := model.ParseCountry(analyzeCountry)
		if err != nil {
			return err
		}
		chart, err := parseChartFlag(analyzeChart)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a := analytics.New(st)

		if analyzeCategory != "" {
			category, err := model.ParseCategory(analyzeCategory)
			if err != nil {
				return err
			}
			summary, err := a.AnalyzeSeries(ctx, model.SeriesKey{
				Category: category, Country: country, Chart: chart,
			}, analyzeWindow)
			if err != nil {
				return &model.StorageError{Err: err}
			}
			return printJSON(summary)
		}

		keys := make([]model.SeriesKey, 0, len(model.Categories()))
		for _, category := range model.Categories() {
			keys = append(keys, model.SeriesKey{Category: category, Country: country, Chart: chart})
		}
		table, err := a.CompareCategories(ctx, keys, analyzeWindow)
		if err != nil {
			return &model.StorageError{Err: err}
		}

		// Stable output order for scripting.
		ordered := make([]*model.TrendSummary, 0, len(keys))
		for _, key := range keys {
			ordered = append(ordered, table[key])
		}
		return printJSON(ordered)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCategory, "category", "", "category (e.g. EB2); all categories when omitted")
	analyzeCmd.Flags().StringVar(&analyzeCountry, "country", string(model.CountryWorldwide), "chargeability area")
	analyzeCmd.Flags().StringVar(&analyzeChart, "chart", "final", "chart: final or filing")
	analyzeCmd.Flags().IntVar(&analyzeWindow, "window", 0, "restrict to the last N observations (0 = full history)")
	rootCmd.AddCommand(analyzeCmd)
}
