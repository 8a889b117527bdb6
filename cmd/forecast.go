package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/visawatch/bulletin-cli/internal/forecast"
	"github.com/visawatch/bulletin-cli/internal/model"
)

var (
	forecastCategory string
	forecastCountry  string
	forecastChart    string
	forecastTargetY  int
	forecastTargetM  int
	forecastVariant  string
	forecastSavePath string
	forecastLoadPath string
)

// forecastOutput bundles training metrics with the produced forecasts.
type forecastOutput struct {
	ModelID   string                 `json:"model_id"`
	Metrics   *forecast.TrainMetrics `json:"metrics,omitempty"`
	Forecasts []*model.Forecast      `json:"forecasts"`
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Train a movement model and predict future cutoffs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		country, err := model.ParseCountry(forecastCountry)
		if err != nil {
			return err
		}
		chart, err := parseChartFlag(forecastChart)
		if err != nil {
			return err
		}

		var m forecast.Model
		switch forecastVariant {
		case "tree":
			m = forecast.NewTreeModel()
		case "classifier":
			m = forecast.NewClassifierModel()
		default:
			return eris.Errorf("unknown model variant %q (want tree or classifier)", forecastVariant)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fc := forecast.New(st)
		out := forecastOutput{ModelID: m.ID()}

		if forecastLoadPath != "" {
			if err := m.Load(forecastLoadPath); err != nil {
				return err
			}
		} else {
			var keys []model.SeriesKey
			for _, cat := range model.Categories() {
				for _, c := range model.Countries() {
					keys = append(keys,
						model.SeriesKey{Category: cat, Country: c, Chart: model.ChartFinalAction},
						model.SeriesKey{Category: cat, Country: c, Chart: model.ChartDatesForFiling},
					)
				}
			}
			series, err := fc.LoadSeries(ctx, keys)
			if err != nil {
				return &model.StorageError{Err: err}
			}
			examples := forecast.BuildExamples(series)
			metrics, err := m.Train(examples)
			if err != nil {
				return err
			}
			out.Metrics = metrics
			zap.L().Info("model trained",
				zap.String("model_id", m.ID()),
				zap.Int("samples", metrics.Samples),
				zap.Float64("mae_days", metrics.MAEDays),
				zap.Float64("rmse_days", metrics.RMSEDays),
			)
			if forecastSavePath != "" {
				if err := m.Save(forecastSavePath); err != nil {
					return err
				}
			}
		}

		targets := model.Categories()
		if forecastCategory != "" {
			cat, err := model.ParseCategory(forecastCategory)
			if err != nil {
				return err
			}
			targets = []model.Category{cat}
		}
		for _, cat := range targets {
			f, err := fc.Forecast(ctx, m, model.SeriesKey{
				Category: cat, Country: country, Chart: chart,
			}, forecastTargetY, forecastTargetM)
			if err != nil {
				return err
			}
			out.Forecasts = append(out.Forecasts, f)
		}

		return printJSON(out)
	},
}

func init() {
	next := time.Now().UTC().AddDate(0, 1, 0)
	forecastCmd.Flags().StringVar(&forecastCategory, "category", "", "category to forecast; all categories when omitted")
	forecastCmd.Flags().StringVar(&forecastCountry, "country", string(model.CountryWorldwide), "chargeability area")
	forecastCmd.Flags().StringVar(&forecastChart, "chart", "final", "chart: final or filing")
	forecastCmd.Flags().IntVar(&forecastTargetY, "target-year", next.Year(), "target calendar year")
	forecastCmd.Flags().IntVar(&forecastTargetM, "target-month", int(next.Month()), "target calendar month")
	forecastCmd.Flags().StringVar(&forecastVariant, "model", "tree", "model variant: tree or classifier")
	forecastCmd.Flags().StringVar(&forecastSavePath, "save", "", "write the trained model artifact to this path")
	forecastCmd.Flags().StringVar(&forecastLoadPath, "load", "", "load a model artifact instead of training")
	rootCmd.AddCommand(forecastCmd)
}
