package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/visawatch/bulletin-cli/internal/analytics"
	"github.com/visawatch/bulletin-cli/internal/model"
	"github.com/visawatch/bulletin-cli/internal/normalize"
	"github.com/visawatch/bulletin-cli/internal/parser"
)

var validateFix bool

// validateResult is one bulletin's re-validation outcome.
type validateResult struct {
	Year          int      `json:"year"`
	Month         int      `json:"month"`
	DateParseRate float64  `json:"date_parse_rate"`
	RowsOut       int      `json:"rows_out,omitempty"`
	Problem       string   `json:"problem,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Fixed         bool     `json:"fixed,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-run normalization over stored raw HTML",
	Long:  "Re-parses every stored bulletin from its retained raw HTML and reports quality problems. With --fix, re-normalized entries replace the stored ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bulletins, err := st.ListBulletins(ctx, analytics.MinFiscalYear, analytics.MaxFiscalYear)
		if err != nil {
			return &model.StorageError{Err: err}
		}

		var results []validateResult
		problems := 0
		for _, b := range bulletins {
			r := validateResult{Year: b.Year, Month: b.Month}

			raw, err := st.GetRawHTML(ctx, b.Year, b.Month)
			if err != nil {
				return &model.StorageError{Err: err}
			}
			if raw == "" {
				r.Problem = "no raw html retained"
				problems++
				results = append(results, r)
				continue
			}

			parsed, err := parser.Parse([]byte(raw), parser.Label{
				Year: b.Year, Month: b.Month, SourceURL: b.SourceURL,
			})
			if err != nil {
				r.Problem = err.Error()
				problems++
				results = append(results, r)
				continue
			}
			r.DateParseRate = parsed.DateParseRate()

			out, err := normalize.Run(parsed, normalize.Options{MinDateParseRate: cfg.Parser.MinDateParseRate})
			if err != nil {
				r.Problem = err.Error()
				problems++
				results = append(results, r)
				continue
			}
			r.RowsOut = out.Report.RowsOut
			r.Warnings = out.Report.Warnings

			if validateFix {
				if _, err := st.UpsertBulletin(ctx, &out.Bulletin, out.Entries); err != nil {
					return &model.StorageError{Err: err}
				}
				r.Fixed = true
				zap.L().Info("bulletin re-normalized",
					zap.Int("year", b.Year),
					zap.Int("month", b.Month),
					zap.Int("entries", len(out.Entries)),
				)
			}
			results = append(results, r)
		}

		if err := printJSON(results); err != nil {
			return err
		}
		if problems > 0 {
			return &exitError{code: 2, msg: "validation found problems"}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateFix, "fix", false, "replace stored entries with the re-normalized result")
	rootCmd.AddCommand(validateCmd)
}
