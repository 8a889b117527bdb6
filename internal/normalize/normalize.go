// Package normalize validates parser output before it reaches the store. It
// enforces the status/priority-date invariants, collapses duplicate rows, and
// turns the parser's date-parse rate into a quarantine decision.
package normalize

import (
	"fmt"

	"github.com/visawatch/bulletin-cli/internal/model"
	"github.com/visawatch/bulletin-cli/internal/parser"
)

// MaxDriftYears bounds how far a priority date may sit from the bulletin
// date. Anything further is an obvious parse error, not a real cutoff.
const MaxDriftYears = 30

// Options configures normalization.
type Options struct {
	// MinDateParseRate quarantines the whole bulletin when the parser's
	// success rate falls below it.
	MinDateParseRate float64
}

// Output is the normalized bulletin ready for the repository.
type Output struct {
	Bulletin model.Bulletin
	Entries  []model.CategoryEntry
	Report   model.QualityReport
}

// Run validates and canonicalizes one parsed bulletin. A QualityError means
// the bulletin must not be persisted; entry-level violations only drop the
// offending entry.
func Run(res *parser.Result, opts Options) (*Output, error) {
	report := model.QualityReport{
		RowsIn:        len(res.Entries),
		Warnings:      append([]string(nil), res.Warnings...),
		DateParseRate: res.DateParseRate(),
	}

	if report.DateParseRate < opts.MinDateParseRate {
		return nil, &model.QualityError{
			Reason: "date_parse_rate_below_floor",
			Rate:   report.DateParseRate,
		}
	}

	out := &Output{Bulletin: res.Bulletin, Report: report}

	// Last occurrence wins on duplicate (category, country, chart).
	type key struct {
		cat     model.Category
		country model.Country
		chart   model.Chart
	}
	seen := map[key]int{}

	for _, e := range res.Entries {
		if err := validateEntry(e, res.Bulletin); err != nil {
			out.Report.Errors = append(out.Report.Errors, err.Error())
			continue
		}

		k := key{e.Category, e.Country, e.Chart}
		if idx, dup := seen[k]; dup {
			out.Report.Warnings = append(out.Report.Warnings,
				fmt.Sprintf("duplicate entry %s/%s/%s: keeping last occurrence", e.Category, e.Country, e.Chart))
			out.Entries[idx] = e
			continue
		}
		seen[k] = len(out.Entries)
		out.Entries = append(out.Entries, e)
	}

	out.Report.RowsOut = len(out.Entries)
	return out, nil
}

func validateEntry(e model.CategoryEntry, b model.Bulletin) error {
	switch e.Status {
	case model.StatusCurrent, model.StatusUnavailable:
		if e.PriorityDate != nil {
			return &model.ValidationError{Msg: fmt.Sprintf("%s/%s/%s: status %s must not carry a priority date", e.Category, e.Country, e.Chart, e.Status)}
		}
	case model.StatusDated:
		if e.PriorityDate == nil {
			return &model.ValidationError{Msg: fmt.Sprintf("%s/%s/%s: status DATED requires a priority date", e.Category, e.Country, e.Chart)}
		}
		driftYears := e.PriorityDate.Sub(b.BulletinDate).Hours() / (24 * 365.25)
		if driftYears > MaxDriftYears || driftYears < -MaxDriftYears {
			return &model.ValidationError{Msg: fmt.Sprintf("%s/%s/%s: priority date %s drifts more than %d years from bulletin date", e.Category, e.Country, e.Chart, e.PriorityDate.Format("2006-01-02"), MaxDriftYears)}
		}
	default:
		return &model.ValidationError{Msg: fmt.Sprintf("%s/%s/%s: unknown status %q", e.Category, e.Country, e.Chart, e.Status)}
	}
	return nil
}
