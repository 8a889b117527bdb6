// Package collector orchestrates a collection run: plan candidate URLs, fetch
// them in parallel, parse and normalize each page, and persist the results.
// Every failure, storage included, is scoped to its bulletin and recorded on
// the run report; one bad bulletin never aborts the run.
package collector

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visawatch/bulletin-cli/internal/fetcher"
	"github.com/visawatch/bulletin-cli/internal/model"
	"github.com/visawatch/bulletin-cli/internal/normalize"
	"github.com/visawatch/bulletin-cli/internal/parser"
	"github.com/visawatch/bulletin-cli/internal/planner"
	"github.com/visawatch/bulletin-cli/internal/store"
)

// Options controls run behavior.
type Options struct {
	// Force re-ingests months that are already stored.
	Force bool
	// Verify probes each URL with a HEAD request before downloading.
	Verify bool
}

// Collector runs the ingestion pipeline.
type Collector struct {
	store   store.Store
	fetcher *fetcher.Fetcher
	planner *planner.Planner

	minDateParseRate float64
	bulletinBudget   time.Duration
}

// New creates a Collector. bulletinBudget bounds the parse-and-store time for
// a single bulletin.
func New(st store.Store, f *fetcher.Fetcher, p *planner.Planner, minDateParseRate float64, bulletinBudget time.Duration) *Collector {
	if bulletinBudget <= 0 {
		bulletinBudget = 2 * time.Minute
	}
	return &Collector{
		store:            st,
		fetcher:          f,
		planner:          p,
		minDateParseRate: minDateParseRate,
		bulletinBudget:   bulletinBudget,
	}
}

// Collect ingests all bulletins in the inclusive fiscal-year range [fyFrom,
// fyTo]. Already-stored months are skipped unless opts.Force. The returned
// report is valid even on error; cancellation yields a partial report with
// Cancelled set.
func (c *Collector) Collect(ctx context.Context, fyFrom, fyTo int, opts Options) (*model.RunReport, error) {
	report := newReport()
	defer func() { report.FinishedAt = time.Now().UTC() }()

	cands, err := c.planner.Plan(fyFrom, fyTo)
	if err != nil {
		return report, err
	}

	log := zap.L().With(zap.String("run_id", report.RunID))
	log.Info("collection run starting",
		zap.Int("fy_from", fyFrom),
		zap.Int("fy_to", fyTo),
		zap.Int("candidates", len(cands)),
		zap.Bool("force", opts.Force),
	)

	var reqs []fetcher.Request
	for _, cand := range cands {
		report.Attempted++
		if !opts.Force {
			existing, err := c.store.GetBulletin(ctx, cand.Year, cand.Month)
			if err != nil {
				report.Failed = append(report.Failed, model.RunFailure{
					Year: cand.Year, Month: cand.Month, URL: cand.URL,
					Stage: "store", Reason: err.Error(),
				})
				continue
			}
			if existing != nil {
				report.Skipped++
				continue
			}
		}
		reqs = append(reqs, fetcher.Request{
			URL:        cand.URL,
			FiscalYear: cand.FiscalYear,
			Year:       cand.Year,
			Month:      cand.Month,
			Budget:     c.bulletinBudget,
		})
	}

	if opts.Verify {
		reqs = c.verify(ctx, reqs, report)
	}

	for res := range c.fetcher.Fetch(ctx, reqs) {
		if res.Err != nil {
			c.recordFetchFailure(report, res)
			continue
		}
		report.Fetched++
		c.processOne(ctx, res, report)
	}

	if ctx.Err() != nil {
		report.Cancelled = true
		log.Warn("collection run cancelled", zap.Int("stored", report.Stored))
	}
	log.Info("collection run finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("stored", report.Stored),
		zap.Int("skipped", report.Skipped),
		zap.Int("quarantined", len(report.Quarantined)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// FetchCurrent resolves the newest published bulletin from the index page and
// ingests it, re-ingesting if it is already stored.
func (c *Collector) FetchCurrent(ctx context.Context) (*model.RunReport, error) {
	report := newReport()
	defer func() { report.FinishedAt = time.Now().UTC() }()

	cand, err := c.planner.Current(ctx, c.fetcher)
	if err != nil {
		return report, err
	}
	report.Attempted = 1

	zap.L().Info("current bulletin resolved",
		zap.String("run_id", report.RunID),
		zap.Int("year", cand.Year),
		zap.Int("month", cand.Month),
		zap.String("url", cand.URL),
	)

	res := c.fetcher.FetchOne(ctx, fetcher.Request{
		URL:        cand.URL,
		FiscalYear: cand.FiscalYear,
		Year:       cand.Year,
		Month:      cand.Month,
		Budget:     c.bulletinBudget,
	})
	if res.Err != nil {
		c.recordFetchFailure(report, res)
		return report, nil
	}
	report.Fetched = 1

	c.processOne(ctx, res, report)
	if ctx.Err() != nil {
		report.Cancelled = true
	}
	return report, nil
}

func newReport() *model.RunReport {
	return &model.RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

// verify drops requests whose URL does not answer a HEAD probe, recording
// each drop as a failure.
func (c *Collector) verify(ctx context.Context, reqs []fetcher.Request, report *model.RunReport) []fetcher.Request {
	kept := reqs[:0]
	for _, req := range reqs {
		if ctx.Err() != nil {
			kept = append(kept, req)
			continue
		}
		ok, err := c.fetcher.Verify(ctx, req.URL)
		if err != nil {
			// Probe errors are advisory; let the real fetch decide.
			kept = append(kept, req)
			continue
		}
		if !ok {
			report.Failed = append(report.Failed, model.RunFailure{
				Year:   req.Year,
				Month:  req.Month,
				URL:    req.URL,
				Stage:  "verify",
				Reason: "url not reachable",
			})
			continue
		}
		kept = append(kept, req)
	}
	return kept
}

func (c *Collector) recordFetchFailure(report *model.RunReport, res fetcher.Result) {
	failure := model.RunFailure{
		Year:    res.Year,
		Month:   res.Month,
		URL:     res.URL,
		Stage:   "fetch",
		Reason:  res.Err.Error(),
		Retries: res.Retries,
	}
	if model.IsNotFound(res.Err) {
		failure.Reason = "bulletin not published"
	}
	report.Failed = append(report.Failed, failure)
	zap.L().Warn("bulletin fetch failed",
		zap.Int("year", res.Year),
		zap.Int("month", res.Month),
		zap.String("url", res.URL),
		zap.Int("retries", res.Retries),
		zap.Error(res.Err),
	)
}

// processOne parses, normalizes, and stores a fetched bulletin. Every
// failure, storage included, is recorded on the report; the bulletin's
// transaction stays atomic but the run carries on.
func (c *Collector) processOne(ctx context.Context, res fetcher.Result, report *model.RunReport) {
	// The bulletin budget started when its fetch began; downstream stages
	// get whatever is left.
	var bctx context.Context
	var cancel context.CancelFunc
	if !res.Deadline.IsZero() {
		bctx, cancel = context.WithDeadline(ctx, res.Deadline)
	} else {
		bctx, cancel = context.WithTimeout(ctx, c.bulletinBudget)
	}
	defer cancel()

	parsed, err := parser.Parse(res.Body, parser.Label{
		Year:      res.Year,
		Month:     res.Month,
		SourceURL: res.URL,
	})
	if err != nil {
		report.Failed = append(report.Failed, model.RunFailure{
			Year: res.Year, Month: res.Month, URL: res.URL,
			Stage: "parse", Reason: err.Error(),
		})
		zap.L().Warn("bulletin parse failed",
			zap.Int("year", res.Year),
			zap.Int("month", res.Month),
			zap.Error(err),
		)
		return
	}
	report.Parsed++

	out, err := normalize.Run(parsed, normalize.Options{MinDateParseRate: c.minDateParseRate})
	if err != nil {
		var qe *model.QualityError
		if errors.As(err, &qe) {
			report.Quarantined = append(report.Quarantined, model.RunFailure{
				Year: res.Year, Month: res.Month, URL: res.URL,
				Stage: "quarantine", Reason: qe.Reason,
			})
			zap.L().Warn("bulletin quarantined",
				zap.Int("year", res.Year),
				zap.Int("month", res.Month),
				zap.Float64("date_parse_rate", parsed.DateParseRate()),
				zap.Error(err),
			)
			return
		}
		report.Failed = append(report.Failed, model.RunFailure{
			Year: res.Year, Month: res.Month, URL: res.URL,
			Stage: "normalize", Reason: err.Error(),
		})
		return
	}

	for _, warn := range out.Report.Warnings {
		zap.L().Debug("normalization warning",
			zap.Int("year", res.Year),
			zap.Int("month", res.Month),
			zap.String("warning", warn),
		)
	}

	if _, err := c.store.UpsertBulletin(bctx, &out.Bulletin, out.Entries); err != nil {
		report.Failed = append(report.Failed, model.RunFailure{
			Year: res.Year, Month: res.Month, URL: res.URL,
			Stage: "store", Reason: err.Error(),
		})
		zap.L().Error("bulletin store failed",
			zap.Int("year", res.Year),
			zap.Int("month", res.Month),
			zap.Error(err),
		)
		return
	}
	report.Stored++

	zap.L().Info("bulletin stored",
		zap.Int("year", res.Year),
		zap.Int("month", res.Month),
		zap.Int("entries", len(out.Entries)),
		zap.Float64("date_parse_rate", out.Report.DateParseRate),
	)
}
