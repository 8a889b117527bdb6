// Package analytics derives trend statistics from stored cutoff series.
// Summarize is pure; the Analyzer wraps it with repository access.
package analytics

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/visawatch/bulletin-cli/internal/model"
	"github.com/visawatch/bulletin-cli/internal/store"
)

// Fiscal-year bounds used when a caller wants the full history.
const (
	MinFiscalYear = 1990
	MaxFiscalYear = 2101
)

// Analyzer computes trend summaries over series read from the store.
type Analyzer struct {
	store store.Store
}

// New creates an Analyzer.
func New(st store.Store) *Analyzer {
	return &Analyzer{store: st}
}

// AnalyzeSeries summarizes the full stored history of one series, restricted
// to the most recent windowMonths dated observations (0 means no window).
func (a *Analyzer) AnalyzeSeries(ctx context.Context, key model.SeriesKey, windowMonths int) (*model.TrendSummary, error) {
	points, err := a.store.GetSeries(ctx, key, MinFiscalYear, MaxFiscalYear)
	if err != nil {
		return nil, err
	}
	return Summarize(key, points, windowMonths), nil
}

// CompareCategories analyzes several series in parallel and returns summaries
// keyed by series.
func (a *Analyzer) CompareCategories(ctx context.Context, keys []model.SeriesKey, windowMonths int) (map[model.SeriesKey]*model.TrendSummary, error) {
	var mu sync.Mutex
	out := make(map[model.SeriesKey]*model.TrendSummary, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, key := range keys {
		g.Go(func() error {
			summary, err := a.AnalyzeSeries(gctx, key, windowMonths)
			if err != nil {
				return err
			}
			mu.Lock()
			out[key] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize computes a TrendSummary from raw series points. Only DATED
// observations participate; a series with no dated points yields a zeroed
// STABLE summary.
func Summarize(key model.SeriesKey, points []model.SeriesPoint, windowMonths int) *model.TrendSummary {
	summary := &model.TrendSummary{
		Key:            key,
		WindowMonths:   windowMonths,
		TrendDirection: model.TrendStable,
	}

	dated := make([]model.SeriesPoint, 0, len(points))
	for _, p := range points {
		if p.Status == model.StatusDated && p.PriorityDate != nil {
			dated = append(dated, p)
		}
	}
	sort.Slice(dated, func(i, j int) bool {
		return dated[i].BulletinDate.Before(dated[j].BulletinDate)
	})
	if windowMonths > 0 && len(dated) > windowMonths {
		dated = dated[len(dated)-windowMonths:]
	}

	summary.Observations = len(dated)
	if len(dated) == 0 {
		return summary
	}
	summary.StartDate = dated[0].BulletinDate
	summary.EndDate = dated[len(dated)-1].BulletinDate

	// Delta i is the priority-date movement, in days, observed in the
	// bulletin published at deltaMonth[i].
	deltas := make([]float64, 0, len(dated)-1)
	deltaMonths := make([]int, 0, len(dated)-1)
	for i := 1; i < len(dated); i++ {
		d := dated[i].PriorityDate.Sub(*dated[i-1].PriorityDate).Hours() / 24
		deltas = append(deltas, d)
		deltaMonths = append(deltaMonths, int(dated[i].BulletinDate.Month()))
	}
	if len(deltas) == 0 {
		return summary
	}

	var total float64
	for _, d := range deltas {
		total += d
	}
	mean := total / float64(len(deltas))
	summary.TotalAdvancementDays = int(math.Round(total))
	summary.MeanMonthlyDays = mean
	summary.Volatility = populationStddev(deltas, mean)
	summary.TrendDirection = classify(deltas, mean, summary.Volatility)
	summary.SeasonalFactors, summary.BestMonth, summary.WorstMonth = seasonal(deltas, deltaMonths, mean)
	summary.Momentum = momentum(deltas)
	return summary
}

func populationStddev(xs []float64, mean float64) float64 {
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// classify applies the direction rules in priority order.
func classify(deltas []float64, mean, volatility float64) model.TrendDirection {
	var nonNeg, neg int
	for _, d := range deltas {
		if d >= 0 {
			nonNeg++
		} else {
			neg++
		}
	}
	n := float64(len(deltas))
	switch {
	case float64(nonNeg)/n > 0.7 && mean > 5:
		return model.TrendAdvancing
	case float64(neg)/n > 0.4:
		return model.TrendRetrogressing
	case math.Abs(mean) <= 5 && volatility < 10:
		return model.TrendStable
	default:
		return model.TrendMixed
	}
}

// seasonal computes the per-calendar-month factor: mean delta in that month
// over the overall mean. Months with fewer than two observations get a nil
// factor. Best and worst months come from the raw monthly means.
func seasonal(deltas []float64, months []int, overallMean float64) (map[int]*float64, int, int) {
	byMonth := make(map[int][]float64)
	for i, d := range deltas {
		byMonth[months[i]] = append(byMonth[months[i]], d)
	}

	factors := make(map[int]*float64, len(byMonth))
	means := make(map[int]float64, len(byMonth))
	for m, ds := range byMonth {
		var sum float64
		for _, d := range ds {
			sum += d
		}
		mMean := sum / float64(len(ds))
		means[m] = mMean
		if len(ds) < 2 || overallMean == 0 {
			factors[m] = nil
			continue
		}
		f := mMean / overallMean
		factors[m] = &f
	}

	var best, worst int
	if len(means) >= 2 {
		for m, v := range means {
			if best == 0 || v > means[best] || (v == means[best] && m < best) {
				best = m
			}
			if worst == 0 || v < means[worst] || (v == means[worst] && m < worst) {
				worst = m
			}
		}
	}
	return factors, best, worst
}

// momentum compares the mean of the last six deltas against the six before.
// Requires a full twelve deltas.
func momentum(deltas []float64) *model.Momentum {
	if len(deltas) < 12 {
		return nil
	}
	recent := deltas[len(deltas)-6:]
	earlier := deltas[len(deltas)-12 : len(deltas)-6]

	meanOf := func(xs []float64) float64 {
		var sum float64
		for _, x := range xs {
			sum += x
		}
		return sum / float64(len(xs))
	}
	r, e := meanOf(recent), meanOf(earlier)
	return &model.Momentum{
		RecentMeanDays:  r,
		EarlierMeanDays: e,
		ChangeDays:      r - e,
	}
}
