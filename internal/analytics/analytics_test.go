package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visawatch/bulletin-cli/internal/model"
)

var eb2India = model.SeriesKey{
	Category: model.CategoryEB2,
	Country:  model.CountryIndia,
	Chart:    model.ChartFinalAction,
}

// seriesFromDeltas builds monthly dated points starting October 2023 whose
// consecutive priority-date movements equal the given day deltas.
func seriesFromDeltas(deltas []float64) []model.SeriesPoint {
	points := make([]model.SeriesPoint, 0, len(deltas)+1)
	bulletin := model.Date(2023, time.October, 1)
	priority := model.Date(2012, time.January, 1)

	pd := priority
	points = append(points, model.SeriesPoint{
		BulletinDate: bulletin, Status: model.StatusDated, PriorityDate: &pd,
	})
	for _, d := range deltas {
		bulletin = bulletin.AddDate(0, 1, 0)
		priority = priority.AddDate(0, 0, int(d))
		p := priority
		points = append(points, model.SeriesPoint{
			BulletinDate: bulletin, Status: model.StatusDated, PriorityDate: &p,
		})
	}
	return points
}

func TestSummarizeAdvancing(t *testing.T) {
	deltas := []float64{30, 45, 20, 30, 40, 35, 25, 30, 40, 50, 30, 25}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)

	assert.Equal(t, model.TrendAdvancing, s.TrendDirection)
	assert.Equal(t, 13, s.Observations)
	assert.Equal(t, 400, s.TotalAdvancementDays)
	assert.InDelta(t, 33.33, s.MeanMonthlyDays, 0.01)
	assert.Positive(t, s.Volatility)
}

func TestSummarizeRetrogressing(t *testing.T) {
	// Half the movements are strictly negative.
	deltas := []float64{-30, 20, -45, 15, -60, 10}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)
	assert.Equal(t, model.TrendRetrogressing, s.TrendDirection)
}

func TestSummarizeStable(t *testing.T) {
	deltas := []float64{2, -1, 3, 0, 1, -2}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)
	assert.Equal(t, model.TrendStable, s.TrendDirection)
	assert.LessOrEqual(t, s.Volatility, 10.0)
}

func TestSummarizeMixed(t *testing.T) {
	// Mostly non-negative but small mean, with volatility too high for stable.
	deltas := []float64{40, 0, -35, 30, 0, -30}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)
	assert.Equal(t, model.TrendMixed, s.TrendDirection)
}

func TestSummarizeEmptySeries(t *testing.T) {
	s := Summarize(eb2India, nil, 0)
	assert.Equal(t, model.TrendStable, s.TrendDirection)
	assert.Equal(t, 0, s.Observations)
	assert.Equal(t, 0, s.TotalAdvancementDays)
	assert.Nil(t, s.Momentum)
}

func TestSummarizeIgnoresUndatedPoints(t *testing.T) {
	points := seriesFromDeltas([]float64{30, 30})
	points = append(points, model.SeriesPoint{
		BulletinDate: model.Date(2024, time.January, 1),
		Status:       model.StatusCurrent,
	})
	s := Summarize(eb2India, points, 0)
	assert.Equal(t, 3, s.Observations)
	assert.Equal(t, 60, s.TotalAdvancementDays)
}

func TestSummarizeWindow(t *testing.T) {
	deltas := []float64{100, 100, 100, 10, 10, 10}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 4)

	// Window keeps the last four observations: three deltas of 10 days.
	assert.Equal(t, 4, s.Observations)
	assert.Equal(t, 30, s.TotalAdvancementDays)
	assert.InDelta(t, 10, s.MeanMonthlyDays, 0.001)
}

func TestSummarizeSingleObservation(t *testing.T) {
	s := Summarize(eb2India, seriesFromDeltas(nil), 0)
	assert.Equal(t, 1, s.Observations)
	assert.Equal(t, 0, s.TotalAdvancementDays)
	assert.Equal(t, model.TrendStable, s.TrendDirection)
}

func TestSeasonalFactorsNeedTwoObservations(t *testing.T) {
	// 12 deltas cover each calendar month once, so every factor is nil.
	deltas := []float64{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)
	for m, f := range s.SeasonalFactors {
		assert.Nil(t, f, "month %d", m)
	}

	// A second year gives every month two observations.
	deltas = append(deltas, deltas...)
	s = Summarize(eb2India, seriesFromDeltas(deltas), 0)
	require.NotEmpty(t, s.SeasonalFactors)
	for m, f := range s.SeasonalFactors {
		require.NotNil(t, f, "month %d", m)
		assert.InDelta(t, 1.0, *f, 0.001)
	}
}

func TestSeasonalBestAndWorstMonths(t *testing.T) {
	// First delta lands in the November bulletin. December gets the spike,
	// February the dip.
	deltas := []float64{10, 90, 10, -40, 10, 10}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)
	assert.Equal(t, 12, s.BestMonth)
	assert.Equal(t, 2, s.WorstMonth)
}

func TestMomentumRequiresTwelveDeltas(t *testing.T) {
	deltas := []float64{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)
	assert.Nil(t, s.Momentum)
}

func TestMomentumComparesRecentToEarlier(t *testing.T) {
	// Earlier six average 10, recent six average 40.
	deltas := []float64{10, 10, 10, 10, 10, 10, 40, 40, 40, 40, 40, 40}
	s := Summarize(eb2India, seriesFromDeltas(deltas), 0)
	require.NotNil(t, s.Momentum)
	assert.InDelta(t, 40, s.Momentum.RecentMeanDays, 0.001)
	assert.InDelta(t, 10, s.Momentum.EarlierMeanDays, 0.001)
	assert.InDelta(t, 30, s.Momentum.ChangeDays, 0.001)
}

func TestSummarizeSortsByBulletinDate(t *testing.T) {
	points := seriesFromDeltas([]float64{30, 30})
	points[0], points[2] = points[2], points[0]
	s := Summarize(eb2India, points, 0)
	assert.Equal(t, 60, s.TotalAdvancementDays)
	assert.Equal(t, model.Date(2023, time.October, 1), s.StartDate)
	assert.Equal(t, model.Date(2023, time.December, 1), s.EndDate)
}
