package forecast

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/visawatch/bulletin-cli/internal/analytics"
	"github.com/visawatch/bulletin-cli/internal/model"
)

// FeatureSchemaVersion identifies the feature vector layout. Saved artifacts
// record it; Load refuses a mismatch.
const FeatureSchemaVersion = 1

// FeatureDim is the length of every feature vector.
//
// Layout: fiscal year, 12-wide month one-hot, days-since-epoch of the last
// observation, last-3 mean delta, last-12 mean delta, volatility, trend
// ordinal, seasonal factor of the target month, country factor, employment
// indicator, category scalar.
const FeatureDim = 22

// countryFactors are fixed constants of the domain model describing relative
// demand pressure per chargeability area. They are not learned.
var countryFactors = map[model.Country]float64{
	model.CountryIndia:       0.3,
	model.CountryChina:       0.5,
	model.CountryMexico:      0.7,
	model.CountryPhilippines: 0.7,
	model.CountryWorldwide:   1.0,
}

var categoryScalars = map[model.Category]float64{
	model.CategoryEB1:             1.0,
	model.CategoryEB2:             0.8,
	model.CategoryEB3:             0.6,
	model.CategoryEB3OtherWorkers: 0.5,
	model.CategoryEB4:             0.7,
	model.CategoryEB5:             0.9,
	model.CategoryF1:              0.6,
	model.CategoryF2A:             0.9,
	model.CategoryF2B:             0.5,
	model.CategoryF3:              0.4,
	model.CategoryF4:              0.3,
}

func trendOrdinal(d model.TrendDirection) float64 {
	switch d {
	case model.TrendAdvancing:
		return 1
	case model.TrendRetrogressing:
		return -1
	default:
		// STABLE and MIXED both sit at the origin.
		return 0
	}
}

// BuildFeatures derives the feature vector for predicting the movement of a
// series at (targetYear, targetMonth), given the dated history up to now.
func BuildFeatures(key model.SeriesKey, points []model.SeriesPoint, targetYear, targetMonth int) []float64 {
	full := analytics.Summarize(key, points, 0)
	last3 := analytics.Summarize(key, points, 4) // 4 points give 3 deltas
	last12 := analytics.Summarize(key, points, 13)

	v := make([]float64, 0, FeatureDim)
	v = append(v, float64(model.FiscalYear(targetMonth, targetYear)))
	for m := 1; m <= 12; m++ {
		if m == targetMonth {
			v = append(v, 1)
		} else {
			v = append(v, 0)
		}
	}

	var lastObserved float64
	if !full.EndDate.IsZero() {
		lastObserved = float64(full.EndDate.Unix()) / 86400
	}
	v = append(v, lastObserved)
	v = append(v, last3.MeanMonthlyDays)
	v = append(v, last12.MeanMonthlyDays)
	v = append(v, full.Volatility)
	v = append(v, trendOrdinal(full.TrendDirection))

	var seasonalFactor float64
	if f := full.SeasonalFactors[targetMonth]; f != nil {
		seasonalFactor = *f
	}
	v = append(v, seasonalFactor)

	cf, ok := countryFactors[key.Country]
	if !ok {
		cf = 1.0
	}
	v = append(v, cf)

	if key.Category.IsEmployment() {
		v = append(v, 1)
	} else {
		v = append(v, 0)
	}
	cs, ok := categoryScalars[key.Category]
	if !ok {
		cs = 0.5
	}
	v = append(v, cs)

	return v
}

// FeaturesHash is a stable digest over the schema version and the feature
// values, used to tie a stored Forecast to the inputs it was computed from.
func FeaturesHash(features []float64) string {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(FeatureSchemaVersion))
	h.Write(buf[:]) //nolint:errcheck
	for _, f := range features {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:]) //nolint:errcheck
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// LastObservedDate returns the latest dated priority date in the series, or
// nil when the series has no dated points.
func LastObservedDate(points []model.SeriesPoint) *time.Time {
	var last *time.Time
	var lastBulletin time.Time
	for _, p := range points {
		if p.Status != model.StatusDated || p.PriorityDate == nil {
			continue
		}
		if last == nil || p.BulletinDate.After(lastBulletin) {
			t := *p.PriorityDate
			last = &t
			lastBulletin = p.BulletinDate
		}
	}
	return last
}

func countDated(points []model.SeriesPoint) int {
	n := 0
	for _, p := range points {
		if p.Status == model.StatusDated && p.PriorityDate != nil {
			n++
		}
	}
	return n
}
