// Package forecast predicts future cutoff movement from stored series.
// Two interchangeable regressor variants sit behind the Model interface; a
// null forecaster covers series too short to model.
package forecast

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/visawatch/bulletin-cli/internal/analytics"
	"github.com/visawatch/bulletin-cli/internal/model"
	"github.com/visawatch/bulletin-cli/internal/store"
)

const (
	// MinObservations is the dated-point floor below which forecasting
	// degrades to the null forecaster.
	MinObservations = 12

	// MaxDeltaDays clamps any predicted movement to one year either way.
	MaxDeltaDays = 365

	// NullModelID marks forecasts produced without a trained model.
	NullModelID = "null-forecaster"
)

// TrainMetrics reports held-out error after Train.
type TrainMetrics struct {
	MAEDays      float64 `json:"mae_days"`
	RMSEDays     float64 `json:"rmse_days"`
	HeldOutSplit float64 `json:"held_out_split"`
	Samples      int     `json:"samples"`
}

// Model is one trainable forecast variant.
type Model interface {
	ID() string
	Train(examples []Example) (*TrainMetrics, error)
	// PredictDelta returns the predicted signed day movement and a
	// confidence in [0, 1].
	PredictDelta(features []float64) (days float64, confidence float64)
	Save(path string) error
	Load(path string) error
}

// Example is one training sample: features from the history prefix, target
// delta observed in the following bulletin.
type Example struct {
	Features    []float64 `json:"features"`
	TargetDelta float64   `json:"target_delta"`
}

// BuildExamples expands series into training samples. For each dated point
// past the third, the history before it forms the features and its movement
// is the target.
func BuildExamples(series map[model.SeriesKey][]model.SeriesPoint) []Example {
	keys := make([]model.SeriesKey, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	// Deterministic expansion order so training is reproducible.
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.Chart < b.Chart
	})

	var out []Example
	for _, key := range keys {
		points := series[key]
		dated := make([]model.SeriesPoint, 0, len(points))
		for _, p := range points {
			if p.Status == model.StatusDated && p.PriorityDate != nil {
				dated = append(dated, p)
			}
		}
		sort.Slice(dated, func(i, j int) bool {
			return dated[i].BulletinDate.Before(dated[j].BulletinDate)
		})
		for i := 3; i < len(dated); i++ {
			history := dated[:i]
			target := dated[i]
			delta := target.PriorityDate.Sub(*dated[i-1].PriorityDate).Hours() / 24
			out = append(out, Example{
				Features: BuildFeatures(key, history,
					target.BulletinDate.Year(), int(target.BulletinDate.Month())),
				TargetDelta: delta,
			})
		}
	}
	return out
}

// splitExamples carves off the trailing fraction as a held-out set.
func splitExamples(examples []Example, heldOut float64) (train, hold []Example) {
	n := len(examples)
	cut := n - int(math.Round(float64(n)*heldOut))
	if cut < 1 {
		cut = 1
	}
	if cut > n {
		cut = n
	}
	return examples[:cut], examples[cut:]
}

func evaluate(m Model, hold []Example, split float64, samples int) *TrainMetrics {
	metrics := &TrainMetrics{HeldOutSplit: split, Samples: samples}
	if len(hold) == 0 {
		return metrics
	}
	var absSum, sqSum float64
	for _, ex := range hold {
		pred, _ := m.PredictDelta(ex.Features)
		err := pred - ex.TargetDelta
		absSum += math.Abs(err)
		sqSum += err * err
	}
	metrics.MAEDays = absSum / float64(len(hold))
	metrics.RMSEDays = math.Sqrt(sqSum / float64(len(hold)))
	return metrics
}

func clampDelta(days float64) float64 {
	if days > MaxDeltaDays {
		return MaxDeltaDays
	}
	if days < -MaxDeltaDays {
		return -MaxDeltaDays
	}
	return days
}

// Forecaster ties models to the repository.
type Forecaster struct {
	store store.Store
}

// New creates a Forecaster.
func New(st store.Store) *Forecaster {
	return &Forecaster{store: st}
}

// LoadSeries reads the full history for every requested key.
func (f *Forecaster) LoadSeries(ctx context.Context, keys []model.SeriesKey) (map[model.SeriesKey][]model.SeriesPoint, error) {
	out := make(map[model.SeriesKey][]model.SeriesPoint, len(keys))
	for _, key := range keys {
		points, err := f.store.GetSeries(ctx, key, analytics.MinFiscalYear, analytics.MaxFiscalYear)
		if err != nil {
			return nil, eris.Wrapf(err, "forecast: load series %s/%s/%s", key.Category, key.Country, key.Chart)
		}
		out[key] = points
	}
	return out, nil
}

// Forecast predicts the cutoff for one series at a target month and persists
// the result. Series with fewer than MinObservations dated points yield the
// null forecast.
func (f *Forecaster) Forecast(ctx context.Context, m Model, key model.SeriesKey, targetYear, targetMonth int) (*model.Forecast, error) {
	if targetMonth < 1 || targetMonth > 12 {
		return nil, eris.Errorf("forecast: invalid target month %d", targetMonth)
	}
	points, err := f.store.GetSeries(ctx, key, analytics.MinFiscalYear, analytics.MaxFiscalYear)
	if err != nil {
		return nil, eris.Wrap(err, "forecast: load series")
	}

	fc := Predict(m, key, points, targetYear, targetMonth)
	if err := f.store.PutForecast(ctx, fc); err != nil {
		return nil, eris.Wrap(err, "forecast: persist")
	}
	return fc, nil
}

// Predict is the pure prediction path, exposed for training pipelines and
// tests.
func Predict(m Model, key model.SeriesKey, points []model.SeriesPoint, targetYear, targetMonth int) *model.Forecast {
	features := BuildFeatures(key, points, targetYear, targetMonth)
	fc := &model.Forecast{
		Key:          key,
		TargetYear:   targetYear,
		TargetMonth:  targetMonth,
		ProducedAt:   time.Now().UTC(),
		FeaturesHash: FeaturesHash(features),
	}

	last := LastObservedDate(points)
	if countDated(points) < MinObservations || m == nil {
		fc.ModelID = NullModelID
		fc.Confidence = 0
		fc.PredictedDate = last
		if countDated(points) >= MinObservations {
			zap.L().Debug("no model supplied, using null forecast",
				zap.String("category", string(key.Category)),
				zap.String("country", string(key.Country)),
			)
		}
		return fc
	}

	days, confidence := m.PredictDelta(features)
	days = clampDelta(days)
	predicted := last.AddDate(0, 0, int(math.Round(days)))
	fc.ModelID = m.ID()
	fc.Confidence = confidence
	fc.PredictedDate = &predicted
	return fc
}
