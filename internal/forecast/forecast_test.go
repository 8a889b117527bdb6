package forecast

import (
	"os"
	"path/filepath"
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

// datedSeries builds n monthly dated points starting October 2022, each
// advancing the priority date by stepDays.
func datedSeries(n int, stepDays int) []model.SeriesPoint {
	points := make([]model.SeriesPoint, 0, n)
	bulletin := model.Date(2022, time.October, 1)
	priority := model.Date(2012, time.January, 1)
	for i := 0; i < n; i++ {
		pd := priority
		points = append(points, model.SeriesPoint{
			BulletinDate: bulletin, Status: model.StatusDated, PriorityDate: &pd,
		})
		bulletin = bulletin.AddDate(0, 1, 0)
		priority = priority.AddDate(0, 0, stepDays)
	}
	return points
}

// fixedModel predicts a constant delta, for exercising the clamp.
type fixedModel struct{ days float64 }

func (m *fixedModel) ID() string                                { return "fixed" }
func (m *fixedModel) Train([]Example) (*TrainMetrics, error)    { return &TrainMetrics{}, nil }
func (m *fixedModel) PredictDelta([]float64) (float64, float64) { return m.days, 0.5 }
func (m *fixedModel) Save(string) error                         { return nil }
func (m *fixedModel) Load(string) error                         { return nil }

func TestBuildFeaturesShape(t *testing.T) {
	points := datedSeries(24, 30)
	v := BuildFeatures(eb2India, points, 2025, 6)
	require.Len(t, v, FeatureDim)

	// Fiscal year of June 2025 is 2025.
	assert.Equal(t, float64(2025), v[0])

	// One-hot month: only June set.
	for m := 1; m <= 12; m++ {
		if m == 6 {
			assert.Equal(t, float64(1), v[m])
		} else {
			assert.Equal(t, float64(0), v[m], "month %d", m)
		}
	}

	// Steady 30-day advancement shows up in both trailing means.
	assert.InDelta(t, 30, v[14], 0.001)
	assert.InDelta(t, 30, v[15], 0.001)

	// India carries the lowest country factor.
	assert.Equal(t, 0.3, v[19])
	// EB2 is employment-based.
	assert.Equal(t, float64(1), v[20])
	assert.Equal(t, 0.8, v[21])
}

func TestFeaturesHashStableAndSensitive(t *testing.T) {
	points := datedSeries(24, 30)
	a := FeaturesHash(BuildFeatures(eb2India, points, 2025, 6))
	b := FeaturesHash(BuildFeatures(eb2India, points, 2025, 6))
	c := FeaturesHash(BuildFeatures(eb2India, points, 2025, 7))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestPredictNullForecastUnderMinObservations(t *testing.T) {
	points := datedSeries(MinObservations-1, 30)
	m := NewTreeModel()

	fc := Predict(m, eb2India, points, 2025, 6)
	assert.Equal(t, NullModelID, fc.ModelID)
	assert.Equal(t, float64(0), fc.Confidence)
	require.NotNil(t, fc.PredictedDate)
	assert.Equal(t, *LastObservedDate(points), *fc.PredictedDate)
	assert.NotEmpty(t, fc.FeaturesHash)
}

func TestPredictNullForecastEmptySeries(t *testing.T) {
	fc := Predict(nil, eb2India, nil, 2025, 6)
	assert.Equal(t, NullModelID, fc.ModelID)
	assert.Nil(t, fc.PredictedDate)
}

func TestPredictNilModelUsesNullForecast(t *testing.T) {
	points := datedSeries(24, 30)
	fc := Predict(nil, eb2India, points, 2025, 6)
	assert.Equal(t, NullModelID, fc.ModelID)
	assert.Equal(t, float64(0), fc.Confidence)
}

func TestPredictClampsDelta(t *testing.T) {
	points := datedSeries(24, 30)
	last := *LastObservedDate(points)

	fc := Predict(&fixedModel{days: 10000}, eb2India, points, 2025, 6)
	require.NotNil(t, fc.PredictedDate)
	assert.Equal(t, last.AddDate(0, 0, MaxDeltaDays), *fc.PredictedDate)

	fc = Predict(&fixedModel{days: -10000}, eb2India, points, 2025, 6)
	require.NotNil(t, fc.PredictedDate)
	assert.Equal(t, last.AddDate(0, 0, -MaxDeltaDays), *fc.PredictedDate)
}

func TestBuildExamples(t *testing.T) {
	series := map[model.SeriesKey][]model.SeriesPoint{
		eb2India: datedSeries(10, 30),
	}
	examples := BuildExamples(series)

	// Points 3..9 each contribute one sample.
	require.Len(t, examples, 7)
	for _, ex := range examples {
		assert.Len(t, ex.Features, FeatureDim)
		assert.InDelta(t, 30, ex.TargetDelta, 0.001)
	}
}

func TestBuildExamplesDeterministic(t *testing.T) {
	f1 := model.SeriesKey{Category: model.CategoryF1, Country: model.CountryMexico, Chart: model.ChartFinalAction}
	series := map[model.SeriesKey][]model.SeriesPoint{
		eb2India: datedSeries(6, 30),
		f1:       datedSeries(6, -10),
	}

	a := BuildExamples(series)
	b := BuildExamples(series)
	require.Equal(t, a, b)

	// EB2 sorts before F1, so its samples come first.
	require.Len(t, a, 6)
	assert.InDelta(t, 30, a[0].TargetDelta, 0.001)
	assert.InDelta(t, -10, a[5].TargetDelta, 0.001)
}

func TestTreeModelTrainAndPredict(t *testing.T) {
	series := map[model.SeriesKey][]model.SeriesPoint{
		eb2India: datedSeries(40, 30),
	}
	examples := BuildExamples(series)

	m := NewTreeModel()
	metrics, err := m.Train(examples)
	require.NoError(t, err)
	assert.Equal(t, len(examples), metrics.Samples)
	assert.Equal(t, 0.2, metrics.HeldOutSplit)

	// Every target is 30 days, so the ensemble should recover it closely.
	days, confidence := m.PredictDelta(examples[0].Features)
	assert.InDelta(t, 30, days, 1)
	assert.Greater(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestTreeModelTrainDeterministic(t *testing.T) {
	examples := BuildExamples(map[model.SeriesKey][]model.SeriesPoint{
		eb2India: datedSeries(30, 15),
	})

	m1 := NewTreeModel()
	_, err := m1.Train(examples)
	require.NoError(t, err)
	m2 := NewTreeModel()
	_, err = m2.Train(examples)
	require.NoError(t, err)

	assert.Equal(t, m1.Stumps, m2.Stumps)
}

func TestTreeModelTrainTooFewExamples(t *testing.T) {
	m := NewTreeModel()
	_, err := m.Train([]Example{{Features: make([]float64, FeatureDim)}})
	require.Error(t, err)
}

func TestTreeModelSaveLoadRoundTrip(t *testing.T) {
	examples := BuildExamples(map[model.SeriesKey][]model.SeriesPoint{
		eb2India: datedSeries(30, 15),
	})
	m := NewTreeModel()
	_, err := m.Train(examples)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, m.Save(path))

	loaded := NewTreeModel()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, m.Stumps, loaded.Stumps)

	wantDays, _ := m.PredictDelta(examples[0].Features)
	gotDays, _ := loaded.PredictDelta(examples[0].Features)
	assert.Equal(t, wantDays, gotDays)
}

func TestTreeModelLoadRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	artifact := `{"schema_version": 99, "model_id": "stump-ensemble-v1", "stumps": []}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))

	err := NewTreeModel().Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version")
}

func TestTreeModelLoadRejectsWrongModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	artifact := `{"schema_version": 1, "model_id": "logistic-magnitude-v1", "stumps": []}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))

	require.Error(t, NewTreeModel().Load(path))
}

func TestClassifierModelTrainAndPredict(t *testing.T) {
	advancing := datedSeries(40, 30)
	retrogressing := datedSeries(40, -30)
	f3Mexico := model.SeriesKey{Category: model.CategoryF3, Country: model.CountryMexico, Chart: model.ChartFinalAction}
	examples := BuildExamples(map[model.SeriesKey][]model.SeriesPoint{
		eb2India: advancing,
		f3Mexico: retrogressing,
	})

	m := NewClassifierModel()
	metrics, err := m.Train(examples)
	require.NoError(t, err)
	assert.Equal(t, len(examples), metrics.Samples)

	advDays, advConf := m.PredictDelta(BuildFeatures(eb2India, advancing, 2026, 3))
	retDays, retConf := m.PredictDelta(BuildFeatures(f3Mexico, retrogressing, 2026, 3))

	assert.Greater(t, advDays, retDays)
	for _, c := range []float64{advConf, retConf} {
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestClassifierModelSaveLoadRoundTrip(t *testing.T) {
	examples := BuildExamples(map[model.SeriesKey][]model.SeriesPoint{
		eb2India: datedSeries(30, 30),
	})
	m := NewClassifierModel()
	_, err := m.Train(examples)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "classifier.json")
	require.NoError(t, m.Save(path))

	loaded := NewClassifierModel()
	require.NoError(t, loaded.Load(path))

	features := BuildFeatures(eb2India, datedSeries(30, 30), 2026, 1)
	wantDays, wantConf := m.PredictDelta(features)
	gotDays, gotConf := loaded.PredictDelta(features)
	assert.Equal(t, wantDays, gotDays)
	assert.Equal(t, wantConf, gotConf)
}
