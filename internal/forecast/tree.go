package forecast

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/rotisserie/eris"
)

const treeModelID = "stump-ensemble-v1"

// stump is a depth-1 regression tree.
type stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

func (s stump) predict(features []float64) float64 {
	if features[s.Feature] <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// TreeModel is a bagged ensemble of regression stumps. Confidence comes from
// the spread of the ensemble's individual predictions.
type TreeModel struct {
	Stumps []stump

	// Ensemble size and held-out fraction, fixed at construction.
	size    int
	heldOut float64
}

// NewTreeModel creates an untrained ensemble of the default size.
func NewTreeModel() *TreeModel {
	return &TreeModel{size: 64, heldOut: 0.2}
}

func (m *TreeModel) ID() string { return treeModelID }

// Train fits the ensemble on bootstrap resamples. The RNG seed is fixed so
// training is deterministic for a given example set.
func (m *TreeModel) Train(examples []Example) (*TrainMetrics, error) {
	train, hold := splitExamples(examples, m.heldOut)
	if len(train) < 2 {
		return nil, eris.Errorf("tree: need at least 2 training examples, have %d", len(train))
	}

	rng := rand.New(rand.NewSource(1)) //nolint:gosec
	dim := len(train[0].Features)
	featuresPerStump := int(math.Ceil(math.Sqrt(float64(dim))))

	m.Stumps = make([]stump, 0, m.size)
	for i := 0; i < m.size; i++ {
		sample := make([]Example, len(train))
		for j := range sample {
			sample[j] = train[rng.Intn(len(train))]
		}
		m.Stumps = append(m.Stumps, fitStump(sample, randomFeatures(rng, dim, featuresPerStump)))
	}

	return evaluate(m, hold, m.heldOut, len(examples)), nil
}

// PredictDelta averages the stump outputs. Confidence decays with the
// ensemble's standard deviation.
func (m *TreeModel) PredictDelta(features []float64) (float64, float64) {
	if len(m.Stumps) == 0 {
		return 0, 0
	}
	preds := make([]float64, len(m.Stumps))
	var sum float64
	for i, s := range m.Stumps {
		preds[i] = s.predict(features)
		sum += preds[i]
	}
	mean := sum / float64(len(preds))

	var ss float64
	for _, p := range preds {
		ss += (p - mean) * (p - mean)
	}
	std := math.Sqrt(ss / float64(len(preds)))
	confidence := 1 / (1 + std/30)
	return mean, confidence
}

func randomFeatures(rng *rand.Rand, dim, n int) []int {
	perm := rng.Perm(dim)
	return perm[:n]
}

// fitStump picks the (feature, threshold) split minimizing squared error over
// the candidate features.
func fitStump(sample []Example, candidates []int) stump {
	overall := meanTarget(sample)
	best := stump{Feature: candidates[0], Threshold: math.Inf(1), Left: overall, Right: overall}
	bestSSE := math.Inf(1)

	for _, f := range candidates {
		values := make([]float64, len(sample))
		for i, ex := range sample {
			values[i] = ex.Features[f]
		}
		sort.Float64s(values)

		for i := 1; i < len(values); i++ {
			if values[i] == values[i-1] {
				continue
			}
			threshold := (values[i] + values[i-1]) / 2
			sse, left, right, ok := splitSSE(sample, f, threshold)
			if ok && sse < bestSSE {
				bestSSE = sse
				best = stump{Feature: f, Threshold: threshold, Left: left, Right: right}
			}
		}
	}
	return best
}

func splitSSE(sample []Example, feature int, threshold float64) (sse, left, right float64, ok bool) {
	var lSum, rSum float64
	var lN, rN int
	for _, ex := range sample {
		if ex.Features[feature] <= threshold {
			lSum += ex.TargetDelta
			lN++
		} else {
			rSum += ex.TargetDelta
			rN++
		}
	}
	if lN == 0 || rN == 0 {
		return 0, 0, 0, false
	}
	left = lSum / float64(lN)
	right = rSum / float64(rN)
	for _, ex := range sample {
		var pred float64
		if ex.Features[feature] <= threshold {
			pred = left
		} else {
			pred = right
		}
		sse += (ex.TargetDelta - pred) * (ex.TargetDelta - pred)
	}
	return sse, left, right, true
}

func meanTarget(sample []Example) float64 {
	var sum float64
	for _, ex := range sample {
		sum += ex.TargetDelta
	}
	return sum / float64(len(sample))
}

// treeArtifact is the on-disk form of a trained ensemble.
type treeArtifact struct {
	SchemaVersion int     `json:"schema_version"`
	ModelID       string  `json:"model_id"`
	Stumps        []stump `json:"stumps"`
}

func (m *TreeModel) Save(path string) error {
	data, err := json.MarshalIndent(treeArtifact{
		SchemaVersion: FeatureSchemaVersion,
		ModelID:       m.ID(),
		Stumps:        m.Stumps,
	}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "tree: marshal artifact")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "tree: write artifact")
}

func (m *TreeModel) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "tree: read artifact")
	}
	var art treeArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return eris.Wrap(err, "tree: decode artifact")
	}
	if art.SchemaVersion != FeatureSchemaVersion {
		return eris.Errorf("tree: artifact schema version %d, binary expects %d", art.SchemaVersion, FeatureSchemaVersion)
	}
	if art.ModelID != m.ID() {
		return eris.Errorf("tree: artifact is %q, not %q", art.ModelID, m.ID())
	}
	if m.size == 0 {
		m.size = 64
		m.heldOut = 0.2
	}
	m.Stumps = art.Stumps
	return nil
}
