package forecast

import (
	"encoding/json"
	"math"
	"os"

	"github.com/rotisserie/eris"
)

const classifierModelID = "logistic-magnitude-v1"

// Movement classes, ordered retrogressing, stable, advancing. A delta within
// ±5 days counts as stable.
const (
	classRetrogressing = 0
	classStable        = 1
	classAdvancing     = 2
	numClasses         = 3

	stableBandDays = 5
)

func classOf(delta float64) int {
	switch {
	case delta > stableBandDays:
		return classAdvancing
	case delta < -stableBandDays:
		return classRetrogressing
	default:
		return classStable
	}
}

// ClassifierModel predicts movement in two stages: a multinomial logistic
// classifier picks the direction class, then the class's mean training delta
// supplies the magnitude. Confidence is the class probability damped by the
// class's normalized magnitude error.
type ClassifierModel struct {
	// Weights[c] is the weight vector for class c, bias last.
	Weights [][]float64
	// Standardization parameters captured at training time.
	FeatureMeans []float64
	FeatureStds  []float64
	// ClassDeltas[c] is the mean signed delta of class c's training rows.
	ClassDeltas [numClasses]float64
	// MagnitudeErrs[c] is the class's normalized MAE in [0, 1].
	MagnitudeErrs [numClasses]float64

	heldOut float64
	epochs  int
	rate    float64
}

// NewClassifierModel creates an untrained classifier with default training
// hyperparameters.
func NewClassifierModel() *ClassifierModel {
	return &ClassifierModel{heldOut: 0.2, epochs: 300, rate: 0.05}
}

func (m *ClassifierModel) ID() string { return classifierModelID }

func (m *ClassifierModel) Train(examples []Example) (*TrainMetrics, error) {
	train, hold := splitExamples(examples, m.heldOut)
	if len(train) < numClasses {
		return nil, eris.Errorf("classifier: need at least %d training examples, have %d", numClasses, len(train))
	}
	dim := len(train[0].Features)

	m.fitStandardization(train, dim)

	// Batch gradient descent on the softmax cross entropy.
	m.Weights = make([][]float64, numClasses)
	for c := range m.Weights {
		m.Weights[c] = make([]float64, dim+1)
	}
	for epoch := 0; epoch < m.epochs; epoch++ {
		grads := make([][]float64, numClasses)
		for c := range grads {
			grads[c] = make([]float64, dim+1)
		}
		for _, ex := range train {
			x := m.standardize(ex.Features)
			probs := m.forward(x)
			target := classOf(ex.TargetDelta)
			for c := 0; c < numClasses; c++ {
				g := probs[c]
				if c == target {
					g -= 1
				}
				for j, xv := range x {
					grads[c][j] += g * xv
				}
				grads[c][dim] += g
			}
		}
		scale := m.rate / float64(len(train))
		for c := range m.Weights {
			for j := range m.Weights[c] {
				m.Weights[c][j] -= scale * grads[c][j]
			}
		}
	}

	m.fitMagnitudes(train)
	return evaluate(m, hold, m.heldOut, len(examples)), nil
}

func (m *ClassifierModel) fitStandardization(train []Example, dim int) {
	m.FeatureMeans = make([]float64, dim)
	m.FeatureStds = make([]float64, dim)
	for _, ex := range train {
		for j, v := range ex.Features {
			m.FeatureMeans[j] += v
		}
	}
	for j := range m.FeatureMeans {
		m.FeatureMeans[j] /= float64(len(train))
	}
	for _, ex := range train {
		for j, v := range ex.Features {
			d := v - m.FeatureMeans[j]
			m.FeatureStds[j] += d * d
		}
	}
	for j := range m.FeatureStds {
		m.FeatureStds[j] = math.Sqrt(m.FeatureStds[j] / float64(len(train)))
		if m.FeatureStds[j] == 0 {
			m.FeatureStds[j] = 1
		}
	}
}

func (m *ClassifierModel) fitMagnitudes(train []Example) {
	var sums, counts [numClasses]float64
	for _, ex := range train {
		c := classOf(ex.TargetDelta)
		sums[c] += ex.TargetDelta
		counts[c]++
	}
	for c := 0; c < numClasses; c++ {
		if counts[c] > 0 {
			m.ClassDeltas[c] = sums[c] / counts[c]
		}
	}

	var absErrs [numClasses]float64
	for _, ex := range train {
		c := classOf(ex.TargetDelta)
		absErrs[c] += math.Abs(ex.TargetDelta - m.ClassDeltas[c])
	}
	for c := 0; c < numClasses; c++ {
		if counts[c] == 0 {
			m.MagnitudeErrs[c] = 1
			continue
		}
		mae := absErrs[c] / counts[c]
		norm := mae / (math.Abs(m.ClassDeltas[c]) + 1)
		m.MagnitudeErrs[c] = math.Min(norm, 1)
	}
}

func (m *ClassifierModel) standardize(features []float64) []float64 {
	x := make([]float64, len(features))
	for j, v := range features {
		x[j] = (v - m.FeatureMeans[j]) / m.FeatureStds[j]
	}
	return x
}

func (m *ClassifierModel) forward(x []float64) [numClasses]float64 {
	var logits [numClasses]float64
	dim := len(x)
	for c := 0; c < numClasses; c++ {
		z := m.Weights[c][dim]
		for j, xv := range x {
			z += m.Weights[c][j] * xv
		}
		logits[c] = z
	}

	maxLogit := math.Max(logits[0], math.Max(logits[1], logits[2]))
	var sum float64
	var probs [numClasses]float64
	for c := 0; c < numClasses; c++ {
		probs[c] = math.Exp(logits[c] - maxLogit)
		sum += probs[c]
	}
	for c := 0; c < numClasses; c++ {
		probs[c] /= sum
	}
	return probs
}

func (m *ClassifierModel) PredictDelta(features []float64) (float64, float64) {
	if len(m.Weights) != numClasses || len(m.FeatureMeans) != len(features) {
		return 0, 0
	}
	probs := m.forward(m.standardize(features))

	cls := 0
	for c := 1; c < numClasses; c++ {
		if probs[c] > probs[cls] {
			cls = c
		}
	}
	confidence := probs[cls] * (1 - m.MagnitudeErrs[cls])
	return m.ClassDeltas[cls], confidence
}

type classifierArtifact struct {
	SchemaVersion int                 `json:"schema_version"`
	ModelID       string              `json:"model_id"`
	Weights       [][]float64         `json:"weights"`
	FeatureMeans  []float64           `json:"feature_means"`
	FeatureStds   []float64           `json:"feature_stds"`
	ClassDeltas   [numClasses]float64 `json:"class_deltas"`
	MagnitudeErrs [numClasses]float64 `json:"magnitude_errs"`
}

func (m *ClassifierModel) Save(path string) error {
	data, err := json.MarshalIndent(classifierArtifact{
		SchemaVersion: FeatureSchemaVersion,
		ModelID:       m.ID(),
		Weights:       m.Weights,
		FeatureMeans:  m.FeatureMeans,
		FeatureStds:   m.FeatureStds,
		ClassDeltas:   m.ClassDeltas,
		MagnitudeErrs: m.MagnitudeErrs,
	}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "classifier: marshal artifact")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "classifier: write artifact")
}

func (m *ClassifierModel) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "classifier: read artifact")
	}
	var art classifierArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return eris.Wrap(err, "classifier: decode artifact")
	}
	if art.SchemaVersion != FeatureSchemaVersion {
		return eris.Errorf("classifier: artifact schema version %d, binary expects %d", art.SchemaVersion, FeatureSchemaVersion)
	}
	if art.ModelID != m.ID() {
		return eris.Errorf("classifier: artifact is %q, not %q", art.ModelID, m.ID())
	}
	if m.epochs == 0 {
		m.heldOut = 0.2
		m.epochs = 300
		m.rate = 0.05
	}
	m.Weights = art.Weights
	m.FeatureMeans = art.FeatureMeans
	m.FeatureStds = art.FeatureStds
	m.ClassDeltas = art.ClassDeltas
	m.MagnitudeErrs = art.MagnitudeErrs
	return nil
}
