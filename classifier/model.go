package classifier

import (
	"errors"
	"fmt"
	"io"
	"log"

	"url-guardian/features"
)

// UnknownLabel is reported when no predictor is available.
const UnknownLabel = "unknown"

// ErrNoModel is returned when the bundle holds no loadable predictor.
var ErrNoModel = errors.New("no model in bundle")

// Predictor is a fitted classifier over feature vectors. Class indexes refer
// to the label vocabulary the predictor was loaded with.
type Predictor interface {
	Predict(v features.Vector) (int, error)
	PredictProba(v features.Vector) ([]float64, error)
}

// jointPredictor is implemented by predictors that produce the class and
// its probabilities from a single evaluation.
type jointPredictor interface {
	PredictWithProba(v features.Vector) (int, []float64, error)
}

// Metrics describes the fitted model as recorded at training time.
type Metrics struct {
	Accuracy     float64  `json:"accuracy"`
	Classes      []string `json:"classes"`
	FeatureCount int      `json:"feature_count"`
	Samples      int      `json:"samples"`
}

// Result is the adapter's report for one URL.
type Result struct {
	Label         string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Model is the process-wide, read-only classifier handle. A Model built from
// a failed load stays usable and reports the unknown result for every input.
type Model struct {
	predictor Predictor
	labels    []string
	metrics   Metrics
	err       error
}

// NewModel wraps an already fitted predictor and its class vocabulary.
func NewModel(p Predictor, labels []string, metrics Metrics) *Model {
	if p == nil {
		return Degraded(ErrNoModel)
	}
	return &Model{
		predictor: p,
		labels:    append([]string(nil), labels...),
		metrics:   metrics,
	}
}

// Degraded returns a handle that records why loading failed.
func Degraded(err error) *Model {
	if err == nil {
		err = ErrNoModel
	}
	return &Model{err: err}
}

// Loaded reports whether a predictor is available.
func (m *Model) Loaded() bool {
	return m != nil && m.err == nil && m.predictor != nil
}

// Err returns the load failure, if any.
func (m *Model) Err() error {
	if m == nil {
		return ErrNoModel
	}
	return m.err
}

// Labels returns a copy of the class vocabulary.
func (m *Model) Labels() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.labels...)
}

// Accuracy is the training accuracy as a percentage.
func (m *Model) Accuracy() float64 {
	if m == nil {
		return 0
	}
	return m.metrics.Accuracy * 100
}

// Classify runs the predictor and maps the class index back to its name.
// It never fails: runtime errors degrade to the unknown result.
func (m *Model) Classify(v features.Vector) Result {
	if !m.Loaded() {
		return UnknownResult()
	}

	idx, proba, err := m.predict(v)
	if err != nil {
		log.Printf("[MODEL] predict failed: %v", err)
		return UnknownResult()
	}
	if idx < 0 || idx >= len(m.labels) {
		log.Printf("[MODEL] predicted class %d outside vocabulary of %d", idx, len(m.labels))
		return UnknownResult()
	}

	res := Result{
		Label:         m.labels[idx],
		Probabilities: make(map[string]float64, len(m.labels)),
	}
	if idx < len(proba) {
		res.Confidence = proba[idx] * 100
	}
	for i, name := range m.labels {
		if i < len(proba) {
			res.Probabilities[name] = proba[i] * 100
		}
	}
	return res
}

func (m *Model) predict(v features.Vector) (int, []float64, error) {
	if jp, ok := m.predictor.(jointPredictor); ok {
		return jp.PredictWithProba(v)
	}

	idx, err := m.predictor.Predict(v)
	if err != nil {
		return 0, nil, err
	}
	proba, err := m.predictor.PredictProba(v)
	if err != nil {
		return 0, nil, fmt.Errorf("predict_proba: %w", err)
	}
	return idx, proba, nil
}

// Close releases runtime resources held by the predictor.
func (m *Model) Close() error {
	if m == nil || m.predictor == nil {
		return nil
	}
	if c, ok := m.predictor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// UnknownResult is what Classify reports without a usable predictor.
func UnknownResult() Result {
	return Result{
		Label:         UnknownLabel,
		Confidence:    0,
		Probabilities: map[string]float64{},
	}
}
