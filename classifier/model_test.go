package classifier

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"url-guardian/features"
)

type stubPredictor struct {
	idx   int
	proba []float64
	err   error
}

func (s stubPredictor) Predict(features.Vector) (int, error) { return s.idx, s.err }

func (s stubPredictor) PredictProba(features.Vector) ([]float64, error) { return s.proba, s.err }

func TestClassifyWithoutPredictor(t *testing.T) {
	for _, m := range []*Model{nil, Degraded(errors.New("missing")), NewModel(nil, nil, Metrics{})} {
		got := m.Classify(features.Extract("example.com"))
		want := Result{Label: "unknown", Confidence: 0, Probabilities: map[string]float64{}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Classify() = %+v, want %+v", got, want)
		}
		if m.Loaded() {
			t.Fatalf("degraded model reports loaded")
		}
	}
}

func TestClassifyMapsIndexAndScalesProbabilities(t *testing.T) {
	labels := []string{"benign", "defacement", "malware", "phishing"}
	m := NewModel(stubPredictor{idx: 3, proba: []float64{0.1, 0.05, 0.05, 0.8}}, labels, Metrics{Accuracy: 0.91})

	got := m.Classify(features.Vector{})
	if got.Label != "phishing" {
		t.Fatalf("label = %q, want phishing", got.Label)
	}
	if !approx(got.Confidence, 80) {
		t.Fatalf("confidence = %v, want 80", got.Confidence)
	}
	if len(got.Probabilities) != len(labels) {
		t.Fatalf("probabilities = %v", got.Probabilities)
	}
	if !approx(got.Probabilities["benign"], 10) {
		t.Fatalf("benign probability = %v, want 10", got.Probabilities["benign"])
	}
	if !approx(m.Accuracy(), 91) {
		t.Fatalf("accuracy = %v, want 91", m.Accuracy())
	}
}

// jointStub answers only through PredictWithProba and counts evaluations.
type jointStub struct {
	idx   int
	proba []float64
	runs  *int
}

func (s jointStub) Predict(features.Vector) (int, error) {
	return 0, errors.New("Predict called on joint predictor")
}

func (s jointStub) PredictProba(features.Vector) ([]float64, error) {
	return nil, errors.New("PredictProba called on joint predictor")
}

func (s jointStub) PredictWithProba(features.Vector) (int, []float64, error) {
	*s.runs++
	return s.idx, s.proba, nil
}

func TestClassifyUsesSingleEvaluationWhenAvailable(t *testing.T) {
	runs := 0
	m := NewModel(jointStub{idx: 1, proba: []float64{0.25, 0.75}, runs: &runs}, []string{"benign", "phishing"}, Metrics{})

	got := m.Classify(features.Extract("http://login.example.test/verify"))
	if got.Label != "phishing" || !approx(got.Confidence, 75) {
		t.Fatalf("Classify() = %+v, want phishing at 75", got)
	}
	if runs != 1 {
		t.Fatalf("predictor evaluated %d times, want 1", runs)
	}
}

func TestClassifyDegradesOnPredictorFailure(t *testing.T) {
	labels := []string{"benign", "phishing"}
	cases := []Predictor{
		stubPredictor{err: errors.New("boom")},
		stubPredictor{idx: 7, proba: []float64{0.5, 0.5}},
	}
	for _, p := range cases {
		got := NewModel(p, labels, Metrics{}).Classify(features.Vector{})
		if got.Label != UnknownLabel || got.Confidence != 0 || len(got.Probabilities) != 0 {
			t.Fatalf("expected unknown result, got %+v", got)
		}
	}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const stumpForest = `{
  "n_classes": 2,
  "trees": [
    {"nodes": [
      {"feature": 7, "threshold": 0.5, "left": 1, "right": 2},
      {"left": -1, "right": -1, "value": [9, 1]},
      {"left": -1, "right": -1, "value": [1, 3]}
    ]},
    {"nodes": [
      {"feature": 0, "threshold": 40, "left": 1, "right": 2},
      {"left": -1, "right": -1, "value": [1, 0]},
      {"left": -1, "right": -1, "value": [0, 1]}
    ]}
  ]
}`

func TestLoadForestBundle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ForestFile, stumpForest)
	writeFile(t, dir, LabelsFile, `{"0": "benign", "1": "phishing"}`)
	writeFile(t, dir, MetricsFile, `{"accuracy": 0.87, "classes": ["benign", "phishing"], "feature_count": 9, "samples": 100}`)

	m := Load(dir, Options{})
	if !m.Loaded() {
		t.Fatalf("expected loaded model, err=%v", m.Err())
	}
	if !reflect.DeepEqual(m.Labels(), []string{"benign", "phishing"}) {
		t.Fatalf("labels = %v", m.Labels())
	}

	// short url without userinfo: both trees vote benign
	res := m.Classify(features.Extract("example.com"))
	if res.Label != "benign" {
		t.Fatalf("label = %q, want benign (%+v)", res.Label, res)
	}
	if !approx(res.Confidence, 95) {
		t.Fatalf("confidence = %v, want 95", res.Confidence)
	}

	// long url with userinfo: both trees vote phishing
	res = m.Classify(features.Extract("http://login@secure-account-update.example.com/verify/identity"))
	if res.Label != "phishing" {
		t.Fatalf("label = %q, want phishing (%+v)", res.Label, res)
	}
	if !approx(res.Probabilities["phishing"], 87.5) {
		t.Fatalf("phishing probability = %v, want 87.5", res.Probabilities["phishing"])
	}
}

func TestLoadUsesMetricsClassesWithoutLabelMap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ForestFile, stumpForest)
	writeFile(t, dir, MetricsFile, `{"accuracy": 0.5, "classes": ["benign", "phishing"]}`)

	m := Load(dir, Options{})
	if !m.Loaded() {
		t.Fatalf("expected loaded model, err=%v", m.Err())
	}
}

func TestLoadDegradedCases(t *testing.T) {
	cases := []struct {
		name  string
		setup func(dir string)
	}{
		{"empty dir", func(string) {}},
		{"no predictor", func(dir string) {
			writeFile(t, dir, LabelsFile, `["benign", "phishing"]`)
		}},
		{"feature count mismatch", func(dir string) {
			writeFile(t, dir, ForestFile, stumpForest)
			writeFile(t, dir, LabelsFile, `["benign", "phishing"]`)
			writeFile(t, dir, MetricsFile, `{"feature_count": 4}`)
		}},
		{"class count mismatch", func(dir string) {
			writeFile(t, dir, ForestFile, stumpForest)
			writeFile(t, dir, LabelsFile, `["benign", "malware", "phishing"]`)
		}},
		{"bad label index", func(dir string) {
			writeFile(t, dir, ForestFile, stumpForest)
			writeFile(t, dir, LabelsFile, `{"0": "benign", "5": "phishing"}`)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			tc.setup(dir)
			m := Load(dir, Options{})
			if m.Loaded() || m.Err() == nil {
				t.Fatalf("expected degraded model")
			}
			if got := m.Classify(features.Vector{}); got.Label != UnknownLabel {
				t.Fatalf("label = %q", got.Label)
			}
		})
	}

	if m := Load("", Options{}); !errors.Is(m.Err(), ErrNoModel) {
		t.Fatalf("expected ErrNoModel for empty dir, got %v", m.Err())
	}
}

func TestForestValidateRejectsCycles(t *testing.T) {
	f := Forest{NClasses: 2, Trees: []Tree{{Nodes: []Node{
		{Feature: 0, Threshold: 1, Left: 0, Right: 1},
		{Left: -1, Value: []float64{1, 1}},
	}}}}
	if err := f.Validate(); err == nil {
		t.Fatalf("expected self-referencing node to be rejected")
	}
}

func TestForestPredictTieGoesToLowestIndex(t *testing.T) {
	f := Forest{NClasses: 2, Trees: []Tree{{Nodes: []Node{
		{Left: -1, Value: []float64{2, 2}},
	}}}}
	idx, err := f.Predict(features.Vector{})
	if err != nil || idx != 0 {
		t.Fatalf("Predict = %d, %v", idx, err)
	}
}
