package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"url-guardian/features"
)

// Bundle file names.
const (
	ForestFile  = "forest.json"
	ONNXFile    = "model.onnx"
	LabelsFile  = "label_map.json"
	MetricsFile = "model_metrics.json"
)

// Options tune how an ONNX bundle is opened.
type Options struct {
	InputName         string
	LabelOutput       string
	ProbabilityOutput string
	SharedLibraryPath string
}

func (o *Options) applyDefaults() {
	if o.InputName == "" {
		o.InputName = "float_input"
	}
	if o.LabelOutput == "" {
		o.LabelOutput = "label"
	}
	if o.ProbabilityOutput == "" {
		o.ProbabilityOutput = "probabilities"
	}
}

// Load opens the model bundle in dir. It always returns a usable Model;
// failures are logged and leave the handle in degraded mode.
func Load(dir string, opts Options) *Model {
	m, err := loadBundle(dir, opts)
	if err != nil {
		log.Printf("[MODEL] loading bundle %q failed: %v", dir, err)
		log.Printf("[MODEL] running without ML model")
		return Degraded(err)
	}
	log.Printf("[MODEL] loaded bundle %s (accuracy %.1f%%, classes %v)", dir, m.Accuracy(), m.labels)
	return m
}

func loadBundle(dir string, opts Options) (*Model, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("bundle dir is empty: %w", ErrNoModel)
	}
	opts.applyDefaults()

	metrics, err := loadMetrics(filepath.Join(dir, MetricsFile))
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	if metrics.FeatureCount != 0 && metrics.FeatureCount != features.Count {
		return nil, fmt.Errorf("model expects %d features, extractor produces %d", metrics.FeatureCount, features.Count)
	}

	labels, err := loadLabels(filepath.Join(dir, LabelsFile))
	switch {
	case errors.Is(err, os.ErrNotExist) && len(metrics.Classes) > 0:
		labels = metrics.Classes
	case err != nil:
		return nil, fmt.Errorf("load labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, errors.New("label vocabulary is empty")
	}

	var p Predictor
	forestPath := filepath.Join(dir, ForestFile)
	onnxPath := filepath.Join(dir, ONNXFile)
	switch {
	case fileExists(forestPath):
		p, err = LoadForest(forestPath, len(labels))
	case fileExists(onnxPath):
		p, err = LoadONNX(onnxPath, len(labels), dir, opts)
	default:
		return nil, fmt.Errorf("neither %s nor %s in %s: %w", ForestFile, ONNXFile, dir, ErrNoModel)
	}
	if err != nil {
		return nil, err
	}

	return NewModel(p, labels, metrics), nil
}

// loadMetrics treats a missing metrics file as zero metrics.
func loadMetrics(path string) (Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metrics{}, nil
		}
		return Metrics{}, err
	}
	var m Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return Metrics{}, err
	}
	return m, nil
}

// loadLabels accepts either ["benign", ...] or {"0": "benign", ...}.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	var byIndex map[string]string
	if err := json.Unmarshal(data, &byIndex); err != nil {
		return nil, err
	}

	out := make([]string, len(byIndex))
	for k, v := range byIndex {
		idx, convErr := strconv.Atoi(k)
		if convErr != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
		}
		if idx < 0 || idx >= len(byIndex) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
