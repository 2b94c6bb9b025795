package classifier

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"url-guardian/features"
)

// ONNXPredictor runs a classifier exported to ONNX (for example a scikit-learn
// forest converted without zipmap), with outputs for the label and the
// per-class probabilities.
type ONNXPredictor struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	label    *ort.Tensor[int64]
	proba    *ort.Tensor[float32]
	nClasses int

	mu sync.Mutex
}

// LoadONNX initializes the runtime and opens the session for modelPath.
func LoadONNX(modelPath string, nClasses int, bundleDir string, opts Options) (*ONNXPredictor, error) {
	opts.applyDefaults()
	if nClasses <= 0 {
		return nil, errors.New("class count must be positive")
	}

	libPath := opts.SharedLibraryPath
	if libPath == "" {
		libPath = resolveSharedLibraryPath(bundleDir)
	}
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, features.Count))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	label, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate label tensor: %w", err)
	}
	proba, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(nClasses)))
	if err != nil {
		input.Destroy()
		label.Destroy()
		return nil, fmt.Errorf("allocate probability tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{opts.InputName},
		[]string{opts.LabelOutput, opts.ProbabilityOutput},
		[]ort.Value{input},
		[]ort.Value{label, proba},
		nil,
	)
	if err != nil {
		input.Destroy()
		label.Destroy()
		proba.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXPredictor{
		session:  session,
		input:    input,
		label:    label,
		proba:    proba,
		nClasses: nClasses,
	}, nil
}

func (p *ONNXPredictor) run(v features.Vector) (int, []float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return 0, nil, errors.New("onnx session closed")
	}
	copy(p.input.GetData(), v.Slice())
	if err := p.session.Run(); err != nil {
		return 0, nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := p.proba.GetData()
	out := make([]float64, p.nClasses)
	for i := range out {
		if i < len(raw) {
			out[i] = float64(raw[i])
		}
	}
	return int(p.label.GetData()[0]), out, nil
}

// PredictWithProba returns the label and probability outputs of one session run.
func (p *ONNXPredictor) PredictWithProba(v features.Vector) (int, []float64, error) {
	return p.run(v)
}

// Predict returns the class index emitted by the label output.
func (p *ONNXPredictor) Predict(v features.Vector) (int, error) {
	idx, _, err := p.run(v)
	return idx, err
}

// PredictProba returns the probability output, one entry per class.
func (p *ONNXPredictor) PredictProba(v features.Vector) ([]float64, error) {
	_, proba, err := p.run(v)
	return proba, err
}

// Close destroys the session and its tensors.
func (p *ONNXPredictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	err := errors.Join(
		p.session.Destroy(),
		p.input.Destroy(),
		p.label.Destroy(),
		p.proba.Destroy(),
	)
	p.session, p.input, p.label, p.proba = nil, nil, nil, nil
	return err
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins over probing.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"onnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
		".",
		"/usr/local/lib",
		"/usr/lib",
		"/opt/homebrew/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
