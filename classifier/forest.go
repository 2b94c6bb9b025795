package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"url-guardian/features"
)

// Node is one decision-tree node. Internal nodes send x[Feature] <= Threshold
// to Left; leaves have Left == -1 and carry per-class Value weights.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// Tree is a flattened decision tree rooted at node 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a tree ensemble exported from a fitted random forest.
type Forest struct {
	NClasses int    `json:"n_classes"`
	Trees    []Tree `json:"trees"`
}

// LoadForest reads and validates a forest.json file.
func LoadForest(path string, nClasses int) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read forest: %w", err)
	}
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if f.NClasses == 0 {
		f.NClasses = nClasses
	}
	if f.NClasses != nClasses {
		return nil, fmt.Errorf("forest has %d classes, vocabulary has %d", f.NClasses, nClasses)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every tree terminates and every leaf covers all classes.
func (f *Forest) Validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left < 0 {
				if len(n.Value) != f.NClasses {
					return fmt.Errorf("tree %d leaf %d has %d values, want %d", ti, ni, len(n.Value), f.NClasses)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= features.Count {
				return fmt.Errorf("tree %d node %d splits on feature %d", ti, ni, n.Feature)
			}
			// children always follow their parent, so traversal terminates
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}

// PredictProba averages the normalized leaf distributions of all trees.
func (f *Forest) PredictProba(v features.Vector) ([]float64, error) {
	out := make([]float64, f.NClasses)
	for _, t := range f.Trees {
		leaf := t.leaf(v)
		var sum float64
		for _, w := range leaf.Value {
			sum += w
		}
		if sum == 0 {
			continue
		}
		for i, w := range leaf.Value {
			out[i] += w / sum
		}
	}
	n := float64(len(f.Trees))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// Predict returns the most probable class; the lowest index wins ties.
func (f *Forest) Predict(v features.Vector) (int, error) {
	proba, err := f.PredictProba(v)
	if err != nil {
		return 0, err
	}
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return best, nil
}

func (t Tree) leaf(v features.Vector) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n
		}
		if v[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
