package frog

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// knnModel is a distance-weighted k-nearest-neighbours classifier over
// training exemplars baked into the model artifact. Neighbour votes are
// weighted by inverse distance, which also yields a natural class
// probability distribution.
type knnModel struct {
	classes   []string
	inputDim  int
	k         int
	exemplars []knnExemplar
}

type knnExemplar struct {
	Vector []float64 `json:"vector"`
	Class  int       `json:"class"`
}

type knnParams struct {
	K         int           `json:"k"`
	Exemplars []knnExemplar `json:"exemplars"`
}

func newKNNModel(artifact modelArtifact) (*knnModel, error) {
	var params knnParams
	if err := json.Unmarshal(artifact.Params, &params); err != nil {
		return nil, fmt.Errorf("failed to parse knn params: %w", err)
	}
	if params.K <= 0 {
		return nil, fmt.Errorf("knn model has invalid k=%d", params.K)
	}
	if len(params.Exemplars) == 0 {
		return nil, fmt.Errorf("knn model has no exemplars")
	}
	for i, ex := range params.Exemplars {
		if len(ex.Vector) != artifact.InputDim {
			return nil, fmt.Errorf("exemplar %d has %d features, expected %d",
				i, len(ex.Vector), artifact.InputDim)
		}
		if ex.Class < 0 || ex.Class >= len(artifact.Classes) {
			return nil, fmt.Errorf("exemplar %d references unknown class %d", i, ex.Class)
		}
	}

	return &knnModel{
		classes:   artifact.Classes,
		inputDim:  artifact.InputDim,
		k:         params.K,
		exemplars: params.Exemplars,
	}, nil
}

func (m *knnModel) Classes() []string { return m.classes }
func (m *knnModel) InputDim() int     { return m.inputDim }

func (m *knnModel) Predict(features []float64) (string, error) {
	probs, err := m.PredictProba(features)
	if err != nil {
		return "", err
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return m.classes[best], nil
}

// PredictProba accumulates inverse-distance weights of the k nearest
// exemplars per class and normalizes the result to a distribution.
func (m *knnModel) PredictProba(features []float64) ([]float64, error) {
	if len(features) != m.inputDim {
		return nil, fmt.Errorf("%w: expected %d features, got %d",
			ErrDimensionMismatch, m.inputDim, len(features))
	}

	type neighbour struct {
		distance float64
		class    int
	}
	neighbours := make([]neighbour, len(m.exemplars))
	for i, ex := range m.exemplars {
		neighbours[i] = neighbour{
			distance: euclideanDistance(features, ex.Vector),
			class:    ex.Class,
		}
	}
	sort.Slice(neighbours, func(i, j int) bool {
		return neighbours[i].distance < neighbours[j].distance
	})

	k := m.k
	if k > len(neighbours) {
		k = len(neighbours)
	}

	weights := make([]float64, len(m.classes))
	var total float64
	for _, n := range neighbours[:k] {
		w := 1 / (n.distance + 1e-10)
		weights[n.class] += w
		total += w
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights, nil
}

func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
