package frog

import (
	"encoding/json"
	"fmt"
)

// centroidModel is a nearest-centroid classifier: one mean vector per class,
// the closest centroid wins. It deliberately does not implement
// ProbabilityModel, so callers must handle models without a probability
// distribution.
type centroidModel struct {
	classes   []string
	inputDim  int
	centroids [][]float64
}

type centroidParams struct {
	Centroids [][]float64 `json:"centroids"`
}

func newCentroidModel(artifact modelArtifact) (*centroidModel, error) {
	var params centroidParams
	if err := json.Unmarshal(artifact.Params, &params); err != nil {
		return nil, fmt.Errorf("failed to parse centroid params: %w", err)
	}
	if len(params.Centroids) != len(artifact.Classes) {
		return nil, fmt.Errorf("centroid model has %d centroids for %d classes",
			len(params.Centroids), len(artifact.Classes))
	}
	for i, c := range params.Centroids {
		if len(c) != artifact.InputDim {
			return nil, fmt.Errorf("centroid %d has %d features, expected %d",
				i, len(c), artifact.InputDim)
		}
	}

	return &centroidModel{
		classes:   artifact.Classes,
		inputDim:  artifact.InputDim,
		centroids: params.Centroids,
	}, nil
}

func (m *centroidModel) Classes() []string { return m.classes }
func (m *centroidModel) InputDim() int     { return m.inputDim }

func (m *centroidModel) Predict(features []float64) (string, error) {
	if len(features) != m.inputDim {
		return "", fmt.Errorf("%w: expected %d features, got %d",
			ErrDimensionMismatch, m.inputDim, len(features))
	}

	best := 0
	bestDistance := euclideanDistance(features, m.centroids[0])
	for i := 1; i < len(m.centroids); i++ {
		if d := euclideanDistance(features, m.centroids[i]); d < bestDistance {
			bestDistance = d
			best = i
		}
	}
	return m.classes[best], nil
}
