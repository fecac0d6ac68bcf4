package frog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrDimensionMismatch is returned when an input vector does not match the
// model's expected feature count.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Model is the minimal classifier contract: map a feature vector to a class
// label.
type Model interface {
	// Predict returns the winning class label for a feature vector whose
	// length equals InputDim.
	Predict(features []float64) (string, error)

	// Classes returns the label set in the model artifact's order.
	Classes() []string

	// InputDim returns the expected feature vector length.
	InputDim() int
}

// ProbabilityModel is an optional capability: models that can attach a
// per-class probability distribution to a prediction implement it alongside
// Model. Callers discover it with a type assertion.
type ProbabilityModel interface {
	Model

	// PredictProba returns one probability per class, aligned with
	// Classes() and summing to 1.
	PredictProba(features []float64) ([]float64, error)
}

// Prediction is a ranked class with its probability.
type Prediction struct {
	Species    string  `json:"species"`
	Confidence float64 `json:"confidence"`
}

// Adapter wraps a model with input validation, optional feature scaling,
// and top-k ranking. It is the only path inference requests take to the
// underlying model.
type Adapter struct {
	model  Model
	scaler *FeatureScaler
}

// NewAdapter builds an Adapter around a loaded model. The scaler may be nil,
// in which case features pass through unscaled.
func NewAdapter(model Model, scaler *FeatureScaler) *Adapter {
	return &Adapter{model: model, scaler: scaler}
}

// InputDim returns the model's expected feature vector length.
func (a *Adapter) InputDim() int {
	return a.model.InputDim()
}

// Classes returns the model's label set.
func (a *Adapter) Classes() []string {
	return a.model.Classes()
}

// HasProbabilities reports whether the wrapped model can produce a class
// probability distribution.
func (a *Adapter) HasProbabilities() bool {
	_, ok := a.model.(ProbabilityModel)
	return ok
}

func (a *Adapter) prepare(features []float64) ([]float64, error) {
	if len(features) != a.model.InputDim() {
		return nil, fmt.Errorf("%w: expected %d features, got %d",
			ErrDimensionMismatch, a.model.InputDim(), len(features))
	}
	if a.scaler == nil {
		return features, nil
	}
	return a.scaler.Transform(features)
}

// Predict classifies a raw feature vector and returns the winning label.
func (a *Adapter) Predict(features []float64) (string, error) {
	prepared, err := a.prepare(features)
	if err != nil {
		return "", err
	}
	return a.model.Predict(prepared)
}

// PredictTop classifies a raw feature vector and, when the model supports
// probabilities, also returns the top three classes by probability and the
// full distribution keyed by class. Probability ties rank the class with
// the lower artifact index first.
func (a *Adapter) PredictTop(features []float64) (string, []Prediction, map[string]float64, error) {
	prepared, err := a.prepare(features)
	if err != nil {
		return "", nil, nil, err
	}

	probModel, ok := a.model.(ProbabilityModel)
	if !ok {
		label, err := a.model.Predict(prepared)
		return label, nil, nil, err
	}

	probs, err := probModel.PredictProba(prepared)
	if err != nil {
		return "", nil, nil, err
	}

	classes := a.model.Classes()
	ranked := make([]Prediction, len(classes))
	distribution := make(map[string]float64, len(classes))
	for i, class := range classes {
		ranked[i] = Prediction{Species: class, Confidence: probs[i]}
		distribution[class] = probs[i]
	}

	// Stable sort keeps artifact order among equal probabilities.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	top := ranked
	if len(top) > 3 {
		top = top[:3]
	}
	return top[0].Species, top, distribution, nil
}

// modelArtifact is the on-disk JSON envelope shared by every model type.
type modelArtifact struct {
	Type     string          `json:"type"`
	Classes  []string        `json:"classes"`
	InputDim int             `json:"input_dim"`
	Params   json.RawMessage `json:"params"`
}

// LoadModel reads a model artifact from disk and constructs the matching
// implementation.
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if len(artifact.Classes) == 0 {
		return nil, fmt.Errorf("model artifact has no classes")
	}
	if artifact.InputDim <= 0 {
		return nil, fmt.Errorf("model artifact has invalid input dimension %d", artifact.InputDim)
	}

	switch artifact.Type {
	case "knn":
		return newKNNModel(artifact)
	case "centroid":
		return newCentroidModel(artifact)
	default:
		return nil, fmt.Errorf("unknown model type %q", artifact.Type)
	}
}
