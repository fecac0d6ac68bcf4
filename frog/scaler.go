package frog

import (
	"encoding/json"
	"fmt"
	"os"
)

// FeatureScaler holds per-feature standardization parameters exported from
// the training run. Applying it maps raw feature vectors into the space the
// model was fitted in.
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// LoadScaler reads scaler parameters from a JSON artifact.
func LoadScaler(path string) (*FeatureScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler file: %w", err)
	}

	var scaler FeatureScaler
	if err := json.Unmarshal(data, &scaler); err != nil {
		return nil, fmt.Errorf("failed to parse scaler file: %w", err)
	}
	if len(scaler.Mean) != len(scaler.Stddev) {
		return nil, fmt.Errorf("scaler mean/stddev length mismatch: %d vs %d",
			len(scaler.Mean), len(scaler.Stddev))
	}
	return &scaler, nil
}

// Transform standardizes a feature vector as (x - mean) / stddev. Near-zero
// standard deviations are clamped to 1 so constant features stay finite.
func (s *FeatureScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(features))
	}

	scaled := make([]float64, len(features))
	for i, v := range features {
		std := s.Stddev[i]
		if std < 1e-10 {
			std = 1.0
		}
		scaled[i] = (v - s.Mean[i]) / std
	}
	return scaled, nil
}
