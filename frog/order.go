package frog

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFeatureOrder reads the canonical feature ordering exported alongside
// the model. The file is a JSON array of feature names whose positions
// define the model's input layout.
func LoadFeatureOrder(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature order file: %w", err)
	}

	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to parse feature order file: %w", err)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("feature order file is empty")
	}

	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate feature name %q in order file", name)
		}
		seen[name] = struct{}{}
	}
	return order, nil
}
