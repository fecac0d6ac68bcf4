package models

import "time"

// PredictionRequest is the body of a feature-vector prediction call. The
// features must be ordered according to the canonical feature-column list
// the model was trained with.
type PredictionRequest struct {
	Features []float64 `json:"features"`
}

// TopPrediction is one entry of a top-k list.
type TopPrediction struct {
	Species    string  `json:"species" bson:"species"`
	Confidence float64 `json:"confidence" bson:"confidence"`
}

// PredictionResponse carries the predicted label and, when the model
// supports probability output, the top-3 list and full probability vector.
// The storage fields are only populated for audio predictions with
// persistence enabled.
type PredictionResponse struct {
	Prediction         string             `json:"prediction"`
	Top3               []TopPrediction    `json:"top_3,omitempty"`
	Probabilities      map[string]float64 `json:"probabilities,omitempty"`
	Filename           string             `json:"filename,omitempty"`
	SignedURL          string             `json:"signed_url,omitempty"`
	SignedURLExpiresIn int                `json:"signed_url_expires_in,omitempty"`
}

// StorageRecord is the metadata row written alongside every persisted
// audio upload.
type StorageRecord struct {
	Filename         string             `json:"filename" bson:"filename"`
	OriginalFilename string             `json:"original_filename" bson:"original_filename"`
	Prediction       string             `json:"prediction" bson:"prediction"`
	Top3             []TopPrediction    `json:"top_3_predictions" bson:"top_3_predictions"`
	Probabilities    map[string]float64 `json:"all_probabilities" bson:"all_probabilities"`
	Timestamp        time.Time          `json:"timestamp" bson:"timestamp"`
}

// Feedback records a user correction for a stored prediction.
type Feedback struct {
	Filename         string    `json:"filename" bson:"filename"`
	PredictedSpecies string    `json:"predicted_species" bson:"predicted_species"`
	ActualSpecies    string    `json:"actual_species" bson:"actual_species"`
	Confidence       float64   `json:"confidence" bson:"confidence"`
	Notes            string    `json:"notes,omitempty" bson:"notes,omitempty"`
	Timestamp        time.Time `json:"timestamp" bson:"timestamp"`
}
