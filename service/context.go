package service

import (
	"context"
	"time"

	"frog-classifier/db"
	"frog-classifier/frog"
	"frog-classifier/models"
)

// ObjectStore is the slice of object storage the prediction service needs:
// uploading recordings and issuing time-limited download links for them.
// The storage client satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Notifier receives completed predictions for fan-out to connected clients.
type Notifier interface {
	NotifyPrediction(response *models.PredictionResponse)
}

// InferenceContext bundles the model artifacts and backing services loaded
// at startup. It is assembled once, never mutated afterwards, and shared by
// every request.
//
// Only Adapter is mandatory. A nil FeatureOrder disables the audio pipeline
// (feature-vector requests still work), and a nil Objects or Records
// degrades persistence to a no-op.
type InferenceContext struct {
	Adapter      *frog.Adapter
	FeatureOrder []string
	Objects      ObjectStore
	Records      db.RecordStore
}
