package db

import (
	"fmt"

	"frog-classifier/models"
	"frog-classifier/utils"
)

// RecordStore persists prediction records and user feedback. Implementations
// exist for SQLite and MongoDB; the DB_TYPE environment variable selects one.
type RecordStore interface {
	StorePrediction(record *models.StorageRecord) error
	StoreFeedback(feedback *models.Feedback) error
	GetRecentPredictions(limit int) ([]models.StorageRecord, error)
	Close() error
}

// NewRecordStore builds the record store named by the environment.
// DB_TYPE=sqlite (the default) uses DB_DSN for the database file, while
// DB_TYPE=mongo connects to DB_URI and uses database DB_NAME.
func NewRecordStore() (RecordStore, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")

	switch dbType {
	case "sqlite":
		dsn := utils.GetEnv("DB_DSN", "storage/frog-classifier.db")
		return NewSQLiteClient(dsn)
	case "mongo":
		uri := utils.GetEnv("DB_URI", "mongodb://localhost:27017")
		name := utils.GetEnv("DB_NAME", "frog-classifier")
		return NewMongoClient(uri, name)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
