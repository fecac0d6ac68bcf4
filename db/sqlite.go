package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"frog-classifier/models"
	"frog-classifier/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	// Create the directory if it doesn't exist (cross-platform)
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	err = createTables(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createPredictionsTable := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        filename TEXT NOT NULL UNIQUE,
        original_filename TEXT,
        prediction TEXT NOT NULL,
        top3 TEXT,
        probabilities TEXT,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(timestamp);
    `

	createFeedbackTable := `
    CREATE TABLE IF NOT EXISTS feedback (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        filename TEXT,
        predicted_species TEXT NOT NULL,
        actual_species TEXT NOT NULL,
        confidence REAL NOT NULL DEFAULT 0,
        notes TEXT,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON feedback(timestamp);
    `

	_, err := db.Exec(createPredictionsTable)
	if err != nil {
		return fmt.Errorf("error creating predictions table: %s", err)
	}

	_, err = db.Exec(createFeedbackTable)
	if err != nil {
		return fmt.Errorf("error creating feedback table: %s", err)
	}

	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StorePrediction stores a prediction record in the database
func (db *SQLiteClient) StorePrediction(record *models.StorageRecord) error {
	var top3JSON *string
	if record.Top3 != nil {
		top3Bytes, err := json.Marshal(record.Top3)
		if err != nil {
			return fmt.Errorf("error marshaling top3: %s", err)
		}
		top3Str := string(top3Bytes)
		top3JSON = &top3Str
	}

	var probabilitiesJSON *string
	if record.Probabilities != nil {
		probBytes, err := json.Marshal(record.Probabilities)
		if err != nil {
			return fmt.Errorf("error marshaling probabilities: %s", err)
		}
		probStr := string(probBytes)
		probabilitiesJSON = &probStr
	}

	_, err := db.db.Exec(`
		INSERT INTO predictions (
			filename, original_filename, prediction, top3, probabilities, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)`,
		record.Filename,
		record.OriginalFilename,
		record.Prediction,
		top3JSON,
		probabilitiesJSON,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error storing prediction: %s", err)
	}
	return nil
}

// StoreFeedback stores user feedback in the database
func (db *SQLiteClient) StoreFeedback(feedback *models.Feedback) error {
	_, err := db.db.Exec(`
		INSERT INTO feedback (
			filename, predicted_species, actual_species, confidence, notes, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)`,
		feedback.Filename,
		feedback.PredictedSpecies,
		feedback.ActualSpecies,
		feedback.Confidence,
		feedback.Notes,
		feedback.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error storing feedback: %s", err)
	}
	return nil
}

// GetRecentPredictions retrieves prediction records, newest first. A limit
// of zero or less returns every record.
func (db *SQLiteClient) GetRecentPredictions(limit int) ([]models.StorageRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := db.db.Query(`
		SELECT filename, original_filename, prediction, top3, probabilities, timestamp
		FROM predictions
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying predictions: %s", err)
	}
	defer rows.Close()

	var records []models.StorageRecord
	for rows.Next() {
		var r models.StorageRecord
		var top3JSON *string
		var probabilitiesJSON *string

		err := rows.Scan(
			&r.Filename,
			&r.OriginalFilename,
			&r.Prediction,
			&top3JSON,
			&probabilitiesJSON,
			&r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning prediction: %s", err)
		}

		if top3JSON != nil {
			if err := json.Unmarshal([]byte(*top3JSON), &r.Top3); err != nil {
				return nil, fmt.Errorf("error unmarshaling top3: %s", err)
			}
		}
		if probabilitiesJSON != nil {
			if err := json.Unmarshal([]byte(*probabilitiesJSON), &r.Probabilities); err != nil {
				return nil, fmt.Errorf("error unmarshaling probabilities: %s", err)
			}
		}

		records = append(records, r)
	}

	return records, nil
}
