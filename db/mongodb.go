package db

import (
	"context"
	"fmt"
	"time"

	"frog-classifier/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoClient(uri, dbName string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	return &MongoClient{client: client, db: client.Database(dbName)}, nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// StorePrediction stores a prediction record in the predictions collection
func (m *MongoClient) StorePrediction(record *models.StorageRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.db.Collection("predictions").InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("error storing prediction: %s", err)
	}
	return nil
}

// GetRecentPredictions retrieves prediction records, newest first. A limit
// of zero or less returns every record.
func (m *MongoClient) GetRecentPredictions(limit int) ([]models.StorageRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := m.db.Collection("predictions").Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying predictions: %s", err)
	}
	defer cursor.Close(ctx)

	var records []models.StorageRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("error decoding predictions: %s", err)
	}
	return records, nil
}

// StoreFeedback stores user feedback in the feedback collection
func (m *MongoClient) StoreFeedback(feedback *models.Feedback) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.db.Collection("feedback").InsertOne(ctx, feedback)
	if err != nil {
		return fmt.Errorf("error storing feedback: %s", err)
	}
	return nil
}
