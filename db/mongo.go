package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voice-mood/models"
)

const (
	voiceAnalysisCollection = "voiceanalyses"
	mentalResultCollection  = "mentalresults"
)

type MongoClient struct {
	client     *mongo.Client
	collection *mongo.Collection
	mental     *mongo.Collection
}

type mongoAnalysis struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	models.VoiceAnalysis `bson:",inline"`
}

type mongoMentalResult struct {
	ID                        primitive.ObjectID `bson:"_id,omitempty"`
	models.MentalHealthResult `bson:",inline"`
}

var ownerTimeIndex = mongo.IndexModel{
	Keys: bson.D{{Key: "userEmail", Value: 1}, {Key: "timestamp", Value: -1}},
}

func NewMongoClient(ctx context.Context, uri, database string) (*MongoClient, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI is not set")
	}
	if database == "" {
		database = "voice_mood"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	collection := client.Database(database).Collection(voiceAnalysisCollection)
	mental := client.Database(database).Collection(mentalResultCollection)
	for _, c := range []*mongo.Collection{collection, mental} {
		if _, err := c.Indexes().CreateOne(connectCtx, ownerTimeIndex); err != nil {
			client.Disconnect(context.Background())
			return nil, fmt.Errorf("error creating index on %s: %s", c.Name(), err)
		}
	}

	return &MongoClient{client: client, collection: collection, mental: mental}, nil
}

func (db *MongoClient) Close() error {
	if db.client != nil {
		return db.client.Disconnect(context.Background())
	}
	return nil
}

func (db *MongoClient) SaveAnalysis(ctx context.Context, analysis *models.VoiceAnalysis) error {
	if err := prepareRecord(analysis); err != nil {
		return err
	}

	res, err := db.collection.InsertOne(ctx, mongoAnalysis{VoiceAnalysis: *analysis})
	if err != nil {
		return fmt.Errorf("error storing voice analysis: %s", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		analysis.ID = oid.Hex()
	}
	return nil
}

func (db *MongoClient) ListAnalyses(ctx context.Context, email string, limit int) ([]models.VoiceAnalysis, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cursor, err := db.collection.Find(ctx, bson.M{"userEmail": email}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying voice analyses: %s", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoAnalysis
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding voice analyses: %s", err)
	}

	analyses := make([]models.VoiceAnalysis, len(docs))
	for i, doc := range docs {
		analyses[i] = doc.VoiceAnalysis
		analyses[i].ID = doc.ID.Hex()
	}
	return analyses, nil
}

func (db *MongoClient) SaveMentalResult(ctx context.Context, result *models.MentalHealthResult) error {
	if err := prepareMentalResult(result); err != nil {
		return err
	}

	res, err := db.mental.InsertOne(ctx, mongoMentalResult{MentalHealthResult: *result})
	if err != nil {
		return fmt.Errorf("error storing mental health result: %s", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		result.ID = oid.Hex()
	}
	return nil
}

func (db *MongoClient) ListMentalResults(ctx context.Context, email string, limit int) ([]models.MentalHealthResult, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cursor, err := db.mental.Find(ctx, bson.M{"userEmail": email}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying mental health results: %s", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoMentalResult
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding mental health results: %s", err)
	}

	results := make([]models.MentalHealthResult, len(docs))
	for i, doc := range docs {
		results[i] = doc.MentalHealthResult
		results[i].ID = doc.ID.Hex()
	}
	return results, nil
}
