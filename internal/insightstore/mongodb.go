package insightstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	// URI is the connection string.
	URI string

	// Database name. Default: insightd.
	Database string

	// Collection name. Default: insights.
	Collection string

	// ConnectTimeout bounds the initial connection and ping.
	ConnectTimeout time.Duration
}

// mongoDocument is the MongoDB document representation of a record.
type mongoDocument struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	PatternType string    `bson:"pattern_type"`
	InsightType string    `bson:"insight_type"`
	Insight     string    `bson:"insight"`
	Evidence    string    `bson:"evidence"`
	Strength    int       `bson:"strength"`
	Occurrences int       `bson:"occurrences"`
	FirstSeen   time.Time `bson:"first_seen"`
	LastSeen    time.Time `bson:"last_seen"`
}

// MongoStore is a MongoDB-backed Store.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	owned      bool
}

// NewMongoStore connects to MongoDB and ensures indexes.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: mongodb URI is required", ErrConnectionFailed)
	}
	if cfg.Database == "" {
		cfg.Database = "insightd"
	}
	if cfg.Collection == "" {
		cfg.Collection = "insights"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	s, err := NewMongoStoreFromCollection(ctx, client.Database(cfg.Database).Collection(cfg.Collection))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.client = client
	s.owned = true
	return s, nil
}

// NewMongoStoreFromCollection wraps an existing collection.
func NewMongoStoreFromCollection(ctx context.Context, collection *mongo.Collection) (*MongoStore, error) {
	s := &MongoStore{collection: collection}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) migrate(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "pattern_type", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "strength", Value: -1}, {Key: "occurrences", Value: -1}},
		},
	})
	if err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Upsert implements Store.
func (s *MongoStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	// RecordID escapes its parts, so distinct pairs never share an _id.
	id := RecordID(obs.UserID, obs.PatternType)
	// BSON dates carry millisecond precision.
	now := obs.ObservedAt.Truncate(time.Millisecond)
	update := bson.M{
		"$inc": bson.M{"occurrences": 1},
		"$set": bson.M{
			"insight_type": obs.InsightType,
			"insight":      obs.Insight,
			"evidence":     obs.Evidence,
			"strength":     obs.Strength,
			"last_seen":    now,
		},
		"$setOnInsert": bson.M{
			"user_id":      obs.UserID,
			"pattern_type": obs.PatternType,
			"first_seen":   now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc mongoDocument
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced to insert; the loser retries as an update.
		err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb upsert: %w", err)
	}
	return doc.toRecord(), nil
}

// Delete implements Store.
func (s *MongoStore) Delete(ctx context.Context, userID, patternType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(userID, patternType); err != nil {
		return err
	}
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": RecordID(userID, patternType)}); err != nil {
		return fmt.Errorf("mongodb delete: %w", err)
	}
	return nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "strength", Value: -1},
		{Key: "occurrences", Value: -1},
		{Key: "pattern_type", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb list: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb list: %w", err)
	}

	records := make([]Record, 0, len(docs))
	for i := range docs {
		records = append(records, *docs[i].toRecord())
	}
	return records, nil
}

// Close implements Store.
func (s *MongoStore) Close() error {
	if !s.owned || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (d *mongoDocument) toRecord() *Record {
	return &Record{
		ID:          d.ID,
		UserID:      d.UserID,
		PatternType: d.PatternType,
		InsightType: d.InsightType,
		Insight:     d.Insight,
		Evidence:    d.Evidence,
		Strength:    d.Strength,
		Occurrences: d.Occurrences,
		FirstSeen:   d.FirstSeen.UTC(),
		LastSeen:    d.LastSeen.UTC(),
	}
}

var _ Store = (*MongoStore)(nil)
