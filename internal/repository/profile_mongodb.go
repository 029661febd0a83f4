package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"profilehub-api/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBProfileRepository implements ProfileRepository using MongoDB.
// One document per (accountId, profileId) with replace-upsert on save.
type MongoDBProfileRepository struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
}

// NewMongoDBProfileRepository creates a new MongoDB profile repository.
func NewMongoDBProfileRepository(uri, database, collection string) (*MongoDBProfileRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	coll := db.Collection(collection)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "accountId", Value: 1}, {Key: "profileId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Printf("[MongoDB] Warning: failed to create index: %v", err)
	}

	log.Printf("[MongoDB] Connected to %s/%s", database, collection)
	return &MongoDBProfileRepository{
		client:     client,
		db:         db,
		collection: coll,
	}, nil
}

func profileFilter(accountID string, profileID model.ProfileID) bson.M {
	return bson.M{"accountId": accountID, "profileId": string(profileID)}
}

// GetProfile retrieves a profile document.
func (r *MongoDBProfileRepository) GetProfile(ctx context.Context, accountID string, profileID model.ProfileID) (*model.ProfileDocument, error) {
	var doc model.ProfileDocument
	err := r.collection.FindOne(ctx, profileFilter(accountID, profileID)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &doc, nil
}

// SaveProfile inserts or replaces the whole document.
func (r *MongoDBProfileRepository) SaveProfile(ctx context.Context, doc *model.ProfileDocument) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, profileFilter(doc.AccountID, doc.ProfileID), doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// UpdateProfileStats merges attributes into stats.attributes via $set,
// without touching the revision pair. Ops tooling only.
func (r *MongoDBProfileRepository) UpdateProfileStats(ctx context.Context, accountID string, profileID model.ProfileID, attrs map[string]interface{}) error {
	set := bson.M{"updated": time.Now().UTC()}
	for k, v := range attrs {
		set["stats.attributes."+k] = v
	}

	result, err := r.collection.UpdateOne(ctx, profileFilter(accountID, profileID), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update profile stats: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// AddItemToProfile inserts a single item instance via $set on its key.
func (r *MongoDBProfileRepository) AddItemToProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error {
	update := bson.M{"$set": bson.M{
		"items." + itemID: item,
		"updated":         time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, profileFilter(accountID, profileID), update)
	if err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// RemoveItemFromProfile removes a single item instance via $unset.
func (r *MongoDBProfileRepository) RemoveItemFromProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string) error {
	update := bson.M{
		"$unset": bson.M{"items." + itemID: ""},
		"$set":   bson.M{"updated": time.Now().UTC()},
	}

	result, err := r.collection.UpdateOne(ctx, profileFilter(accountID, profileID), update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// UpdateItemInProfile replaces a single item instance.
func (r *MongoDBProfileRepository) UpdateItemInProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error {
	return r.AddItemToProfile(ctx, accountID, profileID, itemID, item)
}

// GetStats returns statistics about the profile collection.
func (r *MongoDBProfileRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["status"] = "connected"

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["total_profiles"] = count

	opts := options.FindOne().SetSort(bson.D{{Key: "updated", Value: -1}})
	var doc model.ProfileDocument
	if err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&doc); err == nil {
		stats["last_update"] = doc.Updated
	}

	result := r.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: r.collection.Name()}})
	var collStats bson.M
	if err := result.Decode(&collStats); err == nil {
		if size, ok := collStats["size"].(int64); ok {
			stats["db_size_bytes"] = size
		} else if size, ok := collStats["size"].(int32); ok {
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBProfileRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Ensure MongoDBProfileRepository implements ProfileRepository
var _ ProfileRepository = (*MongoDBProfileRepository)(nil)
