// Package storage persists capability registrations in MongoDB so an
// operator does not have to re-register every source on each restart. The
// store is only read at startup and written by the admin API; the in-memory
// registry remains the single source of truth during a search.
package storage

import (
	"context"
	"fmt"
	"time"

	"unisearch/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// CapabilityDocument is the persisted form of one capability registration.
type CapabilityDocument struct {
	ID         string           `json:"id" bson:"capabilityId"`
	SourceName string           `json:"sourceName" bson:"sourceName"`
	Capability model.Capability `json:"capability" bson:"capability"`
	CreatedAt  time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// CapabilityStoreInterface defines the persistence operations the server and
// admin API depend on.
type CapabilityStoreInterface interface {
	Save(ctx context.Context, c model.Capability) error
	LoadAll(ctx context.Context) ([]model.Capability, error)
	Delete(ctx context.Context, sourceName string) error
}

// CapabilityStore is the MongoDB-backed implementation.
type CapabilityStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewCapabilityStore creates the store and its indexes.
func NewCapabilityStore(db *mongo.Database, logger *zap.Logger) (*CapabilityStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &CapabilityStore{
		collection: db.Collection("capabilities"),
		logger:     logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := store.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sourceName", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sourceName index: %w", err)
	}

	return store, nil
}

// Save upserts a capability document keyed by source name, matching the
// registry's last-write-wins rule.
func (s *CapabilityStore) Save(ctx context.Context, c model.Capability) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"capability": c,
			"updatedAt":  now,
		},
		"$setOnInsert": bson.M{
			"capabilityId": uuid.New().String(),
			"sourceName":   c.SourceName,
			"createdAt":    now,
		},
	}
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"sourceName": c.SourceName},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save capability %q: %w", c.SourceName, err)
	}
	s.logger.Info("capability persisted", zap.String("source", c.SourceName))
	return nil
}

// LoadAll returns every persisted capability, sorted by source name.
func (s *CapabilityStore) LoadAll(ctx context.Context) ([]model.Capability, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "sourceName", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list capabilities: %w", err)
	}
	defer cursor.Close(ctx)

	var out []model.Capability
	for cursor.Next(ctx) {
		var doc CapabilityDocument
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Warn("skipping undecodable capability document", zap.Error(err))
			continue
		}
		out = append(out, doc.Capability)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate capabilities: %w", err)
	}
	return out, nil
}

// Delete removes the persisted document for sourceName, if any.
func (s *CapabilityStore) Delete(ctx context.Context, sourceName string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"sourceName": sourceName})
	if err != nil {
		return fmt.Errorf("failed to delete capability %q: %w", sourceName, err)
	}
	return nil
}
