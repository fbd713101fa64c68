// Package mongodb contains a checkpoint.Store implementation using MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/get-eventually/go-subscribe/checkpoint"
)

// DefaultCollectionName is the collection used by a CheckpointStore
// when none has been specified.
const DefaultCollectionName = "checkpoints"

var _ checkpoint.Store = CheckpointStore{}

// CheckpointStore is a checkpoint.Store implementation using MongoDB,
// with one document per Subscription, keyed by the Subscription id.
//
// Writes use the $max operator, so a Checkpoint never moves backwards.
type CheckpointStore struct {
	Client       *mongo.Client
	DatabaseName string

	// CollectionName defaults to DefaultCollectionName if empty.
	CollectionName string
}

type checkpointDocument struct {
	SubscriptionID string    `bson:"_id"`
	Position       *int64    `bson:"position,omitempty"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (d checkpointDocument) checkpoint() checkpoint.Checkpoint {
	if d.Position == nil {
		return checkpoint.Empty(d.SubscriptionID)
	}

	return checkpoint.At(d.SubscriptionID, uint64(*d.Position))
}

func (s CheckpointStore) collection() *mongo.Collection {
	name := s.CollectionName
	if name == "" {
		name = DefaultCollectionName
	}

	return s.Client.
		Database(s.DatabaseName, &options.DatabaseOptions{
			// Checkpoints are read when a Subscription starts: make sure
			// the last acknowledged write is observed.
			ReadConcern:    readconcern.Majority(),
			ReadPreference: readpref.Primary(),
			WriteConcern:   writeconcern.Majority(),
		}).
		Collection(name)
}

// GetLastCheckpoint implements the checkpoint.Store interface.
func (s CheckpointStore) GetLastCheckpoint(ctx context.Context, subscriptionID string) (checkpoint.Checkpoint, error) {
	var doc checkpointDocument

	err := s.collection().FindOne(ctx, bson.M{"_id": subscriptionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return checkpoint.Empty(subscriptionID), nil
	}

	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("mongodb.CheckpointStore: failed to find checkpoint, %w", err)
	}

	return doc.checkpoint(), nil
}

// StoreCheckpoint implements the checkpoint.Store interface.
//
// Writes are applied immediately, so the force flag has no effect.
func (s CheckpointStore) StoreCheckpoint(
	ctx context.Context,
	cp checkpoint.Checkpoint,
	_ bool,
) (checkpoint.Checkpoint, error) {
	position, err := cp.Int64Position()
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("mongodb.CheckpointStore: %w", err)
	}

	if position == nil {
		return s.GetLastCheckpoint(ctx, cp.SubscriptionID)
	}

	update := bson.M{
		"$max":         bson.M{"position": *position},
		"$currentDate": bson.M{"updated_at": true},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc checkpointDocument

	err = s.collection().FindOneAndUpdate(ctx, bson.M{"_id": cp.SubscriptionID}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two concurrent upserts of a new document: the other one won,
		// so the update can be applied to its document.
		err = s.collection().FindOneAndUpdate(ctx, bson.M{"_id": cp.SubscriptionID}, update, opts).Decode(&doc)
	}

	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("mongodb.CheckpointStore: failed to update checkpoint, %w", err)
	}

	return doc.checkpoint(), nil
}
