// Package eventuallyfirestore contains a checkpoint.Store implementation
// using Google Cloud Firestore.
package eventuallyfirestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/get-eventually/go-subscribe/checkpoint"
)

// DefaultCollection is the collection used by a CheckpointStore
// when none has been specified.
const DefaultCollection = "Checkpoints"

// maxTransactionAttempts bounds the retries of a contended checkpoint write.
const maxTransactionAttempts = 20

var _ checkpoint.Store = CheckpointStore{}

// CheckpointStore is a checkpoint.Store implementation using Firestore,
// with one document per Subscription.
//
// Writes are performed in a transaction, so that a Checkpoint never
// moves backwards even with concurrent writers.
type CheckpointStore struct {
	Client *firestore.Client

	// Collection is the name of the collection holding the Checkpoints.
	// Defaults to DefaultCollection if empty.
	Collection string
}

type checkpointDocument struct {
	Position  *int64    `firestore:"position"`
	UpdatedAt time.Time `firestore:"updated_at,serverTimestamp"`
}

func (s CheckpointStore) document(subscriptionID string) *firestore.DocumentRef {
	collection := s.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	return s.Client.Collection(collection).Doc(subscriptionID)
}

func toCheckpoint(subscriptionID string, doc *firestore.DocumentSnapshot) (checkpoint.Checkpoint, error) {
	var data checkpointDocument
	if err := doc.DataTo(&data); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("failed to decode checkpoint document, %w", err)
	}

	if data.Position == nil {
		return checkpoint.Empty(subscriptionID), nil
	}

	return checkpoint.At(subscriptionID, uint64(*data.Position)), nil
}

// GetLastCheckpoint implements the checkpoint.Store interface.
func (s CheckpointStore) GetLastCheckpoint(ctx context.Context, subscriptionID string) (checkpoint.Checkpoint, error) {
	doc, err := s.document(subscriptionID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return checkpoint.Empty(subscriptionID), nil
	}

	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("eventuallyfirestore.CheckpointStore: failed to get checkpoint, %w", err)
	}

	cp, err := toCheckpoint(subscriptionID, doc)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("eventuallyfirestore.CheckpointStore: %w", err)
	}

	return cp, nil
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
		return checkpoint.Checkpoint{}, fmt.Errorf("eventuallyfirestore.CheckpointStore: %w", err)
	}

	ref := s.document(cp.SubscriptionID)

	var stored checkpoint.Checkpoint

	err = s.Client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		stored = checkpoint.Empty(cp.SubscriptionID)

		doc, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to get checkpoint, %w", err)
		}

		if err == nil {
			if stored, err = toCheckpoint(cp.SubscriptionID, doc); err != nil {
				return err
			}
		}

		if !cp.Advances(stored) {
			return nil
		}

		if err := tx.Set(ref, checkpointDocument{Position: position}); err != nil {
			return fmt.Errorf("failed to update checkpoint, %w", err)
		}

		stored = cp

		return nil
	}, firestore.MaxAttempts(maxTransactionAttempts))
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("eventuallyfirestore.CheckpointStore: transaction failed, %w", err)
	}

	return stored, nil
}
