// Package postgres contains a checkpoint.Store implementation targeting
// PostgreSQL databases, using the pgx driver.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/get-eventually/go-subscribe/checkpoint"
	"github.com/get-eventually/go-subscribe/postgres/internal"
)

var _ checkpoint.Store = new(CheckpointStore)

// CheckpointStore is a checkpoint.Store implementation targeted to PostgreSQL databases.
//
// Checkpoints are stored in a single table, one row per Subscription.
// Writes never move a Checkpoint backwards, even with concurrent writers.
type CheckpointStore struct {
	conn      *pgxpool.Pool
	tableName string
}

// NewCheckpointStore returns a new CheckpointStore using the provided connection pool.
func NewCheckpointStore(conn *pgxpool.Pool, options ...Option[*CheckpointStore]) *CheckpointStore {
	store := &CheckpointStore{
		conn:      conn,
		tableName: DefaultCheckpointsTableName,
	}

	for _, opt := range options {
		opt.apply(store)
	}

	return store
}

func (s *CheckpointStore) table() string {
	return pgx.Identifier{s.tableName}.Sanitize()
}

func toCheckpoint(subscriptionID string, position *int64) checkpoint.Checkpoint {
	if position == nil {
		return checkpoint.Empty(subscriptionID)
	}

	return checkpoint.At(subscriptionID, uint64(*position))
}

// GetLastCheckpoint implements the checkpoint.Store interface.
func (s *CheckpointStore) GetLastCheckpoint(ctx context.Context, subscriptionID string) (checkpoint.Checkpoint, error) {
	var position *int64

	err := s.conn.QueryRow(ctx,
		`SELECT position FROM `+s.table()+` WHERE subscription_id = $1`,
		subscriptionID,
	).Scan(&position)

	if errors.Is(err, pgx.ErrNoRows) {
		return checkpoint.Empty(subscriptionID), nil
	}

	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("postgres.CheckpointStore: failed to query checkpoint: %w", err)
	}

	return toCheckpoint(subscriptionID, position), nil
}

// StoreCheckpoint implements the checkpoint.Store interface.
//
// Writes are applied immediately, so the force flag has no effect.
func (s *CheckpointStore) StoreCheckpoint(
	ctx context.Context,
	cp checkpoint.Checkpoint,
	_ bool,
) (checkpoint.Checkpoint, error) {
	value, err := cp.Int64Position()
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("postgres.CheckpointStore: failed to store checkpoint: %w", err)
	}

	var position *int64

	// NOTE: GREATEST ignores NULL values, so an empty checkpoint never
	// overwrites an existing position.
	err = s.conn.QueryRow(ctx,
		`INSERT INTO `+s.table()+` AS c (subscription_id, position, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (subscription_id) DO UPDATE
		SET position = GREATEST(c.position, EXCLUDED.position), updated_at = NOW()
		RETURNING position`,
		cp.SubscriptionID, value,
	).Scan(&position)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("postgres.CheckpointStore: failed to store checkpoint: %w", err)
	}

	return toCheckpoint(cp.SubscriptionID, position), nil
}

// Reset moves the Checkpoint of a Subscription to the specified one,
// even if that means moving it backwards, e.g. to rebuild a Projection.
// An empty Checkpoint makes the Subscription start from the beginning
// of the Event log.
//
// The previous Checkpoint is returned. Reset must not be used while the
// Subscription is running.
func (s *CheckpointStore) Reset(ctx context.Context, cp checkpoint.Checkpoint) (checkpoint.Checkpoint, error) {
	value, err := cp.Int64Position()
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("postgres.CheckpointStore: failed to reset checkpoint: %w", err)
	}

	previous := checkpoint.Empty(cp.SubscriptionID)

	err = internal.RunTransaction(ctx, s.conn, pgx.TxOptions{IsoLevel: pgx.Serializable},
		func(ctx context.Context, tx pgx.Tx) error {
			var position *int64

			err := tx.QueryRow(ctx,
				`SELECT position FROM `+s.table()+` WHERE subscription_id = $1 FOR UPDATE`,
				cp.SubscriptionID,
			).Scan(&position)

			switch {
			case errors.Is(err, pgx.ErrNoRows):
			case err != nil:
				return fmt.Errorf("failed to query previous checkpoint: %w", err)
			default:
				previous = toCheckpoint(cp.SubscriptionID, position)
			}

			if _, err := tx.Exec(ctx,
				`INSERT INTO `+s.table()+` (subscription_id, position, updated_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (subscription_id) DO UPDATE
				SET position = EXCLUDED.position, updated_at = NOW()`,
				cp.SubscriptionID, value,
			); err != nil {
				return fmt.Errorf("failed to update checkpoint: %w", err)
			}

			return nil
		},
	)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("postgres.CheckpointStore: failed to reset checkpoint: %w", err)
	}

	return previous, nil
}
