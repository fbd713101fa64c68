package postgres

// Option can be used to change the configuration of an object.
type Option[T any] interface {
	apply(T)
}

type option[T any] func(T)

func newOption[T any](f func(T)) option[T] { return option[T](f) }

func (apply option[T]) apply(val T) { apply(val) }

// DefaultCheckpointsTableName is the default table a CheckpointStore points to,
// created by RunMigrations.
const DefaultCheckpointsTableName = "subscription_checkpoints"

// WithCheckpointsTableName allows you to specify a different table name
// that a CheckpointStore should manage.
//
// The table must have the same schema of the one created by RunMigrations.
func WithCheckpointsTableName(tableName string) Option[*CheckpointStore] {
	return newOption(func(store *CheckpointStore) {
		store.tableName = tableName
	})
}
