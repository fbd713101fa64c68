package checkpoint

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// StoreSuite is a full testing suite for a checkpoint.Store instance.
//
// Every test uses its own random Subscription id, so the same backing
// storage can be shared by all the tests in the suite.
type StoreSuite struct {
	suite.Suite

	storeFactory   func() Store
	store          Store  // NOTE: this instance is initialized in SetupTest.
	subscriptionID string // NOTE: this value is initialized in SetupTest.
}

// NewStoreSuite creates a new Checkpoint Store testing suite using the provided
// checkpoint.Store type.
func NewStoreSuite(factory func() Store) *StoreSuite {
	return &StoreSuite{storeFactory: factory}
}

// SetupTest creates a new, fresh Checkpoint Store instance for each test in the suite.
func (ss *StoreSuite) SetupTest() {
	ss.store = ss.storeFactory()
	ss.subscriptionID = "subscription-" + uuid.NewString()
}

// TestEmpty checks that an unknown Subscription has an empty Checkpoint.
func (ss *StoreSuite) TestEmpty() {
	cp, err := ss.store.GetLastCheckpoint(context.Background(), ss.subscriptionID)
	ss.Require().NoError(err)
	ss.Equal(Empty(ss.subscriptionID), cp)
	ss.True(cp.IsEmpty())
}

// TestStoreAndGet checks that persisted Checkpoints can be read back.
func (ss *StoreSuite) TestStoreAndGet() {
	ctx := context.Background()

	for _, position := range []uint64{1, 5, 120} {
		stored, err := ss.store.StoreCheckpoint(ctx, At(ss.subscriptionID, position), false)
		ss.Require().NoError(err)
		ss.Equal(At(ss.subscriptionID, position), stored)

		cp, err := ss.store.GetLastCheckpoint(ctx, ss.subscriptionID)
		ss.Require().NoError(err)
		ss.Equal(At(ss.subscriptionID, position), cp)
	}
}

// TestNeverMovesBackwards checks that a lower position does not overwrite
// a higher one already persisted.
func (ss *StoreSuite) TestNeverMovesBackwards() {
	ctx := context.Background()

	_, err := ss.store.StoreCheckpoint(ctx, At(ss.subscriptionID, 100), false)
	ss.Require().NoError(err)

	stored, err := ss.store.StoreCheckpoint(ctx, At(ss.subscriptionID, 50), true)
	ss.Require().NoError(err)
	ss.Equal(At(ss.subscriptionID, 100), stored)

	cp, err := ss.store.GetLastCheckpoint(ctx, ss.subscriptionID)
	ss.Require().NoError(err)
	ss.Equal(At(ss.subscriptionID, 100), cp)
}

// TestSubscriptionsAreIsolated checks that Checkpoints of different
// Subscriptions do not interfere with each other.
func (ss *StoreSuite) TestSubscriptionsAreIsolated() {
	ctx := context.Background()
	other := ss.subscriptionID + "-other"

	_, err := ss.store.StoreCheckpoint(ctx, At(ss.subscriptionID, 10), false)
	ss.Require().NoError(err)

	cp, err := ss.store.GetLastCheckpoint(ctx, other)
	ss.Require().NoError(err)
	ss.True(cp.IsEmpty())
}

// TestConcurrentWrites checks that concurrent writers leave the highest
// position persisted.
func (ss *StoreSuite) TestConcurrentWrites() {
	ctx := context.Background()

	var wg sync.WaitGroup

	for position := uint64(1); position <= 20; position++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := ss.store.StoreCheckpoint(ctx, At(ss.subscriptionID, position), false)
			ss.NoError(err)
		}()
	}

	wg.Wait()

	cp, err := ss.store.GetLastCheckpoint(ctx, ss.subscriptionID)
	ss.Require().NoError(err)
	ss.Equal(At(ss.subscriptionID, 20), cp)
}
