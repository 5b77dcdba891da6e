package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// =============================================================================
// 🧪 MongoDB 驱动集成测试（需要真实实例）
// =============================================================================

// 运行方式：TONEFLOW_TEST_MONGO_URI=mongodb://localhost:27017 go test ./cache/
func newTestMongoStore(t *testing.T) *MongoStore {
	t.Helper()

	uri := os.Getenv("TONEFLOW_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TONEFLOW_TEST_MONGO_URI not set, skipping mongo integration test")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	store := NewMongoStore(client, "toneflow_test", "", nil)

	ctx := context.Background()
	require.NoError(t, store.coll.Drop(ctx))
	require.NoError(t, store.EnsureIndexes(ctx))
	t.Cleanup(func() {
		store.coll.Drop(context.Background())
		store.Close()
	})
	return store
}

func TestMongoStore_RoundTripAndHits(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()

	key := DeriveKey("hello mongo", "professional", "")
	require.NoError(t, store.Put(ctx, testEntry(key, GlobalOwner, "Good day.")))

	got, err := store.Lookup(ctx, key, GlobalOwner)
	require.NoError(t, err)
	assert.Equal(t, "Good day.", got.TransformedText)

	n, err := store.RecordHit(ctx, key, GlobalOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.RecordHit(ctx, key, GlobalOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMongoStore_ScopesAndClear(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()

	key := DeriveKey("scoped mongo", "casual", "")
	require.NoError(t, store.Put(ctx, testEntry(key, GlobalOwner, "global")))
	require.NoError(t, store.Put(ctx, testEntry(key, "user-a", "mine")))

	got, err := store.Lookup(ctx, key, "user-a")
	require.NoError(t, err)
	assert.Equal(t, "mine", got.TransformedText)

	got, err = store.Lookup(ctx, key, "user-b")
	require.NoError(t, err)
	assert.Equal(t, "global", got.TransformedText)

	removed, err := store.ClearForIdentity(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Lookup(ctx, key, GlobalOwner)
	assert.NoError(t, err)
}

func TestMongoStore_SweepExpired(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()

	stale := testEntry("stale-mongo", GlobalOwner, "old")
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Put(ctx, stale))
	require.NoError(t, store.Put(ctx, testEntry("live-mongo", GlobalOwner, "new")))

	removed, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	st, err := store.Stats(ctx, GlobalOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.TotalEntries)
}
