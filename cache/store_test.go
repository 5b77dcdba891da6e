package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🧪 存储契约测试：对所有驱动运行同一套断言
// =============================================================================

func newTestGormStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store := NewGormStore(db, nil)
	require.NoError(t, store.AutoMigrate())
	return store
}

func newTestRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, nil)
}

func storeDrivers(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"gorm":   newTestGormStore(t),
		"redis":  newTestRedisStore(t),
	}
}

func testEntry(key, owner, text string) *Entry {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Entry{
		Key:             key,
		Owner:           owner,
		InputText:       "hello there",
		TargetStyle:     "professional",
		TransformedText: text,
		Model:           "llama-3.3-70b-versatile",
		TotalTokens:     42,
		CreatedAt:       now,
		LastAccessedAt:  now,
		ExpiresAt:       now.Add(30 * 24 * time.Hour),
	}
}

func TestStore_PutLookupRoundTrip(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("hello there", "professional", "")

			require.NoError(t, store.Put(ctx, testEntry(key, GlobalOwner, "Greetings.")))

			got, err := store.Lookup(ctx, key, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, "Greetings.", got.TransformedText)
			assert.Equal(t, int64(0), got.HitCount)
			assert.NotEmpty(t, got.ID)
		})
	}
}

func TestStore_MissReturnsErrMiss(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Lookup(context.Background(), "no-such-key", GlobalOwner)
			assert.True(t, IsMiss(err))

			_, err = store.RecordHit(context.Background(), "no-such-key", GlobalOwner)
			assert.True(t, IsMiss(err))
		})
	}
}

func TestStore_RecordHitIncrements(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("count me", "casual", "")
			require.NoError(t, store.Put(ctx, testEntry(key, GlobalOwner, "yo")))

			n, err := store.RecordHit(ctx, key, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			n, err = store.RecordHit(ctx, key, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			got, err := store.Lookup(ctx, key, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, int64(2), got.HitCount)
		})
	}
}

func TestStore_OwnerScopeFallback(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("scoped", "formal", "")

			require.NoError(t, store.Put(ctx, testEntry(key, GlobalOwner, "global result")))
			require.NoError(t, store.Put(ctx, testEntry(key, "user-a", "a's result")))

			// user-a 命中自己的条目
			got, err := store.Lookup(ctx, key, "user-a")
			require.NoError(t, err)
			assert.Equal(t, "a's result", got.TransformedText)

			// user-b 没有专属条目，回退到全局
			got, err = store.Lookup(ctx, key, "user-b")
			require.NoError(t, err)
			assert.Equal(t, "global result", got.TransformedText)

			// 匿名调用只见全局
			got, err = store.Lookup(ctx, key, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, "global result", got.TransformedText)
		})
	}
}

func TestStore_OwnerEntryInvisibleToOthers(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("private", "formal", "")

			require.NoError(t, store.Put(ctx, testEntry(key, "user-a", "a only")))

			_, err := store.Lookup(ctx, key, "user-b")
			assert.True(t, IsMiss(err))

			_, err = store.Lookup(ctx, key, GlobalOwner)
			assert.True(t, IsMiss(err))
		})
	}
}

func TestStore_ExpiredEntryIsMiss(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("stale", "formal", "")

			e := testEntry(key, GlobalOwner, "old news")
			e.ExpiresAt = time.Now().Add(-time.Hour)
			require.NoError(t, store.Put(ctx, e))

			_, err := store.Lookup(ctx, key, GlobalOwner)
			assert.True(t, IsMiss(err))
		})
	}
}

func TestStore_PutOverwritesExisting(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("race", "formal", "")

			require.NoError(t, store.Put(ctx, testEntry(key, GlobalOwner, "first")))
			require.NoError(t, store.Put(ctx, testEntry(key, GlobalOwner, "second")))

			got, err := store.Lookup(ctx, key, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, "second", got.TransformedText)

			st, err := store.Stats(ctx, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, int64(1), st.TotalEntries)
		})
	}
}

func TestStore_ClearForIdentity(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, testEntry("k1", "user-a", "one")))
			require.NoError(t, store.Put(ctx, testEntry("k2", "user-a", "two")))
			require.NoError(t, store.Put(ctx, testEntry("k1", GlobalOwner, "global")))
			require.NoError(t, store.Put(ctx, testEntry("k1", "user-b", "b's")))

			removed, err := store.ClearForIdentity(ctx, "user-a")
			require.NoError(t, err)
			assert.Equal(t, int64(2), removed)

			// 全局与其他身份的条目不受影响
			_, err = store.Lookup(ctx, "k1", GlobalOwner)
			require.NoError(t, err)
			got, err := store.Lookup(ctx, "k1", "user-b")
			require.NoError(t, err)
			assert.Equal(t, "b's", got.TransformedText)
		})
	}
}

func TestStore_OwnerIDWithSeparatorStaysIsolated(t *testing.T) {
	// JWT subject 是任意字符串，可能含 ":" 等分隔符；
	// 一个 owner 的清理与统计绝不能波及以它为前缀的其他 owner
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, testEntry("k1", "a", "a's")))
			require.NoError(t, store.Put(ctx, testEntry("k1", "a:b", "a:b's")))
			require.NoError(t, store.Put(ctx, testEntry("k2", "urn:tenant:1", "tenant one")))
			require.NoError(t, store.Put(ctx, testEntry("k2", "urn:tenant:12", "tenant twelve")))

			// 互不可见
			got, err := store.Lookup(ctx, "k1", "a:b")
			require.NoError(t, err)
			assert.Equal(t, "a:b's", got.TransformedText)

			st, err := store.Stats(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, int64(1), st.TotalEntries)
			st, err = store.Stats(ctx, "urn:tenant:1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), st.TotalEntries)

			// 清理 a 只删 a 自己的条目
			removed, err := store.ClearForIdentity(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			got, err = store.Lookup(ctx, "k1", "a:b")
			require.NoError(t, err)
			assert.Equal(t, "a:b's", got.TransformedText)

			removed, err = store.ClearForIdentity(ctx, "urn:tenant:1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			got, err = store.Lookup(ctx, "k2", "urn:tenant:12")
			require.NoError(t, err)
			assert.Equal(t, "tenant twelve", got.TransformedText)
		})
	}
}

func TestStore_ClearRejectsGlobalOwner(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.ClearForIdentity(context.Background(), GlobalOwner)
			assert.Error(t, err)
		})
	}
}

func TestStore_StatsPerScope(t *testing.T) {
	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, testEntry("k1", GlobalOwner, "g1")))
			require.NoError(t, store.Put(ctx, testEntry("k2", GlobalOwner, "g2")))
			require.NoError(t, store.Put(ctx, testEntry("k3", "user-a", "a1")))

			_, err := store.RecordHit(ctx, "k1", GlobalOwner)
			require.NoError(t, err)
			_, err = store.RecordHit(ctx, "k1", GlobalOwner)
			require.NoError(t, err)
			_, err = store.RecordHit(ctx, "k3", "user-a")
			require.NoError(t, err)

			global, err := store.Stats(ctx, GlobalOwner)
			require.NoError(t, err)
			assert.Equal(t, int64(2), global.TotalEntries)
			assert.Equal(t, int64(2), global.TotalHits)
			assert.Equal(t, int64(2), global.APICallsSaved)

			// owner 统计不混入全局条目
			scoped, err := store.Stats(ctx, "user-a")
			require.NoError(t, err)
			assert.Equal(t, int64(1), scoped.TotalEntries)
			assert.Equal(t, int64(1), scoped.TotalHits)
		})
	}
}

func TestStore_SweepExpired(t *testing.T) {
	// redis 依赖原生 TTL 回收，这里只验证主动清扫的驱动
	for name, store := range map[string]Store{
		"memory": NewMemoryStore(),
		"gorm":   newTestGormStore(t),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			live := testEntry("live", GlobalOwner, "fresh")
			require.NoError(t, store.Put(ctx, live))

			stale := testEntry("stale", GlobalOwner, "old")
			stale.ExpiresAt = time.Now().Add(-time.Minute)
			require.NoError(t, store.Put(ctx, stale))

			removed, err := store.SweepExpired(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			_, err = store.Lookup(ctx, "live", GlobalOwner)
			assert.NoError(t, err)
		})
	}
}
