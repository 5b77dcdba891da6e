package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 🔴 Redis 存储驱动
// =============================================================================

const (
	redisGlobalPrefix = "tone:cache:global:"
	redisOwnerPrefix  = "tone:cache:owner:"
)

// hitScript 原子自增命中计数并刷新 last_accessed_at，返回新计数
// KEYS[1] 条目键，ARGV[1] 当前时间（RFC3339Nano）
var hitScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return false
end
local entry = cjson.decode(raw)
entry.hit_count = (entry.hit_count or 0) + 1
entry.last_accessed_at = ARGV[1]
local ttl = redis.call('TTL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[1], cjson.encode(entry), 'EX', ttl)
else
	redis.call('SET', KEYS[1], cjson.encode(entry))
end
return entry.hit_count
`)

// RedisStore 基于 Redis 的缓存存储
// 条目以 JSON 序列化，过期由 Redis 原生 TTL 处理
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStore 创建 Redis 存储驱动
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		logger: logger.With(zap.String("component", "redis_store")),
		now:    time.Now,
	}
}

// encodeOwner 将 owner 十六进制编码后嵌入键名。
// JWT subject 是任意字符串，可能含 ":"；原样拼接会让
// SCAN 的 owner:<id>:* 模式越界匹配到以 <id>: 为前缀的其他 owner。
func encodeOwner(owner string) string {
	return hex.EncodeToString([]byte(owner))
}

func redisKey(key, owner string) string {
	if owner == GlobalOwner {
		return redisGlobalPrefix + key
	}
	return redisOwnerPrefix + encodeOwner(owner) + ":" + key
}

// Lookup 实现 Store 接口
func (s *RedisStore) Lookup(ctx context.Context, key, owner string) (*Entry, error) {
	if owner != GlobalOwner {
		e, err := s.get(ctx, redisKey(key, owner))
		if err == nil {
			return e, nil
		}
		if !IsMiss(err) {
			return nil, err
		}
	}
	return s.get(ctx, redisKey(key, GlobalOwner))
}

func (s *RedisStore) get(ctx context.Context, fullKey string) (*Entry, error) {
	raw, err := s.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		s.logger.Warn("cache lookup failed", zap.String("key", fullKey), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// 损坏的条目按未命中处理
		s.logger.Warn("corrupt cache entry dropped", zap.String("key", fullKey), zap.Error(err))
		s.client.Del(ctx, fullKey)
		return nil, ErrMiss
	}

	// 兜底检查：TTL 漂移时过期条目仍不可见
	if entry.Expired(s.now()) {
		return nil, ErrMiss
	}
	return &entry, nil
}

// RecordHit 实现 Store 接口
func (s *RedisStore) RecordHit(ctx context.Context, key, owner string) (int64, error) {
	res, err := hitScript.Run(ctx, s.client,
		[]string{redisKey(key, owner)},
		s.now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, ErrMiss
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected script result %T", ErrUnavailable, res)
	}
	return count, nil
}

// Put 实现 Store 接口
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	ttl := stored.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// 已过期的条目没有写入价值
		return nil
	}

	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(stored.Key, stored.Owner), raw, ttl).Err(); err != nil {
		s.logger.Warn("cache put failed", zap.String("key", stored.Key), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ClearForIdentity 实现 Store 接口
func (s *RedisStore) ClearForIdentity(ctx context.Context, owner string) (int64, error) {
	if owner == GlobalOwner {
		return 0, fmt.Errorf("clear requires a non-global owner")
	}

	pattern := redisOwnerPrefix + encodeOwner(owner) + ":*"
	var removed int64

	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return removed, nil
}

// SweepExpired 实现 Store 接口
// Redis 原生 TTL 已负责物理回收，无需主动清扫
func (s *RedisStore) SweepExpired(_ context.Context) (int64, error) {
	return 0, nil
}

// Stats 实现 Store 接口
func (s *RedisStore) Stats(ctx context.Context, owner string) (Stats, error) {
	pattern := redisGlobalPrefix + "*"
	if owner != GlobalOwner {
		pattern = redisOwnerPrefix + encodeOwner(owner) + ":*"
	}

	var st Stats
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		st.TotalEntries++
		st.TotalHits += entry.HitCount
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	st.APICallsSaved = st.TotalHits
	return st, nil
}

// Close 实现 Store 接口
func (s *RedisStore) Close() error {
	return s.client.Close()
}
