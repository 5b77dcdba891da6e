package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// =============================================================================
// 🍃 MongoDB 存储驱动
// =============================================================================

// mongoCacheDoc tone_cache 集合的文档结构
type mongoCacheDoc struct {
	ID               string    `bson:"_id"`
	CacheKey         string    `bson:"cache_key"`
	Owner            string    `bson:"owner"`
	InputText        string    `bson:"input_text"`
	TargetStyle      string    `bson:"target_style"`
	Context          string    `bson:"context,omitempty"`
	TransformedText  string    `bson:"transformed_text"`
	Model            string    `bson:"model,omitempty"`
	PromptTokens     int       `bson:"prompt_tokens"`
	CompletionTokens int       `bson:"completion_tokens"`
	TotalTokens      int       `bson:"total_tokens"`
	HitCount         int64     `bson:"hit_count"`
	CreatedAt        time.Time `bson:"created_at"`
	LastAccessedAt   time.Time `bson:"last_accessed_at"`
	ExpiresAt        time.Time `bson:"expires_at"`
}

// MongoStore 基于 MongoDB 的缓存存储
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
	now    func() time.Time
}

// NewMongoStore 创建 MongoDB 存储驱动，collection 为空时使用 tone_cache
func NewMongoStore(client *mongo.Client, database, collection string, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = "tone_cache"
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: logger.With(zap.String("component", "mongo_store")),
		now:    time.Now,
	}
}

// EnsureIndexes 创建 (cache_key, owner) 复合唯一索引与 expires_at 索引
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cache_key", Value: 1}, {Key: "owner", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_tone_cache_key_owner"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_tone_cache_expires_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create tone_cache indexes: %w", err)
	}
	return nil
}

// Lookup 实现 Store 接口
func (s *MongoStore) Lookup(ctx context.Context, key, owner string) (*Entry, error) {
	now := s.now()

	if owner != GlobalOwner {
		e, err := s.findLive(ctx, key, owner, now)
		if err == nil {
			return e, nil
		}
		if !IsMiss(err) {
			return nil, err
		}
	}
	return s.findLive(ctx, key, GlobalOwner, now)
}

func (s *MongoStore) findLive(ctx context.Context, key, owner string, now time.Time) (*Entry, error) {
	filter := bson.M{
		"cache_key":  key,
		"owner":      owner,
		"expires_at": bson.M{"$gt": now},
	}

	var doc mongoCacheDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMiss
		}
		s.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return docToEntry(&doc), nil
}

// RecordHit 实现 Store 接口
// $inc 在文档级原子执行，返回更新后的命中计数
func (s *MongoStore) RecordHit(ctx context.Context, key, owner string) (int64, error) {
	filter := bson.M{"cache_key": key, "owner": owner}
	update := bson.M{
		"$inc": bson.M{"hit_count": 1},
		"$set": bson.M{"last_accessed_at": s.now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoCacheDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrMiss
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return doc.HitCount, nil
}

// Put 实现 Store 接口
func (s *MongoStore) Put(ctx context.Context, entry *Entry) error {
	doc := entryToDoc(entry)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	filter := bson.M{"cache_key": doc.CacheKey, "owner": doc.Owner}
	_, err := s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		// 并发 upsert 竞争唯一索引时重放一次即覆盖成功
		if mongo.IsDuplicateKeyError(err) {
			_, err = s.coll.ReplaceOne(ctx, filter, doc)
		}
		if err != nil {
			s.logger.Warn("cache put failed", zap.String("key", entry.Key), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// ClearForIdentity 实现 Store 接口
func (s *MongoStore) ClearForIdentity(ctx context.Context, owner string) (int64, error) {
	if owner == GlobalOwner {
		return 0, fmt.Errorf("clear requires a non-global owner")
	}

	res, err := s.coll.DeleteMany(ctx, bson.M{"owner": owner})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.DeletedCount, nil
}

// SweepExpired 实现 Store 接口
func (s *MongoStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.now()}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.DeletedCount > 0 {
		s.logger.Info("expired cache entries swept", zap.Int64("count", res.DeletedCount))
	}
	return res.DeletedCount, nil
}

// Stats 实现 Store 接口
func (s *MongoStore) Stats(ctx context.Context, owner string) (Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner": owner}}},
		{{Key: "$group", Value: bson.M{
			"_id":           nil,
			"total_entries": bson.M{"$sum": 1},
			"total_hits":    bson.M{"$sum": "$hit_count"},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		TotalEntries int64 `bson:"total_entries"`
		TotalHits    int64 `bson:"total_hits"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(results) == 0 {
		return Stats{}, nil
	}

	return Stats{
		TotalEntries:  results[0].TotalEntries,
		TotalHits:     results[0].TotalHits,
		APICallsSaved: results[0].TotalHits,
	}, nil
}

// Close 实现 Store 接口
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func docToEntry(doc *mongoCacheDoc) *Entry {
	return &Entry{
		ID:               doc.ID,
		Key:              doc.CacheKey,
		Owner:            doc.Owner,
		InputText:        doc.InputText,
		TargetStyle:      doc.TargetStyle,
		Context:          doc.Context,
		TransformedText:  doc.TransformedText,
		Model:            doc.Model,
		PromptTokens:     doc.PromptTokens,
		CompletionTokens: doc.CompletionTokens,
		TotalTokens:      doc.TotalTokens,
		HitCount:         doc.HitCount,
		CreatedAt:        doc.CreatedAt,
		LastAccessedAt:   doc.LastAccessedAt,
		ExpiresAt:        doc.ExpiresAt,
	}
}

func entryToDoc(e *Entry) *mongoCacheDoc {
	return &mongoCacheDoc{
		ID:               e.ID,
		CacheKey:         e.Key,
		Owner:            e.Owner,
		InputText:        e.InputText,
		TargetStyle:      e.TargetStyle,
		Context:          e.Context,
		TransformedText:  e.TransformedText,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.TotalTokens,
		HitCount:         e.HitCount,
		CreatedAt:        e.CreatedAt,
		LastAccessedAt:   e.LastAccessedAt,
		ExpiresAt:        e.ExpiresAt,
	}
}
