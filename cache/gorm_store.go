package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 💾 GORM 存储驱动（postgres / mysql / sqlite）
// =============================================================================

// toneCacheRecord tone_cache 表结构
// (cache_key, owner) 上的复合唯一索引保证每个作用域至多一条
type toneCacheRecord struct {
	ID               string `gorm:"primaryKey;size:36"`
	CacheKey         string `gorm:"size:64;not null;uniqueIndex:idx_tone_cache_key_owner,priority:1"`
	Owner            string `gorm:"size:128;not null;default:'';uniqueIndex:idx_tone_cache_key_owner,priority:2"`
	InputText        string `gorm:"type:text"`
	TargetStyle      string `gorm:"size:64"`
	Context          string `gorm:"type:text"`
	TransformedText  string `gorm:"type:text"`
	Model            string `gorm:"size:128"`
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	HitCount         int64 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	LastAccessedAt   time.Time
	ExpiresAt        time.Time `gorm:"index"`
}

// TableName 指定表名
func (toneCacheRecord) TableName() string { return "tone_cache" }

// GormStore 基于 GORM 的缓存存储
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewGormStore 创建 GORM 存储驱动
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_store")),
		now:    time.Now,
	}
}

// AutoMigrate 确保表结构与索引最新
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&toneCacheRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate tone_cache: %w", err)
	}
	return nil
}

// Lookup 实现 Store 接口
func (s *GormStore) Lookup(ctx context.Context, key, owner string) (*Entry, error) {
	now := s.now()

	// owner 作用域优先
	if owner != GlobalOwner {
		rec, err := s.findLive(ctx, key, owner, now)
		if err == nil {
			return recordToEntry(rec), nil
		}
		if !errors.Is(err, ErrMiss) {
			return nil, err
		}
	}

	// 回退全局作用域
	rec, err := s.findLive(ctx, key, GlobalOwner, now)
	if err != nil {
		return nil, err
	}
	return recordToEntry(rec), nil
}

func (s *GormStore) findLive(ctx context.Context, key, owner string, now time.Time) (*toneCacheRecord, error) {
	var rec toneCacheRecord
	err := s.db.WithContext(ctx).
		Where("cache_key = ? AND owner = ? AND expires_at > ?", key, owner, now).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMiss
		}
		s.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &rec, nil
}

// RecordHit 实现 Store 接口
// 通过 SQL 表达式自增，并发命中不丢失计数
func (s *GormStore) RecordHit(ctx context.Context, key, owner string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&toneCacheRecord{}).
		Where("cache_key = ? AND owner = ?", key, owner).
		Updates(map[string]interface{}{
			"hit_count":        gorm.Expr("hit_count + ?", 1),
			"last_accessed_at": s.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrMiss
	}

	var rec toneCacheRecord
	err := s.db.WithContext(ctx).Select("hit_count").
		Where("cache_key = ? AND owner = ?", key, owner).
		First(&rec).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec.HitCount, nil
}

// Put 实现 Store 接口
// (cache_key, owner) 冲突时整行覆盖：并发未命中双方的结果语义等价
func (s *GormStore) Put(ctx context.Context, entry *Entry) error {
	rec := entryToRecord(entry)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}, {Name: "owner"}},
		UpdateAll: true,
	}).Create(rec).Error
	if err != nil {
		s.logger.Warn("cache put failed", zap.String("key", entry.Key), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ClearForIdentity 实现 Store 接口
func (s *GormStore) ClearForIdentity(ctx context.Context, owner string) (int64, error) {
	if owner == GlobalOwner {
		return 0, fmt.Errorf("clear requires a non-global owner")
	}

	res := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Delete(&toneCacheRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

// SweepExpired 实现 Store 接口
func (s *GormStore) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&toneCacheRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired cache entries swept", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Stats 实现 Store 接口
func (s *GormStore) Stats(ctx context.Context, owner string) (Stats, error) {
	var out struct {
		TotalEntries int64
		TotalHits    int64
	}
	err := s.db.WithContext(ctx).Model(&toneCacheRecord{}).
		Select("COUNT(*) AS total_entries, COALESCE(SUM(hit_count), 0) AS total_hits").
		Where("owner = ?", owner).
		Scan(&out).Error
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Stats{
		TotalEntries:  out.TotalEntries,
		TotalHits:     out.TotalHits,
		APICallsSaved: out.TotalHits,
	}, nil
}

// Close 实现 Store 接口
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// =============================================================================
// 🔄 记录与条目转换
// =============================================================================

func recordToEntry(rec *toneCacheRecord) *Entry {
	return &Entry{
		ID:               rec.ID,
		Key:              rec.CacheKey,
		Owner:            rec.Owner,
		InputText:        rec.InputText,
		TargetStyle:      rec.TargetStyle,
		Context:          rec.Context,
		TransformedText:  rec.TransformedText,
		Model:            rec.Model,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		TotalTokens:      rec.TotalTokens,
		HitCount:         rec.HitCount,
		CreatedAt:        rec.CreatedAt,
		LastAccessedAt:   rec.LastAccessedAt,
		ExpiresAt:        rec.ExpiresAt,
	}
}

func entryToRecord(e *Entry) *toneCacheRecord {
	return &toneCacheRecord{
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
