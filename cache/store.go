package cache

import (
	"context"
	"errors"
	"time"
)

// 哨兵错误
var (
	// ErrMiss 缓存未命中（含条目已过期的情形）
	ErrMiss = errors.New("tone cache miss")

	// ErrUnavailable 底层存储不可用；调用方按未命中处理（fail-open）
	ErrUnavailable = errors.New("tone cache unavailable")
)

// IsMiss 判断是否为缓存未命中错误
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// IsUnavailable 判断是否为存储不可用错误
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// GlobalOwner 全局作用域的 owner 值：空字符串表示条目对所有调用者可见
const GlobalOwner = ""

// Entry 缓存条目
// Owner 为空时属于全局作用域；非空时仅对该身份及全局回退查询可见。
// 条目创建后除 HitCount 与 LastAccessedAt 外不可变。
type Entry struct {
	ID               string    `json:"id"`
	Key              string    `json:"key"`
	Owner            string    `json:"owner"`
	InputText        string    `json:"input_text"`
	TargetStyle      string    `json:"target_style"`
	Context          string    `json:"context,omitempty"`
	TransformedText  string    `json:"transformed_text"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	HitCount         int64     `json:"hit_count"`
	CreatedAt        time.Time `json:"created_at"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Expired 判断条目在给定时刻是否已过期（expires_at <= now）
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats 单一作用域的缓存统计
type Stats struct {
	TotalEntries int64 `json:"total_entries"`
	TotalHits    int64 `json:"total_hits"`
	// 命中即省去一次上游调用
	APICallsSaved int64 `json:"estimated_api_calls_saved"`
}

// Store 语气缓存存储契约
//
// 所有实现必须满足：
//   - (key, owner) 上的唯一性由存储层约束保证
//   - RecordHit 的自增为原子操作，并发命中不丢失计数
//   - Put 对并发创建者采用 last-write-wins，不报冲突
//   - 过期条目对 Lookup 逻辑上不存在，无论是否已物理删除
type Store interface {
	// Lookup 查找条目。owner 非空时先查 (key, owner)，未命中回退
	// (key, global)；owner 为空时只查全局作用域。
	// 未命中或条目过期返回 ErrMiss，存储故障返回 ErrUnavailable。
	Lookup(ctx context.Context, key, owner string) (*Entry, error)

	// RecordHit 原子自增命中计数并刷新 last_accessed_at，
	// 返回自增后的计数。owner 必须是 Lookup 解析出的条目归属。
	RecordHit(ctx context.Context, key, owner string) (int64, error)

	// Put 插入条目；(key, owner) 已存在时静默覆盖（last-write-wins）。
	Put(ctx context.Context, entry *Entry) error

	// ClearForIdentity 删除该身份的全部条目，返回删除数量。
	// 永不触碰全局条目；owner 为空时报错。
	ClearForIdentity(ctx context.Context, owner string) (int64, error)

	// SweepExpired 删除所有作用域中已过期的条目，返回删除数量。
	SweepExpired(ctx context.Context) (int64, error)

	// Stats 返回单一作用域的统计：owner 为空时统计全局作用域，
	// 否则只统计该身份自己的条目（不混入全局回退）。
	Stats(ctx context.Context, owner string) (Stats, error)

	// Close 释放底层连接
	Close() error
}
