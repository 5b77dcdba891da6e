package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// 🧠 内存存储驱动（开发与测试用）
// =============================================================================

// MemoryStore 互斥锁保护的内存缓存存储
// 进程重启后数据丢失，仅用于本地开发与测试
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]*Entry
	now     func() time.Time
}

type memoryKey struct {
	key   string
	owner string
}

// NewMemoryStore 创建内存存储驱动
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[memoryKey]*Entry),
		now:     time.Now,
	}
}

// Lookup 实现 Store 接口
func (s *MemoryStore) Lookup(_ context.Context, key, owner string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()

	if owner != GlobalOwner {
		if e, ok := s.entries[memoryKey{key, owner}]; ok && !e.Expired(now) {
			return cloneEntry(e), nil
		}
	}
	if e, ok := s.entries[memoryKey{key, GlobalOwner}]; ok && !e.Expired(now) {
		return cloneEntry(e), nil
	}
	return nil, ErrMiss
}

// RecordHit 实现 Store 接口
func (s *MemoryStore) RecordHit(_ context.Context, key, owner string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[memoryKey{key, owner}]
	if !ok || e.Expired(s.now()) {
		return 0, ErrMiss
	}
	e.HitCount++
	e.LastAccessedAt = s.now()
	return e.HitCount, nil
}

// Put 实现 Store 接口
func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneEntry(entry)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.entries[memoryKey{entry.Key, entry.Owner}] = stored
	return nil
}

// ClearForIdentity 实现 Store 接口
func (s *MemoryStore) ClearForIdentity(_ context.Context, owner string) (int64, error) {
	if owner == GlobalOwner {
		return 0, fmt.Errorf("clear requires a non-global owner")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for k := range s.entries {
		if k.owner == owner {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// SweepExpired 实现 Store 接口
func (s *MemoryStore) SweepExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Stats 实现 Store 接口
func (s *MemoryStore) Stats(_ context.Context, owner string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for k, e := range s.entries {
		if k.owner != owner {
			continue
		}
		st.TotalEntries++
		st.TotalHits += e.HitCount
	}
	st.APICallsSaved = st.TotalHits
	return st, nil
}

// Close 实现 Store 接口
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[memoryKey]*Entry)
	return nil
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	return &c
}
