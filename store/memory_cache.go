package store

import (
	"context"
	"sync"

	"github.com/rushteam/vidrec/core"
)

// MemoryCache 是内存实现的相似缓存，用于测试/开发以及单实例部署。
// Get / Put 两端都做深拷贝。
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*core.CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*core.CacheEntry)}
}

func (m *MemoryCache) Name() string { return "memory" }

func (m *MemoryCache) Get(ctx context.Context, source core.VideoRef) (*core.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[source.LikeKey()]
	if !ok {
		return nil, core.ErrCacheMiss
	}
	return cloneEntry(e), nil
}

func (m *MemoryCache) Put(ctx context.Context, entry *core.CacheEntry) error {
	if entry == nil || !entry.Source.Valid() {
		return core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: entry requires a valid source")
	}
	cp := cloneEntry(entry)
	cp.Renumber()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Source.LikeKey()] = cp
	return nil
}

// Len 返回条目数。
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ core.SimilarityCache = (*MemoryCache)(nil)
