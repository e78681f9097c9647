// Package store 提供 core 包存储边界接口的实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
//	var catalog core.CatalogStore = store.NewMemoryStore()
//	var index core.VectorIndex = store.NewBreakerIndex(store.NewMemoryVectorIndex(), cfg, logger)
//	var cache core.SimilarityCache = store.NewRedisCache(client, prefix, ttl)
//
// 每个实现各自持有自己的锁，任何实现都不会在持锁期间调用另一个存储。
package store

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rushteam/vidrec/core"
)

// cacheKey 是相似缓存条目的 KV key：<prefix><video_id>@<instance_domain>。
func cacheKey(prefix string, source core.VideoRef) string {
	return prefix + source.LikeKey()
}

func encodeEntry(entry *core.CacheEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*core.CacheEntry, error) {
	var entry core.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// cloneEntry 深拷贝条目（内存实现在读写两端都拷贝，避免调用方修改共享数据）。
func cloneEntry(e *core.CacheEntry) *core.CacheEntry {
	if e == nil {
		return nil
	}
	cp := &core.CacheEntry{Source: e.Source, ComputedAt: e.ComputedAt}
	cp.Items = make([]core.SimilarEntry, len(e.Items))
	for i, it := range e.Items {
		if it.Meta != nil {
			m := *it.Meta
			it.Meta = &m
		}
		cp.Items[i] = it
	}
	return cp
}

func refsKeys(refs []core.VideoRef) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if !r.Valid() {
			continue
		}
		k := r.LikeKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
