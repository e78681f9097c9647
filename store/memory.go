package store

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/rushteam/vidrec/core"
)

// MemoryStore 是内存实现的目录/点赞/向量存储，用于测试/开发/原型。
// 同时实现 core.CatalogStore、core.MetadataStore、core.LikeStore、core.EmbeddingStore。
// 进程重启后数据丢失；读写均由一把读写锁保护。
type MemoryStore struct {
	mu         sync.RWMutex
	videos     map[string]*core.VideoMeta
	embeddings map[string][]float64
	likes      map[string][]core.RecentLike // user id -> likes
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos:     make(map[string]*core.VideoMeta),
		embeddings: make(map[string][]float64),
		likes:      make(map[string][]core.RecentLike),
	}
}

func (m *MemoryStore) Name() string { return "memory" }

// PutVideo 写入（或覆盖）视频元数据与向量；vector 为 nil 时只写元数据。
func (m *MemoryStore) PutVideo(meta core.VideoMeta, vector []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := meta.Ref.LikeKey()
	cp := meta
	m.videos[key] = &cp
	if vector != nil {
		m.embeddings[key] = append([]float64(nil), vector...)
	}
}

// AddLike 追加用户点赞；同一视频重复点赞只更新时间。
func (m *MemoryStore) AddLike(userID string, like core.RecentLike) {
	m.mu.Lock()
	defer m.mu.Unlock()
	likes := m.likes[userID]
	key := like.Ref.LikeKey()
	for i := range likes {
		if likes[i].Ref.LikeKey() == key {
			likes[i].UpdatedAt = like.UpdatedAt
			return
		}
	}
	m.likes[userID] = append(likes, like)
}

func (m *MemoryStore) FetchEmbeddings(ctx context.Context, refs []core.VideoRef) (map[string][]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float64, len(refs))
	for _, k := range refsKeys(refs) {
		if v, ok := m.embeddings[k]; ok {
			out[k] = append([]float64(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryStore) FetchRecentLikes(ctx context.Context, userID string, max int) ([]core.RecentLike, error) {
	m.mu.RLock()
	likes := append([]core.RecentLike(nil), m.likes[userID]...)
	m.mu.RUnlock()

	sort.SliceStable(likes, func(i, j int) bool {
		return likes[i].UpdatedAt.After(likes[j].UpdatedAt)
	})
	if max > 0 && len(likes) > max {
		likes = likes[:max]
	}
	return likes, nil
}

func (m *MemoryStore) FetchMetadata(ctx context.Context, refs []core.VideoRef) (map[string]*core.VideoMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*core.VideoMeta, len(refs))
	for _, k := range refsKeys(refs) {
		if v, ok := m.videos[k]; ok {
			cp := *v
			out[k] = &cp
		}
	}
	return out, nil
}

// FetchPopular 按 views 降序（likes、key 作为次序键，保证稳定）。
func (m *MemoryStore) FetchPopular(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return m.sorted(limit, func(a, b *core.VideoMeta) bool {
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		if a.Likes != b.Likes {
			return a.Likes > b.Likes
		}
		return a.Ref.LikeKey() < b.Ref.LikeKey()
	}), nil
}

// FetchRecent 按发布时间降序。
func (m *MemoryStore) FetchRecent(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return m.sorted(limit, func(a, b *core.VideoMeta) bool {
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.Ref.LikeKey() < b.Ref.LikeKey()
	}), nil
}

// FetchRandom 均匀随机采样。
func (m *MemoryStore) FetchRandom(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	all := m.snapshot()
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) sorted(limit int, less func(a, b *core.VideoMeta) bool) []*core.VideoMeta {
	all := m.snapshot()
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

func (m *MemoryStore) snapshot() []*core.VideoMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.VideoMeta, 0, len(m.videos))
	for _, v := range m.videos {
		cp := *v
		out = append(out, &cp)
	}
	return out
}

var (
	_ core.CatalogStore   = (*MemoryStore)(nil)
	_ core.MetadataStore  = (*MemoryStore)(nil)
	_ core.LikeStore      = (*MemoryStore)(nil)
	_ core.EmbeddingStore = (*MemoryStore)(nil)
)
