package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/vecmath"
)

// MemoryVectorIndex 是内存实现的暴力近邻索引（余弦相似度），用于测试/开发/小规模原型。
//
// 读路径无锁：Search 读取当前快照；Build / Upsert / Delete 以写时复制生成新快照后原子替换，
// 重建索引期间的查询始终看到完整的旧快照或新快照。
type MemoryVectorIndex struct {
	snap atomic.Pointer[vectorSnapshot]
	// wmu 串行化写者
	wmu sync.Mutex
}

type vectorSnapshot struct {
	dimension int
	refs      map[string]core.VideoRef
	vectors   map[string][]float64
}

// IndexItem 是建索引的输入。
type IndexItem struct {
	Ref    core.VideoRef
	Vector []float64
}

func NewMemoryVectorIndex() *MemoryVectorIndex {
	idx := &MemoryVectorIndex{}
	idx.snap.Store(&vectorSnapshot{refs: map[string]core.VideoRef{}, vectors: map[string][]float64{}})
	return idx
}

func (m *MemoryVectorIndex) Name() string { return "memory_vector" }

// Len 返回索引中的向量数。
func (m *MemoryVectorIndex) Len() int { return len(m.snap.Load().vectors) }

// Build 用 items 整体重建索引（swap-on-rebuild）。维度不一致的向量被跳过。
func (m *MemoryVectorIndex) Build(items []IndexItem) error {
	next := &vectorSnapshot{
		refs:    make(map[string]core.VideoRef, len(items)),
		vectors: make(map[string][]float64, len(items)),
	}
	for _, it := range items {
		if err := next.add(it); err != nil {
			return err
		}
	}
	m.wmu.Lock()
	m.snap.Store(next)
	m.wmu.Unlock()
	return nil
}

// Upsert 插入或替换若干向量。
func (m *MemoryVectorIndex) Upsert(items ...IndexItem) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	next := m.snap.Load().clone()
	for _, it := range items {
		if err := next.add(it); err != nil {
			return err
		}
	}
	m.snap.Store(next)
	return nil
}

// Delete 删除若干视频。
func (m *MemoryVectorIndex) Delete(refs ...core.VideoRef) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	next := m.snap.Load().clone()
	for _, r := range refs {
		k := r.LikeKey()
		delete(next.refs, k)
		delete(next.vectors, k)
	}
	m.snap.Store(next)
}

// Search 实现 core.VectorIndex。
func (m *MemoryVectorIndex) Search(ctx context.Context, vector []float64, k int, exclude map[string]struct{}) ([]core.VectorHit, error) {
	snap := m.snap.Load()
	if k <= 0 || len(snap.vectors) == 0 {
		return []core.VectorHit{}, nil
	}
	if len(vector) != snap.dimension {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector dimension mismatch")
	}

	hits := make([]core.VectorHit, 0, len(snap.vectors))
	for key, v := range snap.vectors {
		if _, skip := exclude[key]; skip {
			continue
		}
		hits = append(hits, core.VectorHit{Ref: snap.refs[key], Score: vecmath.Cosine(vector, v)})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ref.LikeKey() < hits[j].Ref.LikeKey()
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// FetchEmbeddings 实现 core.EmbeddingStore，索引本身也可以作为向量来源。
func (m *MemoryVectorIndex) FetchEmbeddings(ctx context.Context, refs []core.VideoRef) (map[string][]float64, error) {
	snap := m.snap.Load()
	out := make(map[string][]float64, len(refs))
	for _, k := range refsKeys(refs) {
		if v, ok := snap.vectors[k]; ok {
			out[k] = append([]float64(nil), v...)
		}
	}
	return out, nil
}

func (s *vectorSnapshot) add(it IndexItem) error {
	if !it.Ref.Valid() || len(it.Vector) == 0 {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "index item requires a valid ref and vector")
	}
	if s.dimension == 0 && len(s.vectors) == 0 {
		s.dimension = len(it.Vector)
	}
	if len(it.Vector) != s.dimension {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector dimension mismatch")
	}
	k := it.Ref.LikeKey()
	s.refs[k] = it.Ref
	s.vectors[k] = append([]float64(nil), it.Vector...)
	return nil
}

// clone 浅拷贝 map（向量切片本身不可变，可共享）。
func (s *vectorSnapshot) clone() *vectorSnapshot {
	next := &vectorSnapshot{
		dimension: s.dimension,
		refs:      make(map[string]core.VideoRef, len(s.refs)),
		vectors:   make(map[string][]float64, len(s.vectors)),
	}
	for k, v := range s.refs {
		next.refs[k] = v
	}
	for k, v := range s.vectors {
		next.vectors[k] = v
	}
	if len(next.vectors) == 0 {
		next.dimension = 0
	}
	return next
}

var (
	_ core.VectorIndex    = (*MemoryVectorIndex)(nil)
	_ core.EmbeddingStore = (*MemoryVectorIndex)(nil)
)
