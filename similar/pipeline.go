package similar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/metrics"
)

// LayerName 是相似查询产出的候选的来源标记。
const LayerName = "similar"

// Pipeline 是相似候选的 cache-aside 流水线。
//
// 流程：
//  1. UseCache 且未要求刷新时读缓存；空条目、过期条目、RequireFullCache 下的短条目都视为未命中
//  2. 未命中且 AllowCompute 时取种子向量做近邻检索，AllowCacheWrite 时整体替换缓存条目
//     （同一源视频的并发回源通过 singleflight 合并）
//  3. 解析元数据，排除种子本身、可选排除同作者，按全局作者计数限制每个作者的条数，截断到 limit
//
// 存储错误一律记录日志后吸收：最差返回空列表，不向上抛出。
type Pipeline struct {
	index      core.VectorIndex
	embeddings core.EmbeddingStore
	metadata   core.MetadataStore
	cache      core.SimilarityCache

	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
	flight singleflight.Group
}

// Option 配置 Pipeline。
type Option func(*Pipeline)

// WithCache 设置相似缓存；不设置时每次都回源。
func WithCache(c core.SimilarityCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l.With().Str("component", "similar").Logger() }
}

// WithClock 替换时间源（测试用）。
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(index core.VectorIndex, embeddings core.EmbeddingStore, metadata core.MetadataStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		index:      index,
		embeddings: embeddings,
		metadata:   metadata,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetSimilarCandidates 返回与 seed 相似的最多 limit 个候选，永不包含 seed 本身。
// 种子身份无法解析或 limit <= 0 时返回空列表。
func (p *Pipeline) GetSimilarCandidates(ctx context.Context, seed core.VideoRef, limit int, policy Policy) ([]*core.Candidate, error) {
	if limit <= 0 || !seed.Valid() {
		return []*core.Candidate{}, nil
	}
	items, fresh := p.lookup(ctx, seed, limit, policy)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.resolve(ctx, seed, items, fresh, limit, policy), nil
}

// lookup 返回相似条目；fresh 表示条目刚刚计算（元数据已解析）。
func (p *Pipeline) lookup(ctx context.Context, seed core.VideoRef, limit int, policy Policy) (items []core.SimilarEntry, fresh bool) {
	var fallback *core.CacheEntry
	backend := "none"
	if p.cache != nil {
		backend = p.cache.Name()
	}

	if p.cache != nil && policy.UseCache && !policy.RefreshCache {
		entry, err := p.cache.Get(ctx, seed)
		switch {
		case err != nil && core.IsCacheMiss(err):
			metrics.RecordCacheLookup(backend, metrics.CacheMiss)
		case err != nil:
			metrics.RecordCacheLookup(backend, metrics.CacheError)
			p.log.Warn().Err(err).Str("seed", seed.LikeKey()).Msg("similarity cache read failed")
		case len(entry.Items) == 0:
			metrics.RecordCacheLookup(backend, metrics.CacheMiss)
		case p.stale(entry):
			metrics.RecordCacheLookup(backend, metrics.CacheStale)
			fallback = entry
		case policy.RequireFullCache && len(entry.Items) < limit:
			metrics.RecordCacheLookup(backend, metrics.CacheShort)
			fallback = entry
		default:
			metrics.RecordCacheLookup(backend, metrics.CacheHit)
			return entry.Items, false
		}
	} else {
		metrics.RecordCacheLookup(backend, metrics.CacheBypass)
	}

	if policy.AllowCompute {
		entry, err := p.compute(ctx, seed, limit, policy.AllowCacheWrite)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, false
		case err != nil:
			p.log.Warn().Err(err).Str("seed", seed.LikeKey()).Msg("similarity compute failed")
		case len(entry.Items) > 0:
			return entry.Items, true
		}
	}

	// 回源不可用或无结果时退回短条目/过期条目
	if fallback != nil {
		return fallback.Items, false
	}
	return nil, false
}

func (p *Pipeline) stale(entry *core.CacheEntry) bool {
	if p.cfg.MaxAge <= 0 || entry.ComputedAt.IsZero() {
		return false
	}
	return p.now().Sub(entry.ComputedAt) > p.cfg.MaxAge
}

// compute 回源向量索引并（可选）回写缓存；同一源视频、同一深度的并发调用只执行一次。
func (p *Pipeline) compute(ctx context.Context, seed core.VideoRef, limit int, write bool) (*core.CacheEntry, error) {
	k := limit
	if p.cfg.ComputeK > k {
		k = p.cfg.ComputeK
	}
	key := fmt.Sprintf("%s|%d|%t", seed.LikeKey(), k, write)
	ch := p.flight.DoChan(key, func() (any, error) {
		// 共享计算与各调用方的取消解耦，超时的调用方离开后缓存照常写入
		return p.doCompute(context.WithoutCancel(ctx), seed, k, write)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*core.CacheEntry), nil
	}
}

func (p *Pipeline) doCompute(ctx context.Context, seed core.VideoRef, k int, write bool) (entry *core.CacheEntry, err error) {
	start := time.Now()
	defer func() { metrics.RecordCompute(time.Since(start), err) }()

	if p.index == nil || p.embeddings == nil {
		return nil, core.ErrIndexUnavailable
	}
	seedKey := seed.LikeKey()
	vectors, err := p.embeddings.FetchEmbeddings(ctx, []core.VideoRef{seed})
	if err != nil {
		return nil, fmt.Errorf("fetch seed embedding: %w", err)
	}
	vector, ok := vectors[seedKey]
	if !ok || len(vector) == 0 {
		return nil, fmt.Errorf("seed %s: %w", seedKey, core.ErrNotFound)
	}

	hits, err := p.index.Search(ctx, vector, k, map[string]struct{}{seedKey: {}})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	entry = &core.CacheEntry{Source: seed, ComputedAt: p.now(), Items: make([]core.SimilarEntry, 0, len(hits))}
	refs := make([]core.VideoRef, 0, len(hits))
	seen := map[string]struct{}{seedKey: {}}
	for _, h := range hits {
		hk := h.Ref.LikeKey()
		if _, dup := seen[hk]; dup || !h.Ref.Valid() {
			continue
		}
		seen[hk] = struct{}{}
		entry.Items = append(entry.Items, core.SimilarEntry{Ref: h.Ref, Score: core.ClampUnit(h.Score)})
		refs = append(refs, h.Ref)
	}
	entry.Renumber()

	// 缓存行携带元数据快照；元数据读取失败不影响条目本身
	if p.metadata != nil && len(refs) > 0 {
		metas, mErr := p.metadata.FetchMetadata(ctx, refs)
		if mErr != nil {
			p.log.Warn().Err(mErr).Str("seed", seedKey).Msg("metadata fetch during compute failed")
		}
		for i := range entry.Items {
			entry.Items[i].Meta = metas[entry.Items[i].Ref.LikeKey()]
		}
	}

	if write && p.cache != nil && len(entry.Items) > 0 {
		wErr := p.cache.Put(ctx, entry)
		metrics.RecordCacheWrite(p.cache.Name(), wErr)
		if wErr != nil {
			p.log.Warn().Err(wErr).Str("seed", seedKey).Msg("similarity cache write failed")
		}
	}
	return entry, nil
}

// resolve 把相似条目解析为候选。
func (p *Pipeline) resolve(ctx context.Context, seed core.VideoRef, items []core.SimilarEntry, fresh bool, limit int, policy Policy) []*core.Candidate {
	out := make([]*core.Candidate, 0, min(limit, len(items)))
	if len(items) == 0 {
		return out
	}
	seedKey := seed.LikeKey()

	// 刚计算的条目只补齐缺失的元数据；缓存条目全部刷新
	var refs []core.VideoRef
	if policy.ExcludeSeedAuthor {
		refs = append(refs, seed)
	}
	for _, it := range items {
		if !fresh || it.Meta == nil {
			refs = append(refs, it.Ref)
		}
	}
	metas := map[string]*core.VideoMeta{}
	if p.metadata != nil && len(refs) > 0 {
		m, err := p.metadata.FetchMetadata(ctx, refs)
		if err != nil {
			p.log.Warn().Err(err).Str("seed", seedKey).Msg("metadata fetch failed, using cached metadata")
		} else {
			metas = m
		}
	}

	seedAuthor := ""
	if policy.ExcludeSeedAuthor {
		seedAuthor = metas[seedKey].AuthorKey()
	}

	seen := map[string]struct{}{seedKey: {}}
	perAuthor := make(map[string]int)
	for _, it := range items {
		k := it.Ref.LikeKey()
		if _, dup := seen[k]; dup || !it.Ref.Valid() {
			continue
		}
		meta := metas[k]
		if meta == nil {
			meta = it.Meta
		}
		if meta == nil {
			// 元数据无法解析（视频已删除等）
			continue
		}
		author := meta.AuthorKey()
		if seedAuthor != "" && author == seedAuthor {
			continue
		}
		if policy.MaxPerAuthor > 0 && author != "" && perAuthor[author] >= policy.MaxPerAuthor {
			continue
		}
		seen[k] = struct{}{}
		if author != "" {
			perAuthor[author]++
		}
		ref := it.Ref
		if ref.VideoUUID == "" {
			ref.VideoUUID = meta.Ref.VideoUUID
		}
		out = append(out, core.NewCandidate(ref, LayerName, it.Score, meta))
		if len(out) >= limit {
			break
		}
	}
	return out
}
