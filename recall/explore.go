package recall

import (
	"context"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
)

func init() {
	Register(config.KindExplore, func(d Deps) Generator { return NewExplore(d) })
}

// Explore 推荐与点赞"中等相似"的视频：峰值相似度落在 Band [Min, Max) 内。
//
// 候选池由两部分组成：锚点相似列表的深层结果，以及一份目录随机采样。
// 没有任何点赞向量可用时，退化为从候选池中不加过滤地随机采样。
type Explore struct {
	similar    SimilarSource
	catalog    core.CatalogStore
	embeddings core.EmbeddingStore
	log        zerolog.Logger
}

func NewExplore(d Deps) *Explore {
	return &Explore{
		similar:    d.Similar,
		catalog:    d.Catalog,
		embeddings: d.Embeddings,
		log:        d.logger(config.KindExplore),
	}
}

func (g *Explore) Kind() string { return config.KindExplore }

func (g *Explore) Generate(ctx context.Context, rctx *core.RecommendContext, limit int, layer *config.LayerConfig) ([]*core.Candidate, error) {
	if limit <= 0 {
		return []*core.Candidate{}, nil
	}
	pool := poolSize(limit, layer)

	var cands []*core.Candidate
	anchors := truncateRefs(rctx.Anchors(), layer.SeedLimit)
	if g.similar != nil && len(anchors) > 0 {
		lists, err := similarLists(ctx, g.similar, rctx, anchors, perSeedLimit(layer, pool), layer, g.log)
		if err != nil {
			return nil, err
		}
		cands = interleave(lists, 0, pool)
	}
	if g.catalog != nil {
		metas, err := g.catalog.FetchRandom(ctx, pool)
		if err != nil {
			g.log.Warn().Err(err).Msg("random sample failed")
		}
		cands = appendUnique(cands, fromMetas(metas, layer.Name))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return []*core.Candidate{}, nil
	}

	var likes [][]float64
	if g.embeddings != nil {
		var err error
		likes, err = likeVectors(ctx, g.embeddings, rctx, layer.SeedLimit)
		if err != nil {
			g.log.Warn().Err(err).Msg("like embeddings unavailable")
		}
	}
	if len(likes) == 0 {
		for _, c := range cands {
			c.SimilarityScore = 0
		}
		rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
		return finalize(ctx, rctx, cands, limit, layer, g.log), nil
	}

	peaks, err := peakSimilarities(ctx, g.embeddings, cands, likes)
	if err != nil {
		g.log.Warn().Err(err).Msg("candidate embeddings unavailable")
		return []*core.Candidate{}, nil
	}
	banded := make([]*core.Candidate, 0, len(cands))
	for _, c := range cands {
		peak, ok := peaks[c.Key()]
		if !ok || !layer.Band.Contains(peak) {
			continue
		}
		c.SimilarityScore = peak
		banded = append(banded, c)
	}
	return finalize(ctx, rctx, banded, limit, layer, g.log), nil
}

// appendUnique 把 extra 中尚未出现的候选追加到 dst。
func appendUnique(dst, extra []*core.Candidate) []*core.Candidate {
	seen := make(map[string]struct{}, len(dst)+len(extra))
	for _, c := range dst {
		seen[c.Key()] = struct{}{}
	}
	for _, c := range extra {
		if _, ok := seen[c.Key()]; ok {
			continue
		}
		seen[c.Key()] = struct{}{}
		dst = append(dst, c)
	}
	return dst
}
