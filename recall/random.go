package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
)

func init() {
	Register(config.KindRandom, func(d Deps) Generator { return NewRandom(d) })
}

// Random 从目录均匀随机采样。
// BelowExploreMin 打开且有点赞向量时，只保留峰值相似度低于 ExploreMin 的候选（低相关的新奇内容）；
// 向量缺失的候选相似度按 0 计，予以保留。
type Random struct {
	catalog    core.CatalogStore
	embeddings core.EmbeddingStore
	log        zerolog.Logger
}

func NewRandom(d Deps) *Random {
	return &Random{catalog: d.Catalog, embeddings: d.Embeddings, log: d.logger(config.KindRandom)}
}

func (g *Random) Kind() string { return config.KindRandom }

func (g *Random) Generate(ctx context.Context, rctx *core.RecommendContext, limit int, layer *config.LayerConfig) ([]*core.Candidate, error) {
	if limit <= 0 || g.catalog == nil {
		return []*core.Candidate{}, nil
	}
	metas, err := g.catalog.FetchRandom(ctx, poolSize(limit, layer))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.log.Warn().Err(err).Msg("random sample failed")
		return []*core.Candidate{}, nil
	}
	cands := fromMetas(metas, layer.Name)

	if layer.BelowExploreMin && g.embeddings != nil && rctx.HasLikes() {
		cands = g.belowExploreMin(ctx, rctx, cands, layer)
	}
	return finalize(ctx, rctx, cands, limit, layer, g.log), nil
}

func (g *Random) belowExploreMin(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate, layer *config.LayerConfig) []*core.Candidate {
	likes, err := likeVectors(ctx, g.embeddings, rctx, layer.SeedLimit)
	if err != nil {
		g.log.Warn().Err(err).Msg("like embeddings unavailable, novelty filter skipped")
		return cands
	}
	if len(likes) == 0 {
		return cands
	}
	peaks, err := peakSimilarities(ctx, g.embeddings, cands, likes)
	if err != nil {
		g.log.Warn().Err(err).Msg("candidate embeddings unavailable, novelty filter skipped")
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		peak := peaks[c.Key()]
		if peak >= layer.ExploreMin {
			continue
		}
		c.SimilarityScore = peak
		out = append(out, c)
	}
	return out
}
