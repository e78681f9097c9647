package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
)

func init() {
	Register(config.KindPopular, func(d Deps) Generator { return NewPopular(d) })
	Register(config.KindFresh, func(d Deps) Generator { return NewFresh(d) })
}

// catalogGenerator 从目录的某个视图（热度序 / 发布时间序）取候选池。
// ScoreAffinity 打开时计算与点赞的峰值相似度，否则相似度为 0。
type catalogGenerator struct {
	kind       string
	fetch      func(ctx context.Context, limit int) ([]*core.VideoMeta, error)
	embeddings core.EmbeddingStore
	log        zerolog.Logger
}

func (g *catalogGenerator) Kind() string { return g.kind }

func (g *catalogGenerator) Generate(ctx context.Context, rctx *core.RecommendContext, limit int, layer *config.LayerConfig) ([]*core.Candidate, error) {
	if limit <= 0 || g.fetch == nil {
		return []*core.Candidate{}, nil
	}
	metas, err := g.fetch(ctx, poolSize(limit, layer))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.log.Warn().Err(err).Msg("catalog fetch failed")
		return []*core.Candidate{}, nil
	}
	cands := fromMetas(metas, layer.Name)

	if layer.ScoreAffinity && g.embeddings != nil && rctx.HasLikes() {
		if err := scoreAffinity(ctx, g.embeddings, rctx, cands, layer.SeedLimit); err != nil {
			g.log.Warn().Err(err).Msg("affinity scoring skipped")
		}
	}
	return finalize(ctx, rctx, cands, limit, layer, g.log), nil
}

// NewPopular 创建热门召回：按播放量降序。
func NewPopular(d Deps) Generator {
	g := &catalogGenerator{kind: config.KindPopular, embeddings: d.Embeddings, log: d.logger(config.KindPopular)}
	if d.Catalog != nil {
		g.fetch = d.Catalog.FetchPopular
	}
	return g
}

// NewFresh 创建新鲜度召回：按发布时间降序。
func NewFresh(d Deps) Generator {
	g := &catalogGenerator{kind: config.KindFresh, embeddings: d.Embeddings, log: d.logger(config.KindFresh)}
	if d.Catalog != nil {
		g.fetch = d.Catalog.FetchRecent
	}
	return g
}
