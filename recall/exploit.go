package recall

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/similar"
)

// anchorConcurrency 是单层并发查询相似列表的锚点数
const anchorConcurrency = 4

func init() {
	Register(config.KindExploit, func(d Deps) Generator { return NewExploit(d) })
}

// Exploit 推荐与用户最近点赞（以及 upnext 的种子视频）相似的视频。
// 每个锚点走一次相似流水线，结果按锚点轮询合并，保证多个兴趣都有曝光。
type Exploit struct {
	similar SimilarSource
	log     zerolog.Logger
}

func NewExploit(d Deps) *Exploit {
	return &Exploit{similar: d.Similar, log: d.logger(config.KindExploit)}
}

func (g *Exploit) Kind() string { return config.KindExploit }

func (g *Exploit) Generate(ctx context.Context, rctx *core.RecommendContext, limit int, layer *config.LayerConfig) ([]*core.Candidate, error) {
	if limit <= 0 || g.similar == nil {
		return []*core.Candidate{}, nil
	}
	anchors := truncateRefs(rctx.Anchors(), layer.SeedLimit)
	if len(anchors) == 0 {
		return []*core.Candidate{}, nil
	}

	pool := poolSize(limit, layer)
	lists, err := similarLists(ctx, g.similar, rctx, anchors, perSeedLimit(layer, pool), layer, g.log)
	if err != nil {
		return nil, err
	}
	merged := interleave(lists, layer.SimilarityThreshold, pool)
	return finalize(ctx, rctx, merged, limit, layer, g.log), nil
}

// similarLists 并发查询每个锚点的相似列表；单个锚点失败记录日志后视为空列表。
func similarLists(ctx context.Context, src SimilarSource, rctx *core.RecommendContext, anchors []core.VideoRef, perSeed int, layer *config.LayerConfig, log zerolog.Logger) ([][]*core.Candidate, error) {
	policy := similar.DefaultPolicy()
	policy.RefreshCache = rctx.RefreshCache
	policy.AllowCompute = layer.ComputeAllowed()

	lists := make([][]*core.Candidate, len(anchors))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(anchorConcurrency)
	for i, anchor := range anchors {
		eg.Go(func() error {
			cands, err := src.GetSimilarCandidates(egCtx, anchor, perSeed, policy)
			if err != nil {
				if ctxErr := egCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn().Err(err).Str("anchor", anchor.LikeKey()).Msg("similar lookup failed")
				return nil
			}
			lists[i] = cands
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func perSeedLimit(layer *config.LayerConfig, pool int) int {
	if layer.PerSeedLimit > 0 {
		return layer.PerSeedLimit
	}
	return pool
}

func truncateRefs(refs []core.VideoRef, n int) []core.VideoRef {
	if n > 0 && len(refs) > n {
		return refs[:n]
	}
	return refs
}
