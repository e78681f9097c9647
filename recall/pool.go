package recall

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/filter"
)

// poolSize 返回候选池大小：ceil(limit × PoolMultiplier)，至少为 limit。
func poolSize(limit int, layer *config.LayerConfig) int {
	m := layer.PoolMultiplier
	if m < 1 {
		m = 1
	}
	return max(limit, int(math.Ceil(float64(limit)*m)))
}

// finalize 是所有生成器共用的收尾：
// 标记层名 → 去掉已点赞/种子 → 层 CEL 过滤 → 可选打乱 → 作者/实例上限 → 截断到 limit。
func finalize(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate, limit int, layer *config.LayerConfig, log zerolog.Logger) []*core.Candidate {
	filters := []filter.Filter{filter.NewSeenFilter(rctx)}
	if layer.Filter != "" {
		ef, err := filter.NewExprFilter(layer.Filter)
		if err != nil {
			// 加载时已校验
			log.Warn().Err(err).Str("layer", layer.Name).Msg("layer filter ignored")
		} else {
			filters = append(filters, ef)
		}
	}
	for _, c := range cands {
		c.Layer = layer.Name
	}
	cands = filter.Apply(ctx, rctx, cands, filters...)

	if layer.Shuffle {
		rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	}
	cands = ApplyAuthorInstanceCaps(cands, layer.MaxPerAuthor, layer.MaxPerInstance)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}

// fromMetas 把目录视图的行转换为候选，跳过身份无法解析的行。
func fromMetas(metas []*core.VideoMeta, layer string) []*core.Candidate {
	out := make([]*core.Candidate, 0, len(metas))
	for _, m := range metas {
		if m == nil || !m.Ref.Valid() {
			continue
		}
		out = append(out, core.NewCandidate(m.Ref, layer, 0, m))
	}
	return out
}

// interleave 轮询合并多个锚点的相似列表：第一轮取每个列表的第 1 条，第二轮取第 2 条，依此类推。
// 重复的视频只保留一份，相似度取最大值；相似度低于 threshold 的条目跳过；合并到 size 条为止。
func interleave(lists [][]*core.Candidate, threshold float64, size int) []*core.Candidate {
	out := make([]*core.Candidate, 0, size)
	index := make(map[string]*core.Candidate)
	longest := 0
	for _, l := range lists {
		longest = max(longest, len(l))
	}
	for i := 0; i < longest; i++ {
		for _, l := range lists {
			if i >= len(l) || l[i] == nil {
				continue
			}
			c := l[i]
			if c.SimilarityScore < threshold {
				continue
			}
			k := c.Key()
			if old, ok := index[k]; ok {
				if c.SimilarityScore > old.SimilarityScore {
					old.SimilarityScore = c.SimilarityScore
				}
				continue
			}
			if len(out) >= size {
				continue
			}
			index[k] = c
			out = append(out, c)
		}
	}
	return out
}
