package recall

import (
	"context"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/vecmath"
)

// likeVectors 取用户最近点赞（至多 max 条，<= 0 不限制）的向量，缺失的点赞跳过。
func likeVectors(ctx context.Context, emb core.EmbeddingStore, rctx *core.RecommendContext, max int) ([][]float64, error) {
	if emb == nil || rctx == nil {
		return nil, nil
	}
	refs := make([]core.VideoRef, 0, len(rctx.RecentLikes))
	for _, l := range rctx.RecentLikes {
		if !l.Ref.Valid() {
			continue
		}
		refs = append(refs, l.Ref)
		if max > 0 && len(refs) >= max {
			break
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}
	vecs, err := emb.FetchEmbeddings(ctx, refs)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(refs))
	for _, r := range refs {
		if v := vecs[r.LikeKey()]; len(v) > 0 {
			out = append(out, v)
		}
	}
	return out, nil
}

// peakSimilarities 返回每个候选与点赞向量的峰值余弦相似度（钳制到 [0,1]）。
// 向量缺失或维度不符的候选不出现在结果中。
func peakSimilarities(ctx context.Context, emb core.EmbeddingStore, cands []*core.Candidate, likes [][]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(cands))
	if len(cands) == 0 || len(likes) == 0 {
		return out, nil
	}
	refs := make([]core.VideoRef, 0, len(cands))
	for _, c := range cands {
		refs = append(refs, c.Ref)
	}
	vecs, err := emb.FetchEmbeddings(ctx, refs)
	if err != nil {
		return nil, err
	}
	for _, c := range cands {
		k := c.Key()
		v, ok := vecs[k]
		if !ok {
			continue
		}
		if peak, ok := vecmath.Peak(v, likes); ok {
			out[k] = core.ClampUnit(peak)
		}
	}
	return out, nil
}

// scoreAffinity 把峰值相似度写入候选的 SimilarityScore；未知的保持 0。
func scoreAffinity(ctx context.Context, emb core.EmbeddingStore, rctx *core.RecommendContext, cands []*core.Candidate, seedLimit int) error {
	likes, err := likeVectors(ctx, emb, rctx, seedLimit)
	if err != nil || len(likes) == 0 {
		return err
	}
	peaks, err := peakSimilarities(ctx, emb, cands, likes)
	if err != nil {
		return err
	}
	for _, c := range cands {
		c.SimilarityScore = peaks[c.Key()]
	}
	return nil
}
