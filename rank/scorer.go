// Package rank 实现候选打分：相似度 + 新鲜度衰减 + 热度 + 层加成。
package rank

import (
	"math"
	"time"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
)

// Scorer 按 profile 的打分参数计算分数。
//
//	score = w_sim·similarity + w_fresh·freshness + w_pop·popularity + layer_weights[layer]
//
// 相同输入总是得到相同分数（时间点由调用方传入）。
type Scorer struct {
	settings config.ScoringSettings
}

func NewScorer(settings config.ScoringSettings) *Scorer {
	return &Scorer{settings: settings}
}

// Score 计算候选在 layer 下的分数及各项中间值，不修改候选。
func (s *Scorer) Score(c *core.Candidate, layer string, now time.Time) core.ScoreBreakdown {
	var b core.ScoreBreakdown
	if c == nil {
		return b
	}
	w := s.settings.Weights
	b.Similarity = core.ClampUnit(c.SimilarityScore)
	if c.Meta != nil {
		b.Freshness = Freshness(c.Meta.PublishedAt, now, s.settings.FreshnessHalfLifeDays)
		b.Popularity = Popularity(c.Meta.Views, c.Meta.Likes, s.settings.Popularity)
	}
	b.LayerBonus = s.settings.LayerWeights[layer]
	b.Total = w.Similarity*b.Similarity + w.Freshness*b.Freshness + w.Popularity*b.Popularity + b.LayerBonus
	if math.IsNaN(b.Total) || math.IsInf(b.Total, 0) {
		b.Total = 0
	}
	return b
}

// Apply 给每个候选打分，并把结果写回 Score / Breakdown。
func (s *Scorer) Apply(cands []*core.Candidate, now time.Time) {
	for _, c := range cands {
		if c == nil {
			continue
		}
		c.Breakdown = s.Score(c, c.Layer, now)
		c.Score = c.Breakdown.Total
	}
}

// Freshness 是指数衰减 0.5^(age_days / half_life_days)。
// 发布时间缺失或 halfLifeDays <= 0 时为 0；发布时间晚于 now 时按 age 0 计。
func Freshness(published, now time.Time, halfLifeDays float64) float64 {
	if published.IsZero() || halfLifeDays <= 0 || math.IsNaN(halfLifeDays) {
		return 0
	}
	age := now.Sub(published).Hours() / 24
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age/halfLifeDays)
}

// Popularity 把加权的播放/点赞数压缩到 [0,1)：x = log1p(vw·views + lw·likes)，返回 x/(x+1)。
// 加权和 <= 0 时为 0。
func Popularity(views, likes int64, w config.PopularityWeights) float64 {
	total := w.ViewWeight*float64(views) + w.LikeWeight*float64(likes)
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	x := math.Log1p(total)
	return x / (x + 1)
}
