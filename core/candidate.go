package core

import (
	"math"
	"time"
)

// Candidate 是推荐链路中的统一承载结构：身份、来源层、相似度、分数、元数据。
//
// 生命周期：由 Generator 创建，Scorer 计算分数，Mixer 消费（可能被后置过滤丢弃）；从不持久化。
// 调试信息（层名、混排前后排名、池内分数范围）不写在这里，而是写入 Trace。
type Candidate struct {
	Ref   VideoRef `json:"ref"`
	Layer string   `json:"layer"`

	// SimilarityScore 是与种子 / 点赞的相似度，始终位于 [0,1]
	SimilarityScore float64 `json:"similarity_score"`

	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`

	Meta *VideoMeta `json:"meta,omitempty"`
}

// NewCandidate 创建候选，相似度会被钳制到 [0,1]。
func NewCandidate(ref VideoRef, layer string, similarity float64, meta *VideoMeta) *Candidate {
	return &Candidate{
		Ref:             ref,
		Layer:           layer,
		SimilarityScore: ClampUnit(similarity),
		Meta:            meta,
	}
}

// Key 返回候选的 like key。
func (c *Candidate) Key() string { return c.Ref.LikeKey() }

// AuthorKey 返回作者身份；元数据缺失时为空串。
func (c *Candidate) AuthorKey() string {
	if c == nil {
		return ""
	}
	return c.Meta.AuthorKey()
}

// ScoreBreakdown 是 Scorer 的输出：最终分数以及各项中间值。
type ScoreBreakdown struct {
	Similarity float64 `json:"similarity"`
	Freshness  float64 `json:"freshness"`
	Popularity float64 `json:"popularity"`
	LayerBonus float64 `json:"layer_bonus"`
	Total      float64 `json:"total"`
}

// ClampUnit 把 v 钳制到 [0,1]，非有限值视为 0。
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SimilarEntry 是相似缓存中的一行：排名从 1 开始且连续。
type SimilarEntry struct {
	Ref   VideoRef   `json:"ref"`
	Score float64    `json:"score"`
	Rank  int        `json:"rank"`
	Meta  *VideoMeta `json:"meta,omitempty"`
}

// CacheEntry 是某个源视频的相似列表；写入时整体替换旧条目（不做部分合并）。
type CacheEntry struct {
	Source     VideoRef       `json:"source"`
	Items      []SimilarEntry `json:"items"`
	ComputedAt time.Time      `json:"computed_at"`
}

// Renumber 把排名重排为 1..n，保证连续。
func (e *CacheEntry) Renumber() {
	for i := range e.Items {
		e.Items[i].Rank = i + 1
	}
}

// VectorHit 是一次近邻检索的单条结果。
type VectorHit struct {
	Ref   VideoRef
	Score float64
}
