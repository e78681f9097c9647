// Package recall 实现召回层：exploit / explore / popular / fresh / random 五种生成器，
// 以及按层并发召回的 Fanout。
package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/similar"
)

// Generator 表示一种召回策略，按层配置产出有界的候选池。
//
// 约定：
//   - 返回至多 limit 个候选，Layer 字段为层名
//   - 输入为空（无点赞、无锚点）时返回空列表而不是错误
//   - 存储错误记录日志后吸收，只有 ctx 取消/超时会作为错误返回
//   - 不修改任何持久化状态（相似缓存回写除外）
type Generator interface {
	Kind() string
	Generate(ctx context.Context, rctx *core.RecommendContext, limit int, layer *config.LayerConfig) ([]*core.Candidate, error)
}

// SimilarSource 是相似候选查询，由 similar.Pipeline 实现。
type SimilarSource interface {
	GetSimilarCandidates(ctx context.Context, seed core.VideoRef, limit int, policy similar.Policy) ([]*core.Candidate, error)
}

// Deps 是生成器共享的依赖。
type Deps struct {
	Catalog    core.CatalogStore
	Embeddings core.EmbeddingStore
	Similar    SimilarSource
	Logger     zerolog.Logger
}

func (d Deps) logger(kind string) zerolog.Logger {
	return d.Logger.With().Str("component", "recall").Str("generator", kind).Logger()
}
