package core

import "context"

// 以下接口是推荐核心对外部存储的全部要求（依赖倒置：领域层定义接口，store 包实现）。
//
// 约定：
//   - 所有调用都是同步、有界的，对核心而言无副作用（缓存写入除外）
//   - 返回行数少于请求数不是错误
//   - 实现方各自持有自己的锁，任何实现都不得在持锁期间调用另一个存储

// EmbeddingStore 按身份获取视频向量。
type EmbeddingStore interface {
	// FetchEmbeddings 返回 map[like_key]vector，缺失的视频不出现在结果中
	FetchEmbeddings(ctx context.Context, refs []VideoRef) (map[string][]float64, error)
}

// LikeStore 读取用户最近点赞。
type LikeStore interface {
	// FetchRecentLikes 按 UpdatedAt 降序返回最多 max 条
	FetchRecentLikes(ctx context.Context, userID string, max int) ([]RecentLike, error)
}

// VectorIndex 是近邻检索服务。
type VectorIndex interface {
	// Search 返回与 vector 最相似的最多 k 条结果（按相似度降序），exclude 中的 like key 不返回
	Search(ctx context.Context, vector []float64, k int, exclude map[string]struct{}) ([]VectorHit, error)
}

// MetadataStore 解析视频元数据。
type MetadataStore interface {
	// FetchMetadata 返回 map[like_key]*VideoMeta
	FetchMetadata(ctx context.Context, refs []VideoRef) (map[string]*VideoMeta, error)
}

// CatalogStore 提供与用户无关的候选池视图。
type CatalogStore interface {
	// FetchPopular 按热度降序
	FetchPopular(ctx context.Context, limit int) ([]*VideoMeta, error)
	// FetchRecent 按发布时间降序
	FetchRecent(ctx context.Context, limit int) ([]*VideoMeta, error)
	// FetchRandom 均匀随机采样
	FetchRandom(ctx context.Context, limit int) ([]*VideoMeta, error)
}

// SimilarityCache 是源视频 → 相似列表的持久化 KV。
type SimilarityCache interface {
	// Name 返回后端名称（用于日志/监控）
	Name() string

	// Get 读取条目；不存在时返回 ErrCacheMiss
	Get(ctx context.Context, source VideoRef) (*CacheEntry, error)

	// Put 整体替换 source 对应的条目
	Put(ctx context.Context, entry *CacheEntry) error
}
