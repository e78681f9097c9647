// Package similar 实现"与 X 相似"的候选获取：先读相似缓存，未命中时回源向量索引并回写缓存，
// 最后解析元数据并应用种子/作者过滤。
package similar

import "time"

// Policy 控制一次相似查询的缓存与回源行为。
type Policy struct {
	// RefreshCache 跳过读缓存，强制重新计算
	RefreshCache bool
	// UseCache 是否读缓存
	UseCache bool
	// RequireFullCache 条目行数少于 limit 时视为未命中
	RequireFullCache bool
	// AllowCacheWrite 重新计算后是否回写缓存
	AllowCacheWrite bool
	// AllowCompute 未命中时是否允许回源向量索引
	AllowCompute bool

	// ExcludeSeedAuthor 排除与种子同作者的视频
	ExcludeSeedAuthor bool
	// MaxPerAuthor 结果中每个作者最多出现的次数，<= 0 不限制
	MaxPerAuthor int
}

// DefaultPolicy 读缓存、允许回源、允许回写。
func DefaultPolicy() Policy {
	return Policy{
		UseCache:        true,
		AllowCacheWrite: true,
		AllowCompute:    true,
	}
}

// Config 是 Pipeline 的静态配置。
type Config struct {
	// ComputeK 回源检索深度：实际检索 max(limit, ComputeK) 条，一次写缓存可服务后续更大的 limit
	ComputeK int
	// MaxAge 缓存条目的最大年龄，超过视为未命中；0 表示不检查
	MaxAge time.Duration
}
