// Package feast 从 Feast 在线特征库读取视频互动计数（播放数 / 点赞数），
// 并以装饰器的形式覆盖元数据存储中的计数。
package feast

import (
	"context"
	"time"
)

// Client 是 Feast 在线特征读取的客户端接口。
type Client interface {
	// GetOnlineFeatures 获取在线特征
	//
	// 参数：
	//   - features: 特征名称列表，例如 ["video_engagement:views", "video_engagement:likes"]
	//   - entityRows: 实体行，例如 [{"video_key": "42@peertube.example"}]
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	// Close 关闭客户端连接
	Close() error
}

// GetOnlineFeaturesRequest 获取在线特征请求
type GetOnlineFeaturesRequest struct {
	Features   []string
	EntityRows []map[string]any
	// Project 为空时使用客户端默认项目
	Project string
}

// GetOnlineFeaturesResponse 与请求的 EntityRows 一一对应。
type GetOnlineFeaturesResponse struct {
	FeatureVectors []FeatureVector
}

// FeatureVector 是一个实体行的特征值，缺失的特征不出现在 Values 中。
type FeatureVector struct {
	Values    map[string]any
	EntityRow map[string]any
}

// ClientConfig 是客户端配置。
type ClientConfig struct {
	Endpoint string
	Project  string
	Timeout  time.Duration
	// Token 非空时使用静态 Token 认证
	Token string
	TLS   bool
}

// ClientOption 配置客户端。
type ClientOption func(*ClientConfig)

// WithTimeout 设置单次请求超时。
func WithTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.Timeout = d }
}

// WithStaticToken 使用静态 Token 认证。
func WithStaticToken(token string, tls bool) ClientOption {
	return func(c *ClientConfig) {
		c.Token = token
		c.TLS = tls
	}
}
