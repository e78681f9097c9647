package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/rushteam/vidrec/core"
)

// BreakerConfig 是索引熔断配置。
type BreakerConfig struct {
	Name string
	// MaxFailures 连续失败达到该值后打开熔断
	MaxFailures uint32
	// Timeout 是打开状态持续多久后进入半开
	Timeout time.Duration
	// Interval 是关闭状态下计数清零的周期（0 表示不清零）
	Interval time.Duration
	// MaxRequests 是半开状态允许通过的探测请求数
	MaxRequests uint32
}

// BreakerIndex 为向量索引加熔断：索引连续失败后直接快速失败，
// 相似召回据此降级为只读缓存，而不是每个请求都等待一个已经不可用的索引。
type BreakerIndex struct {
	next core.VectorIndex
	cb   *gobreaker.CircuitBreaker[[]core.VectorHit]
}

// NewBreakerIndex 包装 next。
func NewBreakerIndex(next core.VectorIndex, cfg BreakerConfig, logger zerolog.Logger) *BreakerIndex {
	if cfg.Name == "" {
		cfg.Name = "vector_index"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	log := logger.With().Str("component", "breaker_index").Logger()
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("index breaker state changed")
		},
		// 调用方取消不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerIndex{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[[]core.VectorHit](settings),
	}
}

// Search 实现 core.VectorIndex；熔断打开时返回 core.ErrIndexUnavailable。
func (b *BreakerIndex) Search(ctx context.Context, vector []float64, k int, exclude map[string]struct{}) ([]core.VectorHit, error) {
	hits, err := b.cb.Execute(func() ([]core.VectorHit, error) {
		return b.next.Search(ctx, vector, k, exclude)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, core.WrapDomainError(core.ModuleVector, core.ErrorCodeUnavailable, "vector: index unavailable", err)
	}
	return hits, err
}

// State 返回熔断器当前状态（closed / half-open / open）。
func (b *BreakerIndex) State() string { return b.cb.State().String() }

var _ core.VectorIndex = (*BreakerIndex)(nil)
