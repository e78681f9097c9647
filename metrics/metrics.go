// Package metrics 定义推荐链路的 Prometheus 指标（promauto 注册到默认 registry）。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 相似缓存结果
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStale   = "stale"
	CacheShort   = "short"
	CacheError   = "error"
	CacheBypass  = "bypass"
	CacheWriteOK = "ok"
	CacheWriteKO = "error"
)

var (
	// SimilarCacheLookups 按后端与结果统计相似缓存读取
	SimilarCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_similar_cache_lookups_total",
			Help: "Similarity cache lookups by backend and outcome",
		},
		[]string{"backend", "outcome"}, // hit / miss / stale / short / error / bypass
	)

	SimilarCacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_similar_cache_writes_total",
			Help: "Similarity cache writes by backend and result",
		},
		[]string{"backend", "result"},
	)

	SimilarComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidrec_similar_compute_duration_seconds",
			Help:    "Duration of similarity recomputation against the vector index",
			Buckets: prometheus.DefBuckets,
		},
	)

	SimilarComputeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidrec_similar_compute_errors_total",
			Help: "Similarity recomputations that failed (missing embedding, index error)",
		},
	)

	// LayerPoolSize 是每层召回返回的候选数
	LayerPoolSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidrec_layer_pool_size",
			Help:    "Number of candidates returned by a generator layer",
			Buckets: []float64{0, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"profile", "layer"},
	)

	LayerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_layer_errors_total",
			Help: "Generator layer calls that failed or timed out",
		},
		[]string{"profile", "layer"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidrec_mix_stage_duration_seconds",
			Help:    "Duration of each mixer stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidrec_recommend_duration_seconds",
			Help:    "End-to-end duration of a recommendation request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"profile"},
	)

	RecommendItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidrec_recommend_items",
			Help:    "Number of items returned per recommendation request",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 50, 100},
		},
		[]string{"profile"},
	)
)

// RecordCacheLookup 记录一次相似缓存读取。
func RecordCacheLookup(backend, outcome string) {
	SimilarCacheLookups.WithLabelValues(backend, outcome).Inc()
}

// RecordCacheWrite 记录一次相似缓存写入。
func RecordCacheWrite(backend string, err error) {
	result := CacheWriteOK
	if err != nil {
		result = CacheWriteKO
	}
	SimilarCacheWrites.WithLabelValues(backend, result).Inc()
}

// RecordCompute 记录一次回源计算。
func RecordCompute(d time.Duration, err error) {
	SimilarComputeDuration.Observe(d.Seconds())
	if err != nil {
		SimilarComputeErrors.Inc()
	}
}

// RecordLayer 记录一层召回结果。
func RecordLayer(profile, layer string, size int, err error) {
	if err != nil {
		LayerErrors.WithLabelValues(profile, layer).Inc()
		return
	}
	LayerPoolSize.WithLabelValues(profile, layer).Observe(float64(size))
}

// RecordStage 记录混排阶段耗时。
func RecordStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRequest 记录一次完整请求。
func RecordRequest(profile string, d time.Duration, items int) {
	RecommendDuration.WithLabelValues(profile).Observe(d.Seconds())
	RecommendItems.WithLabelValues(profile).Observe(float64(items))
}
