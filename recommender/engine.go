// Package recommender 是推荐核心的调用入口：个性化混排 GenerateRecommendations
// 与单种子相似查询 GetSimilarCandidates。
package recommender

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/metrics"
	"github.com/rushteam/vidrec/recall"
	"github.com/rushteam/vidrec/rerank"
	"github.com/rushteam/vidrec/similar"
)

const tracerName = "github.com/rushteam/vidrec/recommender"

// Stores 是 Engine 依赖的全部存储。Cache 为空时相似查询每次回源。
type Stores struct {
	Likes      core.LikeStore
	Catalog    core.CatalogStore
	Embeddings core.EmbeddingStore
	Metadata   core.MetadataStore
	Index      core.VectorIndex
	Cache      core.SimilarityCache
}

// Request 是一次个性化推荐请求。
type Request struct {
	UserID string
	// Mode 选择 profile（home / upnext ...），为空时为 home
	Mode string
	// Limit > 0 时覆盖 profile 的 batch_size（不超过 max_batch_size）
	Limit        int
	RefreshCache bool
	// Seed 是 upnext 场景下正在播放的视频
	Seed *core.VideoRef
}

// Result 是推荐结果；Count 恒等于 len(Items)。
type Result struct {
	Profile string            `json:"profile"`
	Items   []*core.Candidate `json:"items"`
	Count   int               `json:"count"`
	Trace   *core.Trace       `json:"trace,omitempty"`
}

// Engine 组装 profile 表、召回层、相似流水线与混排器。并发安全。
type Engine struct {
	profiles       *config.Table
	likes          core.LikeStore
	similar        *similar.Pipeline
	mixer          *rerank.Mixer
	maxRecentLikes int

	log    zerolog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

type options struct {
	profiles       *config.Table
	similar        similar.Config
	maxRecentLikes int
	maxConcurrent  int
	log            zerolog.Logger
	now            func() time.Time
}

// Option 配置 Engine。
type Option func(*options)

// WithProfiles 使用自定义 profile 表，缺省为 config.DefaultTable()。
func WithProfiles(t *config.Table) Option {
	return func(o *options) { o.profiles = t }
}

func WithSimilarConfig(cfg similar.Config) Option {
	return func(o *options) { o.similar = cfg }
}

// WithMaxRecentLikes 设置读取点赞的上限；各 profile 的 max_recent_likes 会进一步截断。
func WithMaxRecentLikes(n int) Option {
	return func(o *options) { o.maxRecentLikes = n }
}

// WithMaxConcurrent 限制一次请求内并发召回的层数。
func WithMaxConcurrent(n int) Option {
	return func(o *options) { o.maxConcurrent = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock 替换时间源（测试用）。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New 创建 Engine。profile 表中存在没有对应生成器的层类型时返回 ErrInvalidConfig。
func New(stores Stores, opts ...Option) (*Engine, error) {
	o := options{
		maxRecentLikes: config.DefaultMaxRecentLikes,
		log:            zerolog.Nop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.profiles == nil {
		o.profiles = config.DefaultTable()
	}

	simOpts := []similar.Option{similar.WithConfig(o.similar), similar.WithLogger(o.log), similar.WithClock(o.now)}
	if stores.Cache != nil {
		simOpts = append(simOpts, similar.WithCache(stores.Cache))
	}
	pipe := similar.NewPipeline(stores.Index, stores.Embeddings, stores.Metadata, simOpts...)

	generators := recall.Build(recall.Deps{
		Catalog:    stores.Catalog,
		Embeddings: stores.Embeddings,
		Similar:    pipe,
		Logger:     o.log,
	})
	if err := checkKinds(o.profiles, generators); err != nil {
		return nil, err
	}

	return &Engine{
		profiles:       o.profiles,
		likes:          stores.Likes,
		similar:        pipe,
		mixer:          rerank.NewMixer(generators, rerank.WithLogger(o.log), rerank.WithMaxConcurrent(o.maxConcurrent)),
		maxRecentLikes: o.maxRecentLikes,
		log:            o.log.With().Str("component", "recommender").Logger(),
		now:            o.now,
		tracer:         otel.Tracer(tracerName),
	}, nil
}

func checkKinds(t *config.Table, generators map[string]recall.Generator) error {
	for _, name := range t.Names() {
		p, _ := t.Get(name)
		for _, l := range p.Layers {
			if _, ok := generators[l.Kind]; !ok {
				return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig,
					fmt.Sprintf("profile %s layer %s: unsupported kind %q (supported: %v)", name, l.Name, l.Kind, recall.SupportedKinds()),
					core.ErrInvalidConfig)
			}
		}
	}
	return nil
}

// GenerateRecommendations 返回个性化混排结果。
//
// 数据访问失败一律吸收（结果变短，最差为空列表且 Count 为 0）；
// 只有 profile 解析失败（配置错误）与 ctx 取消会返回错误。
func (e *Engine) GenerateRecommendations(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "recommender.GenerateRecommendations",
		trace.WithAttributes(
			attribute.String("vidrec.mode", req.Mode),
			attribute.Int("vidrec.limit", req.Limit),
			attribute.Bool("vidrec.refresh_cache", req.RefreshCache),
		))
	defer span.End()
	start := time.Now()

	likes := e.recentLikes(ctx, req.UserID)
	rctx := core.NewRecommendContext(req.UserID, req.Mode, likes, e.now())
	rctx.RefreshCache = req.RefreshCache
	if req.Seed != nil && req.Seed.Valid() {
		seed := *req.Seed
		rctx.Seed = &seed
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		rctx.Trace.RequestID = sc.TraceID().String()
	}

	profile, err := e.profiles.Resolve(req.Mode, rctx.HasLikes())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile resolution failed")
		e.log.Error().Err(err).Str("mode", req.Mode).Msg("resolve profile")
		return nil, err
	}
	if profile.MaxRecentLikes > 0 && len(rctx.RecentLikes) > profile.MaxRecentLikes {
		rctx.RecentLikes = rctx.RecentLikes[:profile.MaxRecentLikes]
	}
	if rctx.Mode == "" {
		rctx.Mode = config.DefaultMode
	}

	batch := profile.EffectiveBatchSize(req.Limit)
	items, err := e.mixer.Mix(ctx, rctx, profile, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mix failed")
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.RecordRequest(profile.Name, elapsed, len(items))
	span.SetAttributes(
		attribute.String("vidrec.profile", profile.Name),
		attribute.Int("vidrec.count", len(items)),
		attribute.Int("vidrec.likes", len(rctx.RecentLikes)),
	)
	e.log.Debug().
		Str("request_id", rctx.Trace.RequestID).
		Str("profile", profile.Name).
		Int("batch", batch).
		Int("count", len(items)).
		Dur("elapsed", elapsed).
		Msg("recommendations generated")

	return &Result{Profile: profile.Name, Items: items, Count: len(items), Trace: rctx.Trace}, nil
}

// GetSimilarCandidates 返回与 seed 相似的至多 limit 个候选，永不包含 seed 本身。
func (e *Engine) GetSimilarCandidates(ctx context.Context, seed core.VideoRef, limit int, policy similar.Policy) ([]*core.Candidate, error) {
	ctx, span := e.tracer.Start(ctx, "recommender.GetSimilarCandidates",
		trace.WithAttributes(
			attribute.String("vidrec.seed", seed.LikeKey()),
			attribute.Int("vidrec.limit", limit),
		))
	defer span.End()

	out, err := e.similar.GetSimilarCandidates(ctx, seed, limit, policy)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "similar lookup failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("vidrec.count", len(out)))
	return out, nil
}

func (e *Engine) recentLikes(ctx context.Context, userID string) []core.RecentLike {
	if userID == "" || e.likes == nil {
		return nil
	}
	likes, err := e.likes.FetchRecentLikes(ctx, userID, e.maxRecentLikes)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("recent likes unavailable, serving guest profile")
		return nil
	}
	return likes
}
