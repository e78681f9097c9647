package feast

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/conv"
)

// EngagementConfig 描述互动计数在 Feast 中的位置。
type EngagementConfig struct {
	Project string
	// EntityKey 是实体列名，实体值为视频的 like key
	EntityKey    string
	ViewsFeature string
	LikesFeature string
}

// Engagement 用 Feast 中的实时播放/点赞数覆盖元数据里的计数。
// 读取失败时记录日志并保留原计数。
type Engagement struct {
	client Client
	cfg    EngagementConfig
	log    zerolog.Logger
}

func NewEngagement(client Client, cfg EngagementConfig, log zerolog.Logger) *Engagement {
	if cfg.EntityKey == "" {
		cfg.EntityKey = "video_key"
	}
	return &Engagement{client: client, cfg: cfg, log: log.With().Str("component", "feast").Logger()}
}

// Enrich 返回 metas 的副本，其中 Feast 有值的计数被覆盖；输入不会被修改。
func (e *Engagement) Enrich(ctx context.Context, metas []*core.VideoMeta) []*core.VideoMeta {
	if len(metas) == 0 || e.client == nil {
		return metas
	}
	features := e.features()
	if len(features) == 0 {
		return metas
	}

	rows := make([]map[string]any, 0, len(metas))
	index := make([]int, 0, len(metas))
	for i, m := range metas {
		if m == nil || !m.Ref.Valid() {
			continue
		}
		rows = append(rows, map[string]any{e.cfg.EntityKey: m.Ref.LikeKey()})
		index = append(index, i)
	}
	if len(rows) == 0 {
		return metas
	}

	resp, err := e.client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   features,
		EntityRows: rows,
		Project:    e.cfg.Project,
	})
	if err != nil {
		e.log.Warn().Err(err).Int("rows", len(rows)).Msg("engagement lookup failed, keeping stored counts")
		return metas
	}
	if len(resp.FeatureVectors) != len(rows) {
		e.log.Warn().Int("rows", len(rows)).Int("vectors", len(resp.FeatureVectors)).Msg("engagement response size mismatch")
		return metas
	}

	out := make([]*core.VideoMeta, len(metas))
	copy(out, metas)
	for j, fv := range resp.FeatureVectors {
		i := index[j]
		cp := *metas[i]
		changed := false
		if v, ok := e.count(fv, e.cfg.ViewsFeature); ok {
			cp.Views = v
			changed = true
		}
		if v, ok := e.count(fv, e.cfg.LikesFeature); ok {
			cp.Likes = v
			changed = true
		}
		if changed {
			out[i] = &cp
		}
	}
	return out
}

func (e *Engagement) features() []string {
	var out []string
	if e.cfg.ViewsFeature != "" {
		out = append(out, e.cfg.ViewsFeature)
	}
	if e.cfg.LikesFeature != "" {
		out = append(out, e.cfg.LikesFeature)
	}
	return out
}

func (e *Engagement) count(fv FeatureVector, feature string) (int64, bool) {
	if feature == "" {
		return 0, false
	}
	raw, ok := fv.Values[feature]
	if !ok {
		return 0, false
	}
	v, ok := conv.ToInt64(raw)
	if !ok || v < 0 {
		return 0, false
	}
	return v, true
}

// MetadataStore 是带互动计数覆盖的 core.MetadataStore 装饰器。
type MetadataStore struct {
	Next       core.MetadataStore
	Engagement *Engagement
}

func (s *MetadataStore) FetchMetadata(ctx context.Context, refs []core.VideoRef) (map[string]*core.VideoMeta, error) {
	metas, err := s.Next.FetchMetadata(ctx, refs)
	if err != nil || len(metas) == 0 {
		return metas, err
	}
	keys := make([]string, 0, len(metas))
	list := make([]*core.VideoMeta, 0, len(metas))
	for k, m := range metas {
		keys = append(keys, k)
		list = append(list, m)
	}
	list = s.Engagement.Enrich(ctx, list)
	out := make(map[string]*core.VideoMeta, len(metas))
	for i, k := range keys {
		out[k] = list[i]
	}
	return out, nil
}

// CatalogStore 是带互动计数覆盖的 core.CatalogStore 装饰器。
// 目录视图的顺序由底层存储决定，覆盖计数不会重新排序。
type CatalogStore struct {
	Next       core.CatalogStore
	Engagement *Engagement
}

func (s *CatalogStore) FetchPopular(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return s.enrich(ctx)(s.Next.FetchPopular(ctx, limit))
}

func (s *CatalogStore) FetchRecent(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return s.enrich(ctx)(s.Next.FetchRecent(ctx, limit))
}

func (s *CatalogStore) FetchRandom(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return s.enrich(ctx)(s.Next.FetchRandom(ctx, limit))
}

func (s *CatalogStore) enrich(ctx context.Context) func([]*core.VideoMeta, error) ([]*core.VideoMeta, error) {
	return func(metas []*core.VideoMeta, err error) ([]*core.VideoMeta, error) {
		if err != nil {
			return nil, err
		}
		return s.Engagement.Enrich(ctx, metas), nil
	}
}

var (
	_ core.MetadataStore = (*MetadataStore)(nil)
	_ core.CatalogStore  = (*CatalogStore)(nil)
)
