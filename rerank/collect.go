package rerank

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/metrics"
	"github.com/rushteam/vidrec/pipeline"
	"github.com/rushteam/vidrec/recall"
)

// CollectStage 选出可参与的层，按 gather_ratio 分配召回预算 ceil(batch × overfetch)，
// 并发调用各层生成器。出错或超时的层视为空池，不影响其他层。
type CollectStage struct {
	Generators    map[string]recall.Generator
	MaxConcurrent int
	Logger        zerolog.Logger
}

func (n *CollectStage) Name() string        { return "rerank.collect" }
func (n *CollectStage) Kind() pipeline.Kind { return pipeline.KindCollect }

func (n *CollectStage) Process(ctx context.Context, rctx *core.RecommendContext, s *MixState) error {
	s.Layers = EligibleLayers(s.Profile, rctx)
	fetchTotal := int(math.Ceil(float64(s.BatchSize) * s.Profile.OverfetchFactor))
	budgets := Allocate(fetchTotal, gatherRatios(s.Layers))

	tasks := make([]recall.Task, 0, len(s.Layers))
	for i, l := range s.Layers {
		s.Budgets[l.Name] = budgets[i]
		if budgets[i] > 0 {
			tasks = append(tasks, recall.Task{Layer: l, Limit: budgets[i]})
		}
	}

	fanout := &recall.Fanout{
		Generators:    n.Generators,
		Timeout:       time.Duration(s.Profile.LayerTimeoutMS) * time.Millisecond,
		MaxConcurrent: n.MaxConcurrent,
		Logger:        n.Logger,
	}
	results, err := fanout.Collect(ctx, rctx, tasks)
	if err != nil {
		return err
	}
	for _, r := range results {
		metrics.RecordLayer(s.Profile.Name, r.Layer, len(r.Candidates), r.Err)
		n.Logger.Debug().
			Str("profile", s.Profile.Name).
			Str("layer", r.Layer).
			Int("budget", s.Budgets[r.Layer]).
			Int("pool", len(r.Candidates)).
			Dur("elapsed", r.Elapsed).
			Msg("layer collected")
		if r.Err == nil && len(r.Candidates) > 0 {
			s.Pools[r.Layer] = r.Candidates
		}
	}
	return nil
}

// EligibleLayers 返回按混排顺序排列的、启用且点赞条件满足的层。
func EligibleLayers(p *config.Profile, rctx *core.RecommendContext) []*config.LayerConfig {
	hasLikes := rctx.HasLikes()
	var out []*config.LayerConfig
	for _, l := range p.OrderedLayers() {
		if !l.IsEnabled() || (l.RequiresLikes && !hasLikes) {
			continue
		}
		out = append(out, l)
	}
	return out
}
