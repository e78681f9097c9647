package rerank

import (
	"context"
	"sort"
	"time"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pipeline"
	"github.com/rushteam/vidrec/pkg/utils"
	"github.com/rushteam/vidrec/rank"
)

// ScoreStage 用产生候选的层给每个候选打分，各层池按分数降序排列（同分保持召回顺序），
// 并记录混排前的层内排名与池内分数范围。
type ScoreStage struct{}

func (ScoreStage) Name() string        { return "rerank.score" }
func (ScoreStage) Kind() pipeline.Kind { return pipeline.KindScore }

func (ScoreStage) Process(_ context.Context, rctx *core.RecommendContext, s *MixState) error {
	now := rctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	scorer := rank.NewScorer(s.Profile.Scoring)
	for _, l := range s.Layers {
		pool := s.Pools[l.Name]
		if len(pool) == 0 {
			continue
		}
		scorer.Apply(pool, now)
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })

		for i, c := range pool {
			rctx.Trace.Put(c.Key(), core.TraceRankPre, utils.IntLabel(i+1, l.Name))
		}
		rctx.Trace.PutLayer(l.Name, core.TracePoolMax, utils.FloatLabel(pool[0].Score, "score"))
		rctx.Trace.PutLayer(l.Name, core.TracePoolMin, utils.FloatLabel(pool[len(pool)-1].Score, "score"))
	}
	return nil
}
