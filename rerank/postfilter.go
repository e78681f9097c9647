package rerank

import (
	"context"
	"sort"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pipeline"
	"github.com/rushteam/vidrec/pkg/utils"
)

// Walk 按 order 依次从各层候选池（已按分数降序）取下一个候选，
// 之后追加所有剩余候选（按分数降序，同分保持层顺序）。
func Walk(order []string, layers []string, pools map[string][]*core.Candidate) []*core.Candidate {
	next := make(map[string]int, len(layers))
	out := make([]*core.Candidate, 0, len(order))
	for _, name := range order {
		i := next[name]
		if i >= len(pools[name]) {
			continue
		}
		out = append(out, pools[name][i])
		next[name] = i + 1
	}

	var rest []*core.Candidate
	for _, name := range layers {
		if i := next[name]; i < len(pools[name]) {
			rest = append(rest, pools[name][i:]...)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Score > rest[j].Score })
	return append(out, rest...)
}

// PostFilter 从 walk 中选出最多 batch 个候选：
//  1. 先按层顺序满足 caps.Min 的最小条数
//  2. 再按 walk 顺序补满 batch
//
// 任何时候都跳过 like key 已出现过的候选（seen 或已选中），以及所在层已达到 caps.Max 的候选。
// 输出保持候选在 walk 中的先后顺序。seen 会被追加已选中的 key。
func PostFilter(walk []*core.Candidate, batch int, layers []string, caps config.SoftCaps, seen map[string]struct{}) []*core.Candidate {
	if batch <= 0 || len(walk) == 0 {
		return []*core.Candidate{}
	}
	selected := make([]bool, len(walk))
	counts := make(map[string]int)
	total := 0

	take := func(i int) bool {
		c := walk[i]
		if selected[i] || c == nil {
			return false
		}
		if _, dup := seen[c.Key()]; dup {
			return false
		}
		if limit, ok := caps.Max[c.Layer]; ok && counts[c.Layer] >= limit {
			return false
		}
		selected[i] = true
		seen[c.Key()] = struct{}{}
		counts[c.Layer]++
		total++
		return true
	}

	for _, layer := range layers {
		need := caps.Min[layer]
		for i := 0; i < len(walk) && counts[layer] < need && total < batch; i++ {
			if walk[i] != nil && walk[i].Layer == layer {
				take(i)
			}
		}
	}
	for i := 0; i < len(walk) && total < batch; i++ {
		take(i)
	}

	out := make([]*core.Candidate, 0, total)
	for i, ok := range selected {
		if ok {
			out = append(out, walk[i])
		}
	}
	return out
}

// PostFilterStage 交织、去重、应用软上限，产出最终列表并记录最终排名。
type PostFilterStage struct{}

func (PostFilterStage) Name() string        { return "rerank.postfilter" }
func (PostFilterStage) Kind() pipeline.Kind { return pipeline.KindPostFilter }

func (PostFilterStage) Process(_ context.Context, rctx *core.RecommendContext, s *MixState) error {
	names := make([]string, len(s.Active))
	for i, l := range s.Active {
		names[i] = l.Name
	}
	walk := Walk(s.Order, names, s.Pools)
	s.Output = PostFilter(walk, s.BatchSize, names, s.Profile.SoftCaps, rctx.SeenKeys())
	for i, c := range s.Output {
		rctx.Trace.Put(c.Key(), core.TraceRankFinal, utils.IntLabel(i+1, "mixer"))
	}
	return nil
}
