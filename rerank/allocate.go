package rerank

import (
	"context"
	"math"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pipeline"
)

// Allocate 把 total 按 ratios 比例分配。
//   - 比例之和 <= 0 时均分
//   - 每份向下取整，余数逐个分给排在前面的层（按比例分配时只分给比例为正的层）
//
// 返回值与 ratios 一一对应，总和恰为 total（total <= 0 或 ratios 为空时全为 0）。
func Allocate(total int, ratios []float64) []int {
	out := make([]int, len(ratios))
	if total <= 0 || len(ratios) == 0 {
		return out
	}

	sum := 0.0
	for _, r := range ratios {
		if r > 0 {
			sum += r
		}
	}
	if sum <= 0 {
		base, rem := total/len(ratios), total%len(ratios)
		for i := range out {
			out[i] = base
			if i < rem {
				out[i]++
			}
		}
		return out
	}

	assigned := 0
	for i, r := range ratios {
		if r <= 0 {
			continue
		}
		// 加一个极小量，避免 30×0.3 之类的浮点误差被向下取整
		out[i] = int(math.Floor(float64(total)*r/sum + 1e-9))
		assigned += out[i]
	}
	for rem := total - assigned; rem > 0; {
		for i, r := range ratios {
			if rem == 0 {
				break
			}
			if r > 0 {
				out[i]++
				rem--
			}
		}
	}
	return out
}

// AllocateStage 按 mix_ratio 把 batch 分配给实际返回了候选的层，并以各层候选数为上限。
type AllocateStage struct{}

func (AllocateStage) Name() string        { return "rerank.allocate" }
func (AllocateStage) Kind() pipeline.Kind { return pipeline.KindAllocate }

func (AllocateStage) Process(_ context.Context, _ *core.RecommendContext, s *MixState) error {
	s.Active = s.Active[:0]
	for _, l := range s.Layers {
		if len(s.Pools[l.Name]) > 0 {
			s.Active = append(s.Active, l)
		}
	}
	targets := Allocate(s.BatchSize, mixRatios(s.Active))
	for i, l := range s.Active {
		s.Targets[l.Name] = min(targets[i], len(s.Pools[l.Name]))
	}
	return nil
}

func gatherRatios(layers []*config.LayerConfig) []float64 {
	out := make([]float64, len(layers))
	for i, l := range layers {
		out[i] = l.GatherRatio
	}
	return out
}

func mixRatios(layers []*config.LayerConfig) []float64 {
	out := make([]float64, len(layers))
	for i, l := range layers {
		out[i] = l.MixRatio
	}
	return out
}
