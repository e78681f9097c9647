package rerank

import (
	"context"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pipeline"
)

// Schedule 生成交织顺序：每一步选择 count/target 最小的层（并列时取靠前的层），
// 直到每层都达到 target。返回层下标序列，长度为 targets 之和（负数按 0 计）。
func Schedule(targets []int) []int {
	total := 0
	for _, t := range targets {
		if t > 0 {
			total += t
		}
	}
	out := make([]int, 0, total)
	counts := make([]int, len(targets))
	for len(out) < total {
		best := -1
		for i, t := range targets {
			if t <= 0 || counts[i] >= t {
				continue
			}
			// counts[i]/t < counts[best]/targets[best]，交叉相乘避免浮点
			if best < 0 || counts[i]*targets[best] < counts[best]*t {
				best = i
			}
		}
		out = append(out, best)
		counts[best]++
	}
	return out
}

// ScheduleStage 把 Targets 转成层名交织序列。
type ScheduleStage struct{}

func (ScheduleStage) Name() string        { return "rerank.schedule" }
func (ScheduleStage) Kind() pipeline.Kind { return pipeline.KindSchedule }

func (ScheduleStage) Process(_ context.Context, _ *core.RecommendContext, s *MixState) error {
	targets := make([]int, len(s.Active))
	for i, l := range s.Active {
		targets[i] = s.Targets[l.Name]
	}
	idx := Schedule(targets)
	s.Order = make([]string, len(idx))
	for i, j := range idx {
		s.Order[i] = s.Active[j].Name
	}
	return nil
}
