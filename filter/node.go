package filter

import (
	"context"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/utils"
)

// Apply 依次用 filters 检查候选，任何一个过滤器返回 true 即移除。
// 过滤器出错时忽略该过滤器（保留候选），不中断流程。
// 被移除的候选在 Trace 中记录过滤器名称。
func Apply(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate, filters ...Filter) []*core.Candidate {
	if len(filters) == 0 || len(cands) == 0 {
		return cands
	}

	out := make([]*core.Candidate, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}

		reason := ""
		for _, f := range filters {
			if f == nil {
				continue
			}
			ok, err := f.ShouldFilter(ctx, rctx, c)
			if err != nil {
				continue
			}
			if ok {
				reason = f.Name()
				break
			}
		}

		if reason != "" {
			if rctx != nil {
				rctx.Trace.Put(c.Key(), core.TraceDropped, utils.Label{Value: "true", Source: reason})
			}
			continue
		}
		out = append(out, c)
	}
	return out
}
