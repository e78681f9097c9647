package filter

import (
	"context"

	"github.com/rushteam/vidrec/core"
)

// SeenFilter 过滤掉用户已点赞的视频、种子视频以及身份无法解析的候选。
// key 集合在创建时从请求上下文取一次。
type SeenFilter struct {
	keys map[string]struct{}
}

// NewSeenFilter 基于请求上下文创建过滤器。
func NewSeenFilter(rctx *core.RecommendContext) *SeenFilter {
	return &SeenFilter{keys: rctx.SeenKeys()}
}

func (f *SeenFilter) Name() string {
	return "filter.seen"
}

func (f *SeenFilter) ShouldFilter(_ context.Context, _ *core.RecommendContext, c *core.Candidate) (bool, error) {
	if c == nil || !c.Ref.Valid() {
		return true, nil
	}
	_, seen := f.keys[c.Key()]
	return seen, nil
}
