package filter

import (
	"context"
	"fmt"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/dsl"
)

// ExprFilter 用 CEL 表达式过滤候选：表达式为 false 时移除。
//
// 示例：
//
//	f, _ := filter.NewExprFilter(`video.duration >= 60 && !video.nsfw`)
type ExprFilter struct {
	prg *dsl.Program
}

// NewExprFilter 编译表达式；表达式为空时返回 nil, nil（不过滤）。
func NewExprFilter(expr string) (*ExprFilter, error) {
	if expr == "" {
		return nil, nil
	}
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("filter expr: %w", err)
	}
	return &ExprFilter{prg: prg}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, c *core.Candidate) (bool, error) {
	if c == nil {
		return true, nil
	}
	keep, err := f.prg.Eval(c, rctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
