package pipeline

import (
	"context"

	"github.com/rushteam/vidrec/core"
)

// Kind 用于标记 Stage 类型，方便观测（例如按阶段打点）。
type Kind string

const (
	KindCollect    Kind = "collect"    // 按层召回候选池
	KindScore      Kind = "score"      // 对候选打分并按层排序
	KindAllocate   Kind = "allocate"   // 按 mix_ratio 分配各层输出名额
	KindSchedule   Kind = "schedule"   // 按比例生成交织顺序
	KindPostFilter Kind = "postfilter" // 去重、软上限，截断到 batch
)

// Stage 是 Pipeline 的最小可扩展单元：读取并修改同一个请求状态 S。
type Stage[S any] interface {
	Name() string
	Kind() Kind

	Process(ctx context.Context, rctx *core.RecommendContext, state *S) error
}
