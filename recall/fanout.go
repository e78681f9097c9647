package recall

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/utils"
)

// Task 是一次按层召回：用 Layer 的配置向对应生成器请求 Limit 个候选。
type Task struct {
	Layer *config.LayerConfig
	Limit int
}

// Result 是单层召回结果；Err 非空时 Candidates 为空。
type Result struct {
	Layer      string
	Candidates []*core.Candidate
	Err        error
	Elapsed    time.Duration
}

// Fanout 并发执行多个层的召回。
// 单层超时或出错只影响该层（结果为空），不中断其他层。
type Fanout struct {
	Generators    map[string]Generator // kind → Generator
	Timeout       time.Duration        // 每层的超时时间，0 表示不限制
	MaxConcurrent int                  // 最大并发数（0 表示无限制）
	Logger        zerolog.Logger
}

// Collect 返回与 tasks 一一对应的结果。只有父 ctx 取消时才返回错误。
func (n *Fanout) Collect(ctx context.Context, rctx *core.RecommendContext, tasks []Task) ([]Result, error) {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	var eg errgroup.Group
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}
	for i, t := range tasks {
		results[i].Layer = t.Layer.Name
		eg.Go(func() error {
			results[i] = n.run(ctx, rctx, t)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (n *Fanout) run(ctx context.Context, rctx *core.RecommendContext, t Task) (res Result) {
	res.Layer = t.Layer.Name
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	g, ok := n.Generators[t.Layer.Kind]
	if !ok {
		res.Err = fmt.Errorf("layer %s: no generator for kind %q", t.Layer.Name, t.Layer.Kind)
		return res
	}

	layerCtx := ctx
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		layerCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	cands, err := g.Generate(layerCtx, rctx, t.Limit, t.Layer)
	if err != nil {
		res.Err = err
		n.Logger.Warn().Err(err).Str("layer", t.Layer.Name).Msg("layer recall failed")
		return res
	}

	// 记录召回来源，方便 explain / 观测
	for _, c := range cands {
		rctx.Trace.Put(c.Key(), core.TraceLayer, utils.Label{Value: t.Layer.Name, Source: "recall"})
	}
	res.Candidates = cands
	return res
}
