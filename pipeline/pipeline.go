// Package pipeline 把一次请求拆成按顺序执行的 Stage 链，统一做耗时打点与日志。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/metrics"
)

// Pipeline 依次执行 Stages；任何一个 Stage 返回错误即中止。
type Pipeline[S any] struct {
	Stages []Stage[S]
	Logger zerolog.Logger
}

func (p *Pipeline[S]) Run(ctx context.Context, rctx *core.RecommendContext, state *S) error {
	for _, stage := range p.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := stage.Process(ctx, rctx, state)
		elapsed := time.Since(start)
		metrics.RecordStage(string(stage.Kind()), elapsed)
		p.Logger.Debug().Str("stage", stage.Name()).Dur("elapsed", elapsed).Err(err).Msg("stage done")
		if err != nil {
			return fmt.Errorf("%s: %w", stage.Name(), err)
		}
	}
	return nil
}
