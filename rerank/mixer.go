package rerank

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pipeline"
	"github.com/rushteam/vidrec/recall"
)

// Mixer 把各层候选池合成一个有序、去重、满足软上限的列表。
type Mixer struct {
	pipeline *pipeline.Pipeline[MixState]
}

// Option 配置 Mixer。
type Option func(*mixerOptions)

type mixerOptions struct {
	log           zerolog.Logger
	maxConcurrent int
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *mixerOptions) { o.log = l }
}

// WithMaxConcurrent 限制 collect 阶段同时召回的层数（0 表示不限制）。
func WithMaxConcurrent(n int) Option {
	return func(o *mixerOptions) { o.maxConcurrent = n }
}

// NewMixer 用 kind → Generator 的映射创建 Mixer。
func NewMixer(generators map[string]recall.Generator, opts ...Option) *Mixer {
	o := mixerOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With().Str("component", "mixer").Logger()
	return &Mixer{
		pipeline: &pipeline.Pipeline[MixState]{
			Stages: []pipeline.Stage[MixState]{
				&CollectStage{Generators: generators, MaxConcurrent: o.maxConcurrent, Logger: log},
				ScoreStage{},
				AllocateStage{},
				ScheduleStage{},
				PostFilterStage{},
			},
			Logger: log,
		},
	}
}

// Mix 执行一次混排，返回至多 batchSize 个候选。
// 没有任何层产出候选时返回空列表；只有 ctx 取消会返回错误。
func (m *Mixer) Mix(ctx context.Context, rctx *core.RecommendContext, profile *config.Profile, batchSize int) ([]*core.Candidate, error) {
	if batchSize <= 0 {
		return []*core.Candidate{}, nil
	}
	state := NewMixState(profile, batchSize)
	if err := m.pipeline.Run(ctx, rctx, state); err != nil {
		return nil, err
	}
	if state.Output == nil {
		return []*core.Candidate{}, nil
	}
	return state.Output, nil
}
