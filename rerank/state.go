// Package rerank 实现混排：collect → score → allocate → schedule → postfilter。
//
// 各层的召回预算（gather_ratio）与输出名额（mix_ratio）相互独立：
// 预算按 batch × overfetch 分配，多取的部分用来抵消去重与软上限造成的损耗。
package rerank

import (
	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
)

// MixState 是一次混排在各阶段之间传递的状态。
type MixState struct {
	Profile   *config.Profile
	BatchSize int

	// collect：参与召回的层（按混排顺序）、各层预算与候选池
	Layers  []*config.LayerConfig
	Budgets map[string]int
	Pools   map[string][]*core.Candidate

	// allocate：实际有候选的层及其输出名额
	Active  []*config.LayerConfig
	Targets map[string]int

	// schedule：交织顺序（层名序列）
	Order []string

	Output []*core.Candidate
}

// NewMixState 创建初始状态。
func NewMixState(profile *config.Profile, batchSize int) *MixState {
	return &MixState{
		Profile:   profile,
		BatchSize: batchSize,
		Budgets:   make(map[string]int),
		Pools:     make(map[string][]*core.Candidate),
		Targets:   make(map[string]int),
	}
}
