// Package vidrec 是联邦视频平台的推荐核心。
//
// 设计要点：
// - Layers-first: 个性化流由多个召回层（exploit / explore / popular / fresh / random）按比例采集、打分、交错混排
// - Cache-aside: "与 X 相似" 先读相似缓存，未命中再回源向量索引并回写
// - Trace-first: 层名、混排前后排名等调试信息写入旁路 Trace，不修改候选本身
// - Profile 驱动: 每种模式的层、比例、上限都来自 profile 表（YAML），代码里没有场景分支
package vidrec

import (
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/recommender"
)

// 轻量 facade：便于用户直接 import "vidrec" 使用入口类型。
type (
	Engine    = recommender.Engine
	Stores    = recommender.Stores
	Request   = recommender.Request
	Result    = recommender.Result
	Option    = recommender.Option
	Candidate = core.Candidate
	VideoRef  = core.VideoRef
)

// New 创建推荐引擎，见 recommender.New。
var New = recommender.New
