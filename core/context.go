package core

import "time"

// RecommendContext 承载一次请求的用户/模式/时间信息，贯穿整个混排流程透传。
// 同一请求内不可变（Trace 除外，它自带锁）。
type RecommendContext struct {
	UserID       string
	Mode         string
	RefreshCache bool

	// Seed 是 upnext 场景下当前播放的视频（可选）
	Seed *VideoRef

	// RecentLikes 由 Engine 在请求开始时读取一次，按时间降序
	RecentLikes []RecentLike

	// Now 是本次请求的统一时间点，保证打分确定性
	Now time.Time

	Trace *Trace
}

// NewRecommendContext 创建请求上下文。
func NewRecommendContext(userID, mode string, likes []RecentLike, now time.Time) *RecommendContext {
	return &RecommendContext{
		UserID:      userID,
		Mode:        mode,
		RecentLikes: likes,
		Now:         now,
		Trace:       NewTrace(),
	}
}

// HasLikes 判断用户是否有可用的点赞。
func (rctx *RecommendContext) HasLikes() bool {
	if rctx == nil {
		return false
	}
	for _, l := range rctx.RecentLikes {
		if l.Ref.Valid() {
			return true
		}
	}
	return false
}

// SeenKeys 返回不应出现在输出中的 like key：最近点赞 + 种子视频。
// 每次调用返回新 map，调用方可以随意追加。
func (rctx *RecommendContext) SeenKeys() map[string]struct{} {
	if rctx == nil {
		return map[string]struct{}{}
	}
	out := LikeKeys(rctx.RecentLikes)
	if rctx.Seed != nil && rctx.Seed.Valid() {
		out[rctx.Seed.LikeKey()] = struct{}{}
	}
	return out
}

// Anchors 返回用于相似召回的锚点：种子（若有）在前，其后是最近点赞。
func (rctx *RecommendContext) Anchors() []VideoRef {
	if rctx == nil {
		return nil
	}
	out := make([]VideoRef, 0, len(rctx.RecentLikes)+1)
	seen := make(map[string]struct{}, len(rctx.RecentLikes)+1)
	if rctx.Seed != nil && rctx.Seed.Valid() {
		out = append(out, *rctx.Seed)
		seen[rctx.Seed.LikeKey()] = struct{}{}
	}
	for _, l := range rctx.RecentLikes {
		if !l.Ref.Valid() {
			continue
		}
		k := l.Ref.LikeKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l.Ref)
	}
	return out
}
