package core

import (
	"strings"
	"time"
)

// VideoRef 是视频的身份元组，贯穿整条推荐链路的 join / 去重 / 缓存 key。
// 两个 VideoRef 指向同一实体，当且仅当 (VideoID, InstanceDomain) 相同；
// VideoUUID 只是附带信息，不参与身份判断。
type VideoRef struct {
	VideoID        string `json:"video_id"`
	InstanceDomain string `json:"instance_domain"`
	VideoUUID      string `json:"video_uuid,omitempty"`
}

// Valid 判断身份是否可解析（两个字段均非空）。
func (r VideoRef) Valid() bool {
	return r.VideoID != "" && r.InstanceDomain != ""
}

// LikeKey 返回稳定的身份字符串。
// 实例域名不会包含 '@'，因此 "<video_id>@<instance_domain>" 是单射的。
func (r VideoRef) LikeKey() string {
	return LikeKey(r.VideoID, r.InstanceDomain)
}

// LikeKey 由 (videoID, instanceDomain) 计算身份字符串。
func LikeKey(videoID, instanceDomain string) string {
	return videoID + "@" + instanceDomain
}

// ParseLikeKey 是 LikeKey 的逆操作。
func ParseLikeKey(key string) (VideoRef, bool) {
	i := strings.LastIndexByte(key, '@')
	if i <= 0 || i == len(key)-1 {
		return VideoRef{}, false
	}
	return VideoRef{VideoID: key[:i], InstanceDomain: key[i+1:]}, true
}

// VideoMeta 是视频的展示元数据（标题、频道、计数、时间戳）。
// 由 ingest 写入，推荐核心只读。
type VideoMeta struct {
	Ref VideoRef `json:"ref"`

	Title        string `json:"title"`
	ChannelID    string `json:"channel_id"`
	ChannelName  string `json:"channel_name"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	URL          string `json:"url,omitempty"`
	Language     string `json:"language,omitempty"`
	NSFW         bool   `json:"nsfw,omitempty"`

	Views       int64 `json:"views"`
	Likes       int64 `json:"likes"`
	DurationSec int   `json:"duration_sec"`

	// PublishedAt 为零值表示缺失
	PublishedAt time.Time `json:"published_at"`
}

// AuthorKey 返回作者（频道）身份，用于多样性上限计数。
// 频道 ID 只在实例内唯一，因此拼上实例域名。
func (m *VideoMeta) AuthorKey() string {
	if m == nil || m.ChannelID == "" {
		return ""
	}
	return m.ChannelID + "@" + m.Ref.InstanceDomain
}

// RecentLike 是用户最近点赞的视频，由用户画像存储持有，本核心只读。
type RecentLike struct {
	Ref       VideoRef  `json:"ref"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LikeKeys 返回点赞集合的身份 key。
func LikeKeys(likes []RecentLike) map[string]struct{} {
	out := make(map[string]struct{}, len(likes))
	for _, l := range likes {
		if l.Ref.Valid() {
			out[l.Ref.LikeKey()] = struct{}{}
		}
	}
	return out
}
