package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib" // 注册 "pgx" 驱动
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // 注册 "sqlite" 驱动

	"github.com/rushteam/vidrec/core"
)

// Schema 是 SQLStore / SQLCache 使用的表结构，sqlite 与 postgres 通用。
// 时间统一存 unix 毫秒（0 表示缺失），布尔存 0/1。
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS videos (
		like_key        TEXT PRIMARY KEY,
		video_id        TEXT NOT NULL,
		instance_domain TEXT NOT NULL,
		video_uuid      TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		channel_id      TEXT NOT NULL DEFAULT '',
		channel_name    TEXT NOT NULL DEFAULT '',
		thumbnail_url   TEXT NOT NULL DEFAULT '',
		url             TEXT NOT NULL DEFAULT '',
		language        TEXT NOT NULL DEFAULT '',
		nsfw            INTEGER NOT NULL DEFAULT 0,
		views           BIGINT NOT NULL DEFAULT 0,
		likes           BIGINT NOT NULL DEFAULT 0,
		duration_sec    INTEGER NOT NULL DEFAULT 0,
		published_at    BIGINT NOT NULL DEFAULT 0,
		embedding       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS videos_views_idx ON videos (views DESC)`,
	`CREATE INDEX IF NOT EXISTS videos_published_idx ON videos (published_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_likes (
		user_id         TEXT NOT NULL,
		video_id        TEXT NOT NULL,
		instance_domain TEXT NOT NULL,
		video_uuid      TEXT NOT NULL DEFAULT '',
		updated_at      BIGINT NOT NULL,
		PRIMARY KEY (user_id, video_id, instance_domain)
	)`,
	`CREATE TABLE IF NOT EXISTS similarity_cache (
		source_video_id         TEXT NOT NULL,
		source_instance_domain  TEXT NOT NULL,
		similar_video_id        TEXT NOT NULL,
		similar_instance_domain TEXT NOT NULL,
		similar_video_uuid      TEXT NOT NULL DEFAULT '',
		score                   DOUBLE PRECISION NOT NULL,
		item_rank               INTEGER NOT NULL,
		meta                    TEXT NOT NULL DEFAULT '',
		computed_at             BIGINT NOT NULL,
		PRIMARY KEY (source_video_id, source_instance_domain, similar_video_id, similar_instance_domain)
	)`,
}

// OpenSQL 打开数据库连接。driver 为 "sqlite"（modernc）或 "pgx"。
func OpenSQL(ctx context.Context, driver, dsn string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "store: connect "+driver, err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	return db, nil
}

// Migrate 创建表结构（幂等）。
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SQLStore 是关系库实现的目录/点赞/向量存储。
// 同时实现 core.CatalogStore、core.MetadataStore、core.LikeStore、core.EmbeddingStore。
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Name() string { return "sql:" + s.db.DriverName() }

type videoRow struct {
	LikeKey        string `db:"like_key"`
	VideoID        string `db:"video_id"`
	InstanceDomain string `db:"instance_domain"`
	VideoUUID      string `db:"video_uuid"`
	Title          string `db:"title"`
	ChannelID      string `db:"channel_id"`
	ChannelName    string `db:"channel_name"`
	ThumbnailURL   string `db:"thumbnail_url"`
	URL            string `db:"url"`
	Language       string `db:"language"`
	NSFW           int    `db:"nsfw"`
	Views          int64  `db:"views"`
	Likes          int64  `db:"likes"`
	DurationSec    int    `db:"duration_sec"`
	PublishedAt    int64  `db:"published_at"`
}

const videoColumns = `like_key, video_id, instance_domain, video_uuid, title, channel_id, channel_name,
	thumbnail_url, url, language, nsfw, views, likes, duration_sec, published_at`

func (r *videoRow) meta() *core.VideoMeta {
	m := &core.VideoMeta{
		Ref:          core.VideoRef{VideoID: r.VideoID, InstanceDomain: r.InstanceDomain, VideoUUID: r.VideoUUID},
		Title:        r.Title,
		ChannelID:    r.ChannelID,
		ChannelName:  r.ChannelName,
		ThumbnailURL: r.ThumbnailURL,
		URL:          r.URL,
		Language:     r.Language,
		NSFW:         r.NSFW != 0,
		Views:        r.Views,
		Likes:        r.Likes,
		DurationSec:  r.DurationSec,
	}
	m.PublishedAt = fromMillis(r.PublishedAt)
	return m
}

// UpsertVideo 写入视频元数据；vector 非 nil 时同时写入向量（JSON 编码）。
func (s *SQLStore) UpsertVideo(ctx context.Context, meta core.VideoMeta, vector []float64) error {
	if !meta.Ref.Valid() {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "store: video requires a valid ref")
	}
	var embedding string
	if vector != nil {
		data, err := json.Marshal(vector)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embedding = string(data)
	}
	nsfw := 0
	if meta.NSFW {
		nsfw = 1
	}
	q := s.db.Rebind(`INSERT INTO videos (` + videoColumns + `, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (like_key) DO UPDATE SET
			video_uuid = excluded.video_uuid, title = excluded.title,
			channel_id = excluded.channel_id, channel_name = excluded.channel_name,
			thumbnail_url = excluded.thumbnail_url, url = excluded.url,
			language = excluded.language, nsfw = excluded.nsfw,
			views = excluded.views, likes = excluded.likes,
			duration_sec = excluded.duration_sec, published_at = excluded.published_at,
			embedding = CASE WHEN excluded.embedding = '' THEN videos.embedding ELSE excluded.embedding END`)
	_, err := s.db.ExecContext(ctx, q,
		meta.Ref.LikeKey(), meta.Ref.VideoID, meta.Ref.InstanceDomain, meta.Ref.VideoUUID,
		meta.Title, meta.ChannelID, meta.ChannelName, meta.ThumbnailURL, meta.URL, meta.Language,
		nsfw, meta.Views, meta.Likes, meta.DurationSec, toMillis(meta.PublishedAt), embedding)
	if err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}
	return nil
}

// AddLike 记录点赞（重复点赞更新时间）。
func (s *SQLStore) AddLike(ctx context.Context, userID string, like core.RecentLike) error {
	q := s.db.Rebind(`INSERT INTO user_likes (user_id, video_id, instance_domain, video_uuid, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, video_id, instance_domain) DO UPDATE SET updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, q, userID, like.Ref.VideoID, like.Ref.InstanceDomain, like.Ref.VideoUUID, toMillis(like.UpdatedAt))
	if err != nil {
		return fmt.Errorf("add like: %w", err)
	}
	return nil
}

func (s *SQLStore) FetchRecentLikes(ctx context.Context, userID string, max int) ([]core.RecentLike, error) {
	if max <= 0 {
		max = 50
	}
	var rows []struct {
		VideoID        string `db:"video_id"`
		InstanceDomain string `db:"instance_domain"`
		VideoUUID      string `db:"video_uuid"`
		UpdatedAt      int64  `db:"updated_at"`
	}
	q := s.db.Rebind(`SELECT video_id, instance_domain, video_uuid, updated_at FROM user_likes
		WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, userID, max); err != nil {
		return nil, unavailable("fetch recent likes", err)
	}
	out := make([]core.RecentLike, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.RecentLike{
			Ref:       core.VideoRef{VideoID: r.VideoID, InstanceDomain: r.InstanceDomain, VideoUUID: r.VideoUUID},
			UpdatedAt: fromMillis(r.UpdatedAt),
		})
	}
	return out, nil
}

func (s *SQLStore) FetchEmbeddings(ctx context.Context, refs []core.VideoRef) (map[string][]float64, error) {
	keys := refsKeys(refs)
	out := make(map[string][]float64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT like_key, embedding FROM videos WHERE like_key IN (?) AND embedding <> ''`, keys)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []struct {
		LikeKey   string `db:"like_key"`
		Embedding string `db:"embedding"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, unavailable("fetch embeddings", err)
	}
	for _, r := range rows {
		var v []float64
		if err := json.Unmarshal([]byte(r.Embedding), &v); err != nil {
			// 损坏的向量视为缺失
			continue
		}
		out[r.LikeKey] = v
	}
	return out, nil
}

// IndexItems 读出全部带向量的视频，用于构建 MemoryVectorIndex。
// 维度与第一条不一致的向量会被跳过。
func (s *SQLStore) IndexItems(ctx context.Context) ([]IndexItem, error) {
	var rows []struct {
		VideoID        string `db:"video_id"`
		InstanceDomain string `db:"instance_domain"`
		VideoUUID      string `db:"video_uuid"`
		Embedding      string `db:"embedding"`
	}
	q := `SELECT video_id, instance_domain, video_uuid, embedding FROM videos WHERE embedding <> '' ORDER BY like_key`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, unavailable("load index items", err)
	}
	out := make([]IndexItem, 0, len(rows))
	dim := 0
	for _, r := range rows {
		var v []float64
		if err := json.Unmarshal([]byte(r.Embedding), &v); err != nil || len(v) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			continue
		}
		out = append(out, IndexItem{
			Ref:    core.VideoRef{VideoID: r.VideoID, InstanceDomain: r.InstanceDomain, VideoUUID: r.VideoUUID},
			Vector: v,
		})
	}
	return out, nil
}

func (s *SQLStore) FetchMetadata(ctx context.Context, refs []core.VideoRef) (map[string]*core.VideoMeta, error) {
	keys := refsKeys(refs)
	out := make(map[string]*core.VideoMeta, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT `+videoColumns+` FROM videos WHERE like_key IN (?)`, keys)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []videoRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, unavailable("fetch metadata", err)
	}
	for i := range rows {
		out[rows[i].LikeKey] = rows[i].meta()
	}
	return out, nil
}

func (s *SQLStore) FetchPopular(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return s.list(ctx, "fetch popular", `ORDER BY views DESC, likes DESC, like_key`, limit)
}

func (s *SQLStore) FetchRecent(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return s.list(ctx, "fetch recent", `WHERE published_at > 0 ORDER BY published_at DESC, like_key`, limit)
}

func (s *SQLStore) FetchRandom(ctx context.Context, limit int) ([]*core.VideoMeta, error) {
	return s.list(ctx, "fetch random", `ORDER BY RANDOM()`, limit)
}

func (s *SQLStore) list(ctx context.Context, op, clause string, limit int) ([]*core.VideoMeta, error) {
	if limit <= 0 {
		return []*core.VideoMeta{}, nil
	}
	var rows []videoRow
	q := s.db.Rebind(`SELECT ` + videoColumns + ` FROM videos ` + clause + ` LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, unavailable(op, err)
	}
	out := make([]*core.VideoMeta, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].meta())
	}
	return out, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "store: "+op, err)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

var (
	_ core.CatalogStore   = (*SQLStore)(nil)
	_ core.MetadataStore  = (*SQLStore)(nil)
	_ core.LikeStore      = (*SQLStore)(nil)
	_ core.EmbeddingStore = (*SQLStore)(nil)
)
