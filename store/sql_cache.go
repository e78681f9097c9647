package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/rushteam/vidrec/core"
)

// SQLCache 是关系库实现的相似缓存（similarity_cache 表），每个源视频每个排名一行。
// Put 在一个事务内先删后插，整体替换旧条目。
type SQLCache struct {
	db *sqlx.DB
}

func NewSQLCache(db *sqlx.DB) *SQLCache {
	return &SQLCache{db: db}
}

func (s *SQLCache) Name() string { return "sql" }

type cacheRow struct {
	SimilarVideoID        string  `db:"similar_video_id"`
	SimilarInstanceDomain string  `db:"similar_instance_domain"`
	SimilarVideoUUID      string  `db:"similar_video_uuid"`
	Score                 float64 `db:"score"`
	ItemRank              int     `db:"item_rank"`
	Meta                  string  `db:"meta"`
	ComputedAt            int64   `db:"computed_at"`
}

func (s *SQLCache) Get(ctx context.Context, source core.VideoRef) (*core.CacheEntry, error) {
	var rows []cacheRow
	q := s.db.Rebind(`SELECT similar_video_id, similar_instance_domain, similar_video_uuid, score, item_rank, meta, computed_at
		FROM similarity_cache
		WHERE source_video_id = ? AND source_instance_domain = ?
		ORDER BY item_rank`)
	if err := s.db.SelectContext(ctx, &rows, q, source.VideoID, source.InstanceDomain); err != nil {
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: sql get", err)
	}
	if len(rows) == 0 {
		return nil, core.ErrCacheMiss
	}

	entry := &core.CacheEntry{Source: source, Items: make([]core.SimilarEntry, 0, len(rows))}
	for _, r := range rows {
		it := core.SimilarEntry{
			Ref:   core.VideoRef{VideoID: r.SimilarVideoID, InstanceDomain: r.SimilarInstanceDomain, VideoUUID: r.SimilarVideoUUID},
			Score: r.Score,
			Rank:  r.ItemRank,
		}
		if r.Meta != "" {
			var m core.VideoMeta
			if err := json.Unmarshal([]byte(r.Meta), &m); err == nil {
				it.Meta = &m
			}
		}
		entry.Items = append(entry.Items, it)
		if ts := fromMillis(r.ComputedAt); ts.After(entry.ComputedAt) {
			entry.ComputedAt = ts
		}
	}
	return entry, nil
}

func (s *SQLCache) Put(ctx context.Context, entry *core.CacheEntry) (err error) {
	if entry == nil || !entry.Source.Valid() {
		return core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: entry requires a valid source")
	}
	cp := cloneEntry(entry)
	cp.Renumber()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: sql begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	del := tx.Rebind(`DELETE FROM similarity_cache WHERE source_video_id = ? AND source_instance_domain = ?`)
	if _, err = tx.ExecContext(ctx, del, cp.Source.VideoID, cp.Source.InstanceDomain); err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: sql delete", err)
	}

	ins := tx.Rebind(`INSERT INTO similarity_cache
		(source_video_id, source_instance_domain, similar_video_id, similar_instance_domain, similar_video_uuid, score, item_rank, meta, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	computed := toMillis(cp.ComputedAt)
	seen := make(map[string]struct{}, len(cp.Items))
	rank := 0
	for _, it := range cp.Items {
		k := it.Ref.LikeKey()
		if _, dup := seen[k]; dup || !it.Ref.Valid() {
			continue
		}
		seen[k] = struct{}{}
		rank++
		var meta string
		if it.Meta != nil {
			data, mErr := json.Marshal(it.Meta)
			if mErr != nil {
				err = fmt.Errorf("marshal meta: %w", mErr)
				return err
			}
			meta = string(data)
		}
		if _, err = tx.ExecContext(ctx, ins, cp.Source.VideoID, cp.Source.InstanceDomain,
			it.Ref.VideoID, it.Ref.InstanceDomain, it.Ref.VideoUUID, it.Score, rank, meta, computed); err != nil {
			return core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: sql insert", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: sql commit", err)
	}
	return nil
}

var _ core.SimilarityCache = (*SQLCache)(nil)
