package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rushteam/vidrec/core"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQL(ctx, "sqlite", ":memory:", 1)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openTestDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	videos := []struct {
		id     string
		views  int64
		pub    time.Time
		vector []float64
	}{
		{"v1", 100, now.Add(-72 * time.Hour), []float64{1, 0}},
		{"v2", 5000, now.Add(-24 * time.Hour), []float64{0, 1}},
		{"v3", 50, now.Add(-1 * time.Hour), nil},
		{"v4", 800, time.Time{}, []float64{0.5, 0.5}},
	}
	for _, v := range videos {
		meta := core.VideoMeta{Ref: ref(v.id), Title: "title " + v.id, ChannelID: "ch-" + v.id, Views: v.views, PublishedAt: v.pub, NSFW: v.id == "v3"}
		if err := s.UpsertVideo(ctx, meta, v.vector); err != nil {
			t.Fatalf("UpsertVideo(%s): %v", v.id, err)
		}
	}

	popular, err := s.FetchPopular(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	wantPopular := []string{"v2", "v4", "v1"}
	for i, m := range popular {
		if m.Ref.VideoID != wantPopular[i] {
			t.Fatalf("popular[%d] = %s, want %s", i, m.Ref.VideoID, wantPopular[i])
		}
	}

	recent, err := s.FetchRecent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	// v4 没有发布时间，不出现在最新列表中
	wantRecent := []string{"v3", "v2", "v1"}
	if len(recent) != len(wantRecent) {
		t.Fatalf("recent = %d rows, want %d", len(recent), len(wantRecent))
	}
	for i, m := range recent {
		if m.Ref.VideoID != wantRecent[i] {
			t.Fatalf("recent[%d] = %s, want %s", i, m.Ref.VideoID, wantRecent[i])
		}
	}
	if !recent[0].NSFW || !recent[0].PublishedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("round trip lost fields: %+v", recent[0])
	}

	random, err := s.FetchRandom(ctx, 2)
	if err != nil || len(random) != 2 {
		t.Fatalf("random = %v, %v", random, err)
	}

	emb, err := s.FetchEmbeddings(ctx, []core.VideoRef{ref("v1"), ref("v3"), ref("missing")})
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 1 || len(emb[ref("v1").LikeKey()]) != 2 {
		t.Fatalf("embeddings = %v", emb)
	}

	// 更新元数据但不传向量时保留原向量
	if err := s.UpsertVideo(ctx, core.VideoMeta{Ref: ref("v1"), Title: "renamed", Views: 1}, nil); err != nil {
		t.Fatal(err)
	}
	emb, _ = s.FetchEmbeddings(ctx, []core.VideoRef{ref("v1")})
	if len(emb) != 1 {
		t.Fatal("embedding dropped by metadata-only upsert")
	}

	meta, err := s.FetchMetadata(ctx, []core.VideoRef{ref("v1"), ref("v2"), {VideoID: "bad"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(meta) != 2 || meta[ref("v1").LikeKey()].Title != "renamed" {
		t.Fatalf("metadata = %v", meta)
	}
}

func TestSQLStoreLikes(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openTestDB(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		if err := s.AddLike(ctx, "u1", core.RecentLike{Ref: ref(id), UpdatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	// 重复点赞刷新时间
	if err := s.AddLike(ctx, "u1", core.RecentLike{Ref: ref("a"), UpdatedAt: base.Add(10 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	likes, err := s.FetchRecentLikes(ctx, "u1", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "d", "c"}
	if len(likes) != len(want) {
		t.Fatalf("likes = %d, want %d", len(likes), len(want))
	}
	for i := range want {
		if likes[i].Ref.VideoID != want[i] {
			t.Fatalf("likes[%d] = %s, want %s", i, likes[i].Ref.VideoID, want[i])
		}
	}

	none, err := s.FetchRecentLikes(ctx, "nobody", 3)
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown user: %v, %v", none, err)
	}
}

func TestSQLStoreIndexItems(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openTestDB(t))
	for id, vec := range map[string][]float64{"a": {1, 0}, "b": {0, 1}, "c": nil, "d": {1, 1, 1}} {
		if err := s.UpsertVideo(ctx, core.VideoMeta{Ref: ref(id)}, vec); err != nil {
			t.Fatal(err)
		}
	}
	items, err := s.IndexItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// 按 like_key 排序：a、b 定下维度 2，d 被跳过
	if len(items) != 2 || items[0].Ref.VideoID != "a" || items[1].Ref.VideoID != "b" {
		t.Fatalf("items = %+v", items)
	}

	idx := NewMemoryVectorIndex()
	if err := idx.Build(items); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 {
		t.Fatalf("index len = %d", idx.Len())
	}
}
