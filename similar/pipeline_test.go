package similar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/store"
)

const instance = "tube.example"

func vref(id string) core.VideoRef {
	return core.VideoRef{VideoID: id, InstanceDomain: instance}
}

// countingIndex 统计检索次数。
type countingIndex struct {
	next  core.VectorIndex
	calls atomic.Int32
	err   error
}

func (c *countingIndex) Search(ctx context.Context, v []float64, k int, exclude map[string]struct{}) ([]core.VectorHit, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.next.Search(ctx, v, k, exclude)
}

// failingCache 读正常、写失败。
type failingCache struct {
	*store.MemoryCache
	puts int
}

func (f *failingCache) Put(ctx context.Context, e *core.CacheEntry) error {
	f.puts++
	return errors.New("disk full")
}

type fixture struct {
	catalog *store.MemoryStore
	index   *countingIndex
	cache   *store.MemoryCache
	seed    core.VideoRef
}

// newFixture 构造 n 个视频：seed 的向量为 (1,0)，其余视频逐渐远离；
// 作者按 authors 轮转。
func newFixture(t *testing.T, n, authors int) *fixture {
	t.Helper()
	catalog := store.NewMemoryStore()
	idx := store.NewMemoryVectorIndex()
	seed := vref("seed")
	catalog.PutVideo(core.VideoMeta{Ref: seed, ChannelID: "author-0"}, []float64{1, 0})
	items := []store.IndexItem{{Ref: seed, Vector: []float64{1, 0}}}
	for i := 0; i < n; i++ {
		r := vref(fmt.Sprintf("v%02d", i))
		vec := []float64{1, float64(i+1) * 0.05}
		catalog.PutVideo(core.VideoMeta{Ref: r, Title: r.VideoID, ChannelID: fmt.Sprintf("author-%d", i%authors)}, vec)
		items = append(items, store.IndexItem{Ref: r, Vector: vec})
	}
	if err := idx.Build(items); err != nil {
		t.Fatal(err)
	}
	return &fixture{catalog: catalog, index: &countingIndex{next: idx}, cache: store.NewMemoryCache(), seed: seed}
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	opts = append([]Option{WithCache(f.cache)}, opts...)
	return NewPipeline(f.index, f.catalog, f.catalog, opts...)
}

func (f *fixture) seedCache(t *testing.T, n int, computed time.Time) {
	t.Helper()
	entry := &core.CacheEntry{Source: f.seed, ComputedAt: computed}
	for i := 0; i < n; i++ {
		entry.Items = append(entry.Items, core.SimilarEntry{Ref: vref(fmt.Sprintf("v%02d", i)), Score: 0.9})
	}
	if err := f.cache.Put(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
}

func assertNoSeed(t *testing.T, seed core.VideoRef, out []*core.Candidate) {
	t.Helper()
	for _, c := range out {
		if c.Key() == seed.LikeKey() {
			t.Fatalf("seed %s recommended to itself", seed.LikeKey())
		}
	}
}

func TestFullCacheEntryServedWithoutCompute(t *testing.T) {
	f := newFixture(t, 30, 30)
	f.seedCache(t, 20, time.Now())
	p := f.pipeline()

	policy := DefaultPolicy()
	policy.RequireFullCache = true
	out, err := p.GetSimilarCandidates(context.Background(), f.seed, 20, policy)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.index.calls.Load(); got != 0 {
		t.Fatalf("index called %d times for a full cache entry", got)
	}
	if len(out) != 20 {
		t.Fatalf("len = %d, want 20", len(out))
	}
	for i, c := range out {
		if want := fmt.Sprintf("v%02d", i); c.Ref.VideoID != want {
			t.Fatalf("out[%d] = %s, want %s (cached order)", i, c.Ref.VideoID, want)
		}
		if c.Meta == nil || c.Meta.Title != c.Ref.VideoID {
			t.Fatalf("out[%d] not resolved to metadata", i)
		}
	}
}

func TestShortCacheEntryRecomputes(t *testing.T) {
	f := newFixture(t, 30, 30)
	f.seedCache(t, 5, time.Now())
	p := f.pipeline()

	policy := DefaultPolicy()
	policy.RequireFullCache = true
	out, _ := p.GetSimilarCandidates(context.Background(), f.seed, 20, policy)
	if f.index.calls.Load() != 1 {
		t.Fatalf("expected one recompute, got %d", f.index.calls.Load())
	}
	if len(out) != 20 {
		t.Fatalf("len = %d, want 20", len(out))
	}
	assertNoSeed(t, f.seed, out)

	entry, err := f.cache.Get(context.Background(), f.seed)
	if err != nil || len(entry.Items) != 20 {
		t.Fatalf("cache not replaced: %v, %v", entry, err)
	}
	for i, it := range entry.Items {
		if it.Rank != i+1 {
			t.Fatalf("cache ranks not contiguous: %d at %d", it.Rank, i)
		}
	}
}

func TestShortEntryWithoutRequireFull(t *testing.T) {
	f := newFixture(t, 30, 30)
	f.seedCache(t, 5, time.Now())
	out, _ := f.pipeline().GetSimilarCandidates(context.Background(), f.seed, 20, DefaultPolicy())
	if f.index.calls.Load() != 0 || len(out) != 5 {
		t.Fatalf("calls = %d, len = %d", f.index.calls.Load(), len(out))
	}
}

func TestShortEntryFallbackWhenComputeDisallowed(t *testing.T) {
	f := newFixture(t, 30, 30)
	f.seedCache(t, 5, time.Now())
	policy := DefaultPolicy()
	policy.RequireFullCache = true
	policy.AllowCompute = false
	out, _ := f.pipeline().GetSimilarCandidates(context.Background(), f.seed, 20, policy)
	if f.index.calls.Load() != 0 {
		t.Fatal("compute disallowed but index called")
	}
	if len(out) != 5 {
		t.Fatalf("len = %d, want the 5 cached rows", len(out))
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	f := newFixture(t, 10, 10)
	f.seedCache(t, 10, time.Now())
	policy := DefaultPolicy()
	policy.RefreshCache = true
	if _, err := f.pipeline().GetSimilarCandidates(context.Background(), f.seed, 5, policy); err != nil {
		t.Fatal(err)
	}
	if f.index.calls.Load() != 1 {
		t.Fatalf("refresh should recompute, calls = %d", f.index.calls.Load())
	}
}

func TestStaleEntryRecomputes(t *testing.T) {
	f := newFixture(t, 10, 10)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f.seedCache(t, 10, now.Add(-48*time.Hour))
	p := f.pipeline(WithConfig(Config{MaxAge: 24 * time.Hour}), WithClock(func() time.Time { return now }))
	if _, err := p.GetSimilarCandidates(context.Background(), f.seed, 5, DefaultPolicy()); err != nil {
		t.Fatal(err)
	}
	if f.index.calls.Load() != 1 {
		t.Fatalf("stale entry should recompute, calls = %d", f.index.calls.Load())
	}
	entry, _ := f.cache.Get(context.Background(), f.seed)
	if !entry.ComputedAt.Equal(now) {
		t.Fatalf("computed_at = %v", entry.ComputedAt)
	}
}

func TestComputeDepth(t *testing.T) {
	f := newFixture(t, 40, 40)
	p := f.pipeline(WithConfig(Config{ComputeK: 30}))
	out, _ := p.GetSimilarCandidates(context.Background(), f.seed, 10, DefaultPolicy())
	if len(out) != 10 {
		t.Fatalf("len = %d", len(out))
	}
	entry, _ := f.cache.Get(context.Background(), f.seed)
	if len(entry.Items) != 30 {
		t.Fatalf("cache depth = %d, want 30", len(entry.Items))
	}
}

func TestCacheWriteFailureSwallowed(t *testing.T) {
	f := newFixture(t, 10, 10)
	fc := &failingCache{MemoryCache: store.NewMemoryCache()}
	p := NewPipeline(f.index, f.catalog, f.catalog, WithCache(fc))
	out, err := p.GetSimilarCandidates(context.Background(), f.seed, 5, DefaultPolicy())
	if err != nil {
		t.Fatalf("write failure surfaced: %v", err)
	}
	if len(out) != 5 || fc.puts != 1 {
		t.Fatalf("len = %d, puts = %d", len(out), fc.puts)
	}
}

func TestNoCacheWriteWhenDisallowed(t *testing.T) {
	f := newFixture(t, 10, 10)
	policy := DefaultPolicy()
	policy.AllowCacheWrite = false
	if _, err := f.pipeline().GetSimilarCandidates(context.Background(), f.seed, 5, policy); err != nil {
		t.Fatal(err)
	}
	if f.cache.Len() != 0 {
		t.Fatal("cache written despite AllowCacheWrite=false")
	}
}

func TestIndexFailureReturnsEmpty(t *testing.T) {
	f := newFixture(t, 10, 10)
	f.index.err = errors.New("boom")
	out, err := f.pipeline().GetSimilarCandidates(context.Background(), f.seed, 5, DefaultPolicy())
	if err != nil || len(out) != 0 {
		t.Fatalf("out = %v, err = %v", out, err)
	}
}

func TestInvalidSeed(t *testing.T) {
	f := newFixture(t, 10, 10)
	out, err := f.pipeline().GetSimilarCandidates(context.Background(), core.VideoRef{VideoID: "x"}, 5, DefaultPolicy())
	if err != nil || len(out) != 0 || f.index.calls.Load() != 0 {
		t.Fatalf("out = %v, err = %v", out, err)
	}
}

func TestSeedNeverReturnedFromCache(t *testing.T) {
	f := newFixture(t, 10, 10)
	entry := &core.CacheEntry{Source: f.seed, Items: []core.SimilarEntry{
		{Ref: f.seed, Score: 1},
		{Ref: vref("v00"), Score: 0.9},
		{Ref: vref("v00"), Score: 0.9},
		{Ref: vref("v01"), Score: 0.8},
	}}
	if err := f.cache.Put(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	out, _ := f.pipeline().GetSimilarCandidates(context.Background(), f.seed, 10, DefaultPolicy())
	assertNoSeed(t, f.seed, out)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (seed and duplicate removed)", len(out))
	}
}

func TestAuthorFilters(t *testing.T) {
	// 3 个作者轮转：author-0 与种子同作者
	f := newFixture(t, 12, 3)
	p := f.pipeline()

	policy := DefaultPolicy()
	policy.ExcludeSeedAuthor = true
	out, _ := p.GetSimilarCandidates(context.Background(), f.seed, 12, policy)
	for _, c := range out {
		if c.Meta.ChannelID == "author-0" {
			t.Fatal("seed author not excluded")
		}
	}

	policy = DefaultPolicy()
	policy.MaxPerAuthor = 2
	out, _ = p.GetSimilarCandidates(context.Background(), f.seed, 12, policy)
	counts := map[string]int{}
	for _, c := range out {
		counts[c.AuthorKey()]++
	}
	for a, n := range counts {
		if n > 2 {
			t.Fatalf("author %s appears %d times", a, n)
		}
	}
	if len(out) != 6 {
		t.Fatalf("len = %d, want 6 (3 authors x 2)", len(out))
	}
	// 被跳过的条目不打乱原始相对顺序
	for i := 1; i < len(out); i++ {
		if out[i-1].Ref.VideoID > out[i].Ref.VideoID {
			t.Fatalf("order changed: %s before %s", out[i-1].Ref.VideoID, out[i].Ref.VideoID)
		}
	}
}

func TestBoundedOutput(t *testing.T) {
	f := newFixture(t, 25, 25)
	p := f.pipeline()
	for _, limit := range []int{0, 1, 7, 25, 100} {
		out, _ := p.GetSimilarCandidates(context.Background(), f.seed, limit, DefaultPolicy())
		if len(out) > limit {
			t.Fatalf("limit %d: got %d", limit, len(out))
		}
		assertNoSeed(t, f.seed, out)
	}
}

func TestConcurrentMisses(t *testing.T) {
	f := newFixture(t, 20, 20)
	p := f.pipeline()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.GetSimilarCandidates(context.Background(), f.seed, 10, DefaultPolicy())
			if err != nil || len(out) != 10 {
				t.Errorf("out = %d, err = %v", len(out), err)
			}
		}()
	}
	wg.Wait()
	if f.index.calls.Load() > 8 {
		t.Fatalf("calls = %d", f.index.calls.Load())
	}
}

// slowIndex 在检索前等待 delay，不理会 ctx。
type slowIndex struct {
	next  core.VectorIndex
	delay time.Duration
	done  chan struct{}
}

func (s *slowIndex) Search(ctx context.Context, v []float64, k int, exclude map[string]struct{}) ([]core.VectorHit, error) {
	time.Sleep(s.delay)
	defer close(s.done)
	return s.next.Search(ctx, v, k, exclude)
}

func TestSlowIndexRespectsCallerDeadline(t *testing.T) {
	f := newFixture(t, 10, 10)
	slow := &slowIndex{next: f.index, delay: 500 * time.Millisecond, done: make(chan struct{})}
	p := NewPipeline(slow, f.catalog, f.catalog, WithCache(f.cache))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	out, err := p.GetSimilarCandidates(ctx, f.seed, 5, DefaultPolicy())
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("out = %d", len(out))
	}
	if elapsed > 300*time.Millisecond {
		t.Fatalf("caller waited %v for a 50ms deadline", elapsed)
	}

	// 调用方离开后共享计算仍完成并回写缓存
	select {
	case <-slow.done:
	case <-time.After(2 * time.Second):
		t.Fatal("shared compute never finished")
	}
	deadline := time.Now().Add(time.Second)
	for f.cache.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.cache.Len() != 1 {
		t.Fatalf("cache entries = %d", f.cache.Len())
	}
}
