package rerank

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/recall"
)

func TestAllocate(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		ratios []float64
		want   []int
	}{
		{"home profile", 30, []float64{0.4, 0.2, 0.15, 0.15, 0.1}, []int{13, 6, 4, 4, 3}},
		{"equal split", 10, []float64{0, 0, 0}, []int{4, 3, 3}},
		{"zero ratio gets nothing", 7, []float64{1, 0, 1}, []int{4, 0, 3}},
		{"remainder to first", 3, []float64{1, 1, 1, 1, 1}, []int{1, 1, 1, 0, 0}},
		{"negative treated as zero", 4, []float64{-1, 1}, []int{0, 4}},
		{"zero total", 0, []float64{1, 1}, []int{0, 0}},
		{"no layers", 5, nil, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allocate(tt.total, tt.ratios); !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllocateSumsToTotal(t *testing.T) {
	ratios := [][]float64{{0.33, 0.33, 0.33}, {0.1, 0.7}, {3, 2, 1, 0.5}, {0, 0}}
	for _, r := range ratios {
		for total := 1; total <= 97; total += 8 {
			sum := 0
			for _, n := range Allocate(total, r) {
				sum += n
			}
			if sum != total {
				t.Fatalf("Allocate(%d, %v) sums to %d", total, r, sum)
			}
		}
	}
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		name    string
		targets []int
		want    []int
	}{
		{"two to one", []int{2, 1}, []int{0, 1, 0}},
		{"even", []int{3, 3}, []int{0, 1, 0, 1, 0, 1}},
		{"skip empty", []int{0, 2}, []int{1, 1}},
		{"three layers", []int{4, 2, 1}, []int{0, 1, 2, 0, 0, 1, 0}},
		{"none", nil, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Schedule(tt.targets); !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func scored(layer string, n int, top float64) []*core.Candidate {
	out := make([]*core.Candidate, n)
	for i := range out {
		ref := core.VideoRef{VideoID: fmt.Sprintf("%s-%02d", layer, i), InstanceDomain: "peertube.example"}
		c := core.NewCandidate(ref, layer, 0, &core.VideoMeta{Ref: ref})
		c.Score = top - float64(i)*0.001
		out[i] = c
	}
	return out
}

func TestPostFilter(t *testing.T) {
	pools := map[string][]*core.Candidate{
		"a": scored("a", 5, 0.9),
		"b": scored("b", 5, 0.2),
	}
	layers := []string{"a", "b"}
	walk := Walk([]string{"a", "a", "b"}, layers, pools)
	if len(walk) != 10 {
		t.Fatalf("walk = %d", len(walk))
	}
	if walk[2].Layer != "b" || walk[3].Layer != "a" {
		t.Fatalf("walk order: scheduled then leftovers by score, got %s %s", walk[2].Key(), walk[3].Key())
	}

	tests := []struct {
		name  string
		batch int
		caps  config.SoftCaps
		seen  []string
		wantA int
		wantB int
	}{
		{"plain", 4, config.SoftCaps{}, nil, 3, 1},
		{"max a", 4, config.SoftCaps{Max: map[string]int{"a": 1}}, nil, 1, 3},
		{"min b", 4, config.SoftCaps{Min: map[string]int{"b": 3}}, nil, 1, 3},
		{"seen", 3, config.SoftCaps{}, []string{"a-00@peertube.example", "a-01@peertube.example"}, 2, 1},
		{"max zero excludes", 4, config.SoftCaps{Max: map[string]int{"b": 0}}, nil, 4, 0},
		{"short supply", 20, config.SoftCaps{Max: map[string]int{"a": 2}}, nil, 2, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := map[string]struct{}{}
			for _, k := range tt.seen {
				seen[k] = struct{}{}
			}
			got := PostFilter(walk, tt.batch, layers, tt.caps, seen)
			counts := map[string]int{}
			for _, c := range got {
				counts[c.Layer]++
			}
			if counts["a"] != tt.wantA || counts["b"] != tt.wantB {
				t.Fatalf("counts = %v, want a=%d b=%d", counts, tt.wantA, tt.wantB)
			}
			for _, k := range tt.seen {
				for _, c := range got {
					if c.Key() == k {
						t.Fatalf("seen key %s emitted", k)
					}
				}
			}
		})
	}
}

func TestPostFilterDeduplicates(t *testing.T) {
	a := scored("a", 3, 0.9)
	b := scored("a", 3, 0.5) // 同样的 id，来自另一层
	for _, c := range b {
		c.Layer = "b"
	}
	walk := append(append([]*core.Candidate{}, a...), b...)
	got := PostFilter(walk, 10, []string{"a", "b"}, config.SoftCaps{}, map[string]struct{}{})
	if len(got) != 3 {
		t.Fatalf("got %d, want 3 unique", len(got))
	}
}

// stub 是按层名产出固定候选的生成器。
type stub struct {
	kind  string
	n     int
	top   float64
	ids   []string
	err   error
	mu    sync.Mutex
	calls int
}

func (s *stub) Kind() string { return s.kind }

func (s *stub) Generate(_ context.Context, _ *core.RecommendContext, limit int, layer *config.LayerConfig) ([]*core.Candidate, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*core.Candidate
	if s.ids != nil {
		for i, id := range s.ids {
			ref := core.VideoRef{VideoID: id, InstanceDomain: "peertube.example"}
			out = append(out, core.NewCandidate(ref, layer.Name, s.top-float64(i)*0.01, &core.VideoMeta{Ref: ref}))
		}
		return out, nil
	}
	for i := 0; i < s.n; i++ {
		ref := core.VideoRef{VideoID: fmt.Sprintf("%s-%03d", layer.Name, i), InstanceDomain: "peertube.example"}
		out = append(out, core.NewCandidate(ref, layer.Name, s.top-float64(i)*0.001, &core.VideoMeta{Ref: ref}))
	}
	return out, nil
}

func (s *stub) called() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testProfile(t *testing.T, batch int, caps config.SoftCaps, layers ...config.LayerConfig) *config.Profile {
	t.Helper()
	p := &config.Profile{
		Name:      "test",
		BatchSize: batch,
		Layers:    layers,
		SoftCaps:  caps,
		Scoring:   config.ScoringSettings{Weights: config.ScoreWeights{Similarity: 1}},
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	return p
}

func rctxWithLikes(ids ...string) *core.RecommendContext {
	now := time.Now()
	var likes []core.RecentLike
	for _, id := range ids {
		likes = append(likes, core.RecentLike{Ref: core.VideoRef{VideoID: id, InstanceDomain: "peertube.example"}, UpdatedAt: now})
	}
	return core.NewRecommendContext("u", "home", likes, now)
}

func TestMixerFreshMaxCap(t *testing.T) {
	fresh := &stub{kind: config.KindFresh, n: 50, top: 0.9}
	popular := &stub{kind: config.KindPopular}
	m := NewMixer(map[string]recall.Generator{config.KindFresh: fresh, config.KindPopular: popular})
	p := testProfile(t, 30, config.SoftCaps{Max: map[string]int{"fresh": 12}},
		config.LayerConfig{Name: "fresh", GatherRatio: 1, MixRatio: 0.5},
		config.LayerConfig{Name: "popular", GatherRatio: 0, MixRatio: 0.5},
	)

	got, err := m.Mix(context.Background(), rctxWithLikes(), p, p.BatchSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 12 {
		t.Fatalf("got %d items, want min(batch, 12)", len(got))
	}
	for _, c := range got {
		if c.Layer != "fresh" {
			t.Fatalf("unexpected layer %s", c.Layer)
		}
	}
}

func TestMixerGuestHomeUsesLikeIndependentLayers(t *testing.T) {
	gens := map[string]recall.Generator{}
	stubs := map[string]*stub{}
	for _, kind := range []string{config.KindExploit, config.KindExplore, config.KindPopular, config.KindFresh, config.KindRandom} {
		s := &stub{kind: kind, n: 40, top: 0.5}
		stubs[kind] = s
		gens[kind] = s
	}
	p, ok := config.DefaultTable().Get("home")
	if !ok {
		t.Fatal("home profile missing")
	}
	m := NewMixer(gens)
	rctx := rctxWithLikes()
	got, err := m.Mix(context.Background(), rctx, p, p.BatchSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || len(got) > p.BatchSize {
		t.Fatalf("got %d items", len(got))
	}
	if stubs[config.KindExploit].called() != 0 || stubs[config.KindExplore].called() != 0 {
		t.Fatal("like-dependent layers must not run without likes")
	}
	for _, c := range got {
		if c.Layer == "exploit" || c.Layer == "explore" {
			t.Fatalf("layer %s in guest output", c.Layer)
		}
	}
	if lbl, ok := rctx.Trace.Get(got[0].Key(), core.TraceRankFinal); !ok || lbl.Value != "1" {
		t.Fatalf("final rank label = %v", lbl)
	}
}

func TestMixerDedupAndLikes(t *testing.T) {
	ids := []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7"}
	gens := map[string]recall.Generator{
		config.KindPopular: &stub{kind: config.KindPopular, ids: ids, top: 0.9},
		config.KindFresh:   &stub{kind: config.KindFresh, ids: ids, top: 0.8},
	}
	p := testProfile(t, 20, config.SoftCaps{},
		config.LayerConfig{Name: "popular", GatherRatio: 0.5, MixRatio: 0.5},
		config.LayerConfig{Name: "fresh", GatherRatio: 0.5, MixRatio: 0.5},
	)
	got, err := NewMixer(gens).Mix(context.Background(), rctxWithLikes("v3"), p, p.BatchSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d, want 7 unique non-liked", len(got))
	}
	seen := map[string]bool{}
	for _, c := range got {
		if seen[c.Key()] {
			t.Fatalf("duplicate %s", c.Key())
		}
		seen[c.Key()] = true
		if c.Ref.VideoID == "v3" {
			t.Fatal("liked video emitted")
		}
	}
}

func TestMixerInterleavesAndSurvivesFailures(t *testing.T) {
	gens := map[string]recall.Generator{
		config.KindPopular: &stub{kind: config.KindPopular, n: 10, top: 0.9},
		config.KindFresh:   &stub{kind: config.KindFresh, n: 10, top: 0.1},
		config.KindRandom:  &stub{kind: config.KindRandom, err: errors.New("store down")},
	}
	p := testProfile(t, 6, config.SoftCaps{},
		config.LayerConfig{Name: "popular", MixRatio: 0.4},
		config.LayerConfig{Name: "fresh", MixRatio: 0.4},
		config.LayerConfig{Name: "random", MixRatio: 0.2},
	)
	got, err := NewMixer(gens).Mix(context.Background(), rctxWithLikes(), p, p.BatchSize)
	if err != nil {
		t.Fatal(err)
	}
	layers := make([]string, 0, len(got))
	for _, c := range got {
		layers = append(layers, c.Layer)
	}
	want := []string{"popular", "fresh", "popular", "fresh", "popular", "fresh"}
	if !slices.Equal(layers, want) {
		t.Fatalf("layers = %v, want %v", layers, want)
	}
}

func TestMixerSoftMin(t *testing.T) {
	gens := map[string]recall.Generator{
		config.KindPopular: &stub{kind: config.KindPopular, n: 20, top: 0.9},
		config.KindRandom:  &stub{kind: config.KindRandom, n: 20, top: 0.1},
	}
	p := testProfile(t, 10, config.SoftCaps{Min: map[string]int{"random": 2}},
		config.LayerConfig{Name: "popular", GatherRatio: 0.5, MixRatio: 1},
		config.LayerConfig{Name: "random", GatherRatio: 0.5, MixRatio: 0},
	)
	got, err := NewMixer(gens).Mix(context.Background(), rctxWithLikes(), p, p.BatchSize)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, c := range got {
		counts[c.Layer]++
	}
	if len(got) != 10 || counts["random"] != 2 || counts["popular"] != 8 {
		t.Fatalf("counts = %v (total %d)", counts, len(got))
	}
}

func TestMixerEmpty(t *testing.T) {
	gens := map[string]recall.Generator{config.KindPopular: &stub{kind: config.KindPopular}}
	p := testProfile(t, 10, config.SoftCaps{}, config.LayerConfig{Name: "popular"})
	got, err := NewMixer(gens).Mix(context.Background(), rctxWithLikes(), p, p.BatchSize)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}
