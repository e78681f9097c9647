package rank

import (
	"math"
	"testing"
	"time"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
)

var settings = config.ScoringSettings{
	Weights:               config.ScoreWeights{Similarity: 1, Freshness: 0.5, Popularity: 0.3},
	LayerWeights:          map[string]float64{"explore": 0.1},
	FreshnessHalfLifeDays: 7,
	Popularity:            config.PopularityWeights{ViewWeight: 1, LikeWeight: 10},
}

func candidate(sim float64, published time.Time, views int64) *core.Candidate {
	ref := core.VideoRef{VideoID: "v", InstanceDomain: "peertube.example"}
	return core.NewCandidate(ref, "exploit", sim, &core.VideoMeta{Ref: ref, PublishedAt: published, Views: views})
}

func TestFreshness(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		published time.Time
		halfLife  float64
		want      float64
	}{
		{"now", now, 7, 1},
		{"one half-life", now.Add(-7 * 24 * time.Hour), 7, 0.5},
		{"two half-lives", now.Add(-14 * 24 * time.Hour), 7, 0.25},
		{"future", now.Add(time.Hour), 7, 1},
		{"missing", time.Time{}, 7, 0},
		{"no half-life", now, 0, 0},
		{"negative half-life", now, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Freshness(tt.published, now, tt.halfLife); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPopularity(t *testing.T) {
	w := config.PopularityWeights{ViewWeight: 1, LikeWeight: 10}
	if got := Popularity(0, 0, w); got != 0 {
		t.Fatalf("zero engagement = %v", got)
	}
	if got := Popularity(100, 0, config.PopularityWeights{}); got != 0 {
		t.Fatalf("zero weights = %v", got)
	}
	if got := Popularity(-5, 0, w); got != 0 {
		t.Fatalf("negative total = %v", got)
	}
	prev := 0.0
	for _, views := range []int64{1, 10, 1000, 1e6, 1e12} {
		got := Popularity(views, 0, w)
		if got <= prev || got >= 1 {
			t.Fatalf("popularity(%d) = %v, prev %v", views, got, prev)
		}
		prev = got
	}
	x := math.Log1p(1 + 10*2)
	if got := Popularity(1, 2, w); math.Abs(got-x/(x+1)) > 1e-12 {
		t.Fatalf("got %v", got)
	}
}

func TestScoreMonotoneInSimilarity(t *testing.T) {
	s := NewScorer(settings)
	now := time.Now()
	published := now.Add(-48 * time.Hour)
	prev := math.Inf(-1)
	for _, sim := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.99, 1} {
		got := s.Score(candidate(sim, published, 500), "exploit", now).Total
		if got < prev {
			t.Fatalf("score decreased at similarity %v: %v < %v", sim, got, prev)
		}
		prev = got
	}
}

func TestScoreBreakdown(t *testing.T) {
	s := NewScorer(settings)
	now := time.Now()
	c := candidate(0.8, now, 0)
	b := s.Score(c, "explore", now)
	want := 1*0.8 + 0.5*1 + 0.3*0 + 0.1
	if math.Abs(b.Total-want) > 1e-9 || b.LayerBonus != 0.1 {
		t.Fatalf("breakdown = %+v, want total %v", b, want)
	}
	if c.Score != 0 {
		t.Fatal("Score must not mutate the candidate")
	}

	c.Layer = "explore"
	s.Apply([]*core.Candidate{c, nil}, now)
	if c.Score != b.Total || c.Breakdown != b {
		t.Fatalf("apply = %v %+v", c.Score, c.Breakdown)
	}
	// 确定性
	if again := s.Score(c, "explore", now); again != b {
		t.Fatalf("score not deterministic: %+v vs %+v", again, b)
	}
}

func TestScoreInvalidInput(t *testing.T) {
	s := NewScorer(settings)
	now := time.Now()
	c := candidate(0, time.Time{}, 0)
	c.SimilarityScore = math.NaN()
	c.Meta = nil
	if b := s.Score(c, "unknown", now); b.Total != 0 {
		t.Fatalf("invalid input should score 0, got %+v", b)
	}
	if b := s.Score(nil, "x", now); b.Total != 0 {
		t.Fatal("nil candidate")
	}
}
