package config

// 生成器类型（LayerConfig.Kind）
const (
	KindExploit = "exploit"
	KindExplore = "explore"
	KindPopular = "popular"
	KindFresh   = "fresh"
	KindRandom  = "random"
)

// 默认值
const (
	DefaultOverfetchFactor  = 2.0
	DefaultMaxBatchSize     = 100
	DefaultPoolMultiplier   = 3.0
	DefaultMaxRecentLikes   = 50
	DefaultExploreMin       = 0.3
	DefaultHalfLifeDays     = 7.0
	DefaultExploitSeedLimit = 10
	DefaultExploreSeedLimit = 20
)

// Profile 是一个具名的推荐配置（home / guest_home / upnext / guest_upnext ...）。
// 加载时校验并补全默认值，之后在请求生命周期内只读。
type Profile struct {
	Name string `yaml:"name" validate:"required"`

	BatchSize       int     `yaml:"batch_size" validate:"gt=0"`
	MaxBatchSize    int     `yaml:"max_batch_size" validate:"gte=0"`
	OverfetchFactor float64 `yaml:"overfetch_factor" validate:"gte=0"`
	LayerTimeoutMS  int     `yaml:"layer_timeout_ms" validate:"gte=0"`
	MaxRecentLikes  int     `yaml:"max_recent_likes" validate:"gte=0"`

	Layers   []LayerConfig   `yaml:"layers" validate:"required,min=1,dive"`
	Mixing   Mixing          `yaml:"mixing"`
	Scoring  ScoringSettings `yaml:"scoring"`
	SoftCaps SoftCaps        `yaml:"soft_caps"`
}

// LayerConfig 是单个召回层的配置。
// 通用字段之外，Band 仅 explore 使用，SeedLimit / PerSeedLimit / AllowCompute 仅 exploit / explore 使用，
// BelowExploreMin / ExploreMin 仅 random 使用。
type LayerConfig struct {
	Name string `yaml:"name" validate:"required"`
	// Kind 为空时取 Name
	Kind string `yaml:"kind" validate:"omitempty,oneof=exploit explore popular fresh random"`

	// Enabled 缺省为 true
	Enabled *bool `yaml:"enabled"`

	GatherRatio   float64 `yaml:"gather_ratio" validate:"gte=0"`
	MixRatio      float64 `yaml:"mix_ratio" validate:"gte=0"`
	RequiresLikes bool    `yaml:"requires_likes"`
	Shuffle       bool    `yaml:"shuffle"`

	// 多样性上限，<= 0 表示不限制
	MaxPerAuthor   int `yaml:"max_per_author" validate:"gte=0"`
	MaxPerInstance int `yaml:"max_per_instance" validate:"gte=0"`

	// PoolMultiplier: 候选池大小 = fetch_limit × PoolMultiplier
	PoolMultiplier float64 `yaml:"pool_multiplier" validate:"gte=0"`

	// Filter 是 CEL 表达式，对池内候选逐个求值，false 则丢弃
	Filter string `yaml:"filter"`

	// ScoreAffinity: popular / fresh 层计算与点赞的峰值相似度作为 similarity
	ScoreAffinity bool `yaml:"score_affinity"`

	// exploit / explore
	SeedLimit           int     `yaml:"seed_limit" validate:"gte=0"`
	PerSeedLimit        int     `yaml:"per_seed_limit" validate:"gte=0"`
	AllowCompute        *bool   `yaml:"allow_compute"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`

	// explore
	Band Band `yaml:"band"`

	// random
	BelowExploreMin bool    `yaml:"below_explore_min"`
	ExploreMin      float64 `yaml:"explore_min" validate:"gte=0,lte=1"`
}

// Band 是相似度区间 [Min, Max)。
type Band struct {
	Min float64 `yaml:"min" validate:"gte=0,lte=1"`
	Max float64 `yaml:"max" validate:"gte=0,lte=1"`
}

// Contains 判断 v 是否落在 [Min, Max) 内。
func (b Band) Contains(v float64) bool { return v >= b.Min && v < b.Max }

// Mixing 控制层的顺序。Order 为空时按 Layers 声明顺序；未列出的层按声明顺序追加在后。
type Mixing struct {
	Order []string `yaml:"order"`
}

// ScoringSettings 是打分参数。
type ScoringSettings struct {
	Weights               ScoreWeights       `yaml:"weights"`
	LayerWeights          map[string]float64 `yaml:"layer_weights"`
	FreshnessHalfLifeDays float64            `yaml:"freshness_half_life_days" validate:"gte=0"`
	Popularity            PopularityWeights  `yaml:"popularity"`
}

type ScoreWeights struct {
	Similarity float64 `yaml:"similarity" validate:"gte=0"`
	Freshness  float64 `yaml:"freshness" validate:"gte=0"`
	Popularity float64 `yaml:"popularity" validate:"gte=0"`
}

type PopularityWeights struct {
	ViewWeight float64 `yaml:"view_weight" validate:"gte=0"`
	LikeWeight float64 `yaml:"like_weight" validate:"gte=0"`
}

// SoftCaps 是混排后的每层最小/最大条数约束。
type SoftCaps struct {
	Min map[string]int `yaml:"min"`
	Max map[string]int `yaml:"max"`
}

// IsEnabled 返回层是否启用（缺省启用）。
func (l *LayerConfig) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// ComputeAllowed 返回缓存未命中时是否允许回源向量索引（缺省允许）。
func (l *LayerConfig) ComputeAllowed() bool {
	return l.AllowCompute == nil || *l.AllowCompute
}

// Layer 按名称查找层配置。
func (p *Profile) Layer(name string) (*LayerConfig, bool) {
	for i := range p.Layers {
		if p.Layers[i].Name == name {
			return &p.Layers[i], true
		}
	}
	return nil, false
}

// OrderedLayers 按 Mixing.Order 返回层；未列出的层按声明顺序追加。
func (p *Profile) OrderedLayers() []*LayerConfig {
	out := make([]*LayerConfig, 0, len(p.Layers))
	used := make(map[string]bool, len(p.Layers))
	for _, name := range p.Mixing.Order {
		if l, ok := p.Layer(name); ok && !used[name] {
			out = append(out, l)
			used[name] = true
		}
	}
	for i := range p.Layers {
		if !used[p.Layers[i].Name] {
			out = append(out, &p.Layers[i])
			used[p.Layers[i].Name] = true
		}
	}
	return out
}

// EffectiveBatchSize 返回本次请求的输出条数：limit > 0 时覆盖 BatchSize，但不超过 MaxBatchSize。
func (p *Profile) EffectiveBatchSize(limit int) int {
	n := p.BatchSize
	if limit > 0 {
		n = limit
	}
	if p.MaxBatchSize > 0 && n > p.MaxBatchSize {
		n = p.MaxBatchSize
	}
	return n
}

// applyDefaults 补全缺省值；必须在校验之后调用（依赖 Kind、Band 已合法）。
func (p *Profile) applyDefaults() {
	if p.OverfetchFactor <= 0 {
		p.OverfetchFactor = DefaultOverfetchFactor
	}
	if p.OverfetchFactor < 1 {
		p.OverfetchFactor = 1
	}
	if p.MaxBatchSize == 0 {
		p.MaxBatchSize = DefaultMaxBatchSize
	}
	if p.MaxBatchSize < p.BatchSize {
		p.MaxBatchSize = p.BatchSize
	}
	if p.MaxRecentLikes == 0 {
		p.MaxRecentLikes = DefaultMaxRecentLikes
	}
	if p.Scoring.FreshnessHalfLifeDays == 0 {
		p.Scoring.FreshnessHalfLifeDays = DefaultHalfLifeDays
	}

	exploreMin := DefaultExploreMin
	for i := range p.Layers {
		if l := &p.Layers[i]; l.Kind == KindExplore && l.Band.Max > l.Band.Min {
			exploreMin = l.Band.Min
			break
		}
	}

	for i := range p.Layers {
		l := &p.Layers[i]
		if l.PoolMultiplier == 0 {
			l.PoolMultiplier = DefaultPoolMultiplier
		}
		if l.PoolMultiplier < 1 {
			l.PoolMultiplier = 1
		}
		switch l.Kind {
		case KindExploit:
			if l.SeedLimit == 0 {
				l.SeedLimit = DefaultExploitSeedLimit
			}
		case KindExplore:
			if l.SeedLimit == 0 {
				l.SeedLimit = DefaultExploreSeedLimit
			}
		case KindRandom:
			if l.BelowExploreMin && l.ExploreMin == 0 {
				l.ExploreMin = exploreMin
			}
		}
	}
}

// clone 深拷贝 profile，使加载方修改输入不影响表中的副本。
func (p *Profile) clone() *Profile {
	cp := *p
	cp.Layers = make([]LayerConfig, len(p.Layers))
	for i, l := range p.Layers {
		if l.Enabled != nil {
			v := *l.Enabled
			l.Enabled = &v
		}
		if l.AllowCompute != nil {
			v := *l.AllowCompute
			l.AllowCompute = &v
		}
		cp.Layers[i] = l
	}
	cp.Mixing.Order = append([]string(nil), p.Mixing.Order...)
	cp.Scoring.LayerWeights = copyMap(p.Scoring.LayerWeights)
	cp.SoftCaps.Min = copyMap(p.SoftCaps.Min)
	cp.SoftCaps.Max = copyMap(p.SoftCaps.Max)
	return &cp
}

func copyMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
