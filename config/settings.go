package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/logging"
)

// EnvPrefix 是环境变量前缀：VIDREC_CACHE_MAX_AGE → cache.max_age。
const EnvPrefix = "VIDREC_"

// Settings 是服务级配置（存储、缓存、熔断、特征服务、日志），与 profile 表分开加载。
type Settings struct {
	Log     logging.Config  `koanf:"log"`
	SQL     SQLSettings     `koanf:"sql"`
	Cache   CacheSettings   `koanf:"cache"`
	Similar SimilarSettings `koanf:"similar"`
	Breaker BreakerSettings `koanf:"breaker"`
	Feast   FeastSettings   `koanf:"feast"`
	Engine  EngineSettings  `koanf:"engine"`
}

type SQLSettings struct {
	// Driver: sqlite 或 pgx
	Driver       string `koanf:"driver" validate:"oneof=sqlite pgx"`
	DSN          string `koanf:"dsn" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
}

type CacheSettings struct {
	// Backend: memory / sql / redis / badger
	Backend string        `koanf:"backend" validate:"oneof=memory sql redis badger"`
	MaxAge  time.Duration `koanf:"max_age" validate:"gte=0"`
	// TTL 是 redis / badger 条目的过期时间，0 表示不过期
	TTL time.Duration `koanf:"ttl" validate:"gte=0"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	KeyPrefix     string `koanf:"key_prefix"`

	BadgerPath string `koanf:"badger_path"`
}

type SimilarSettings struct {
	// ComputeK 是回源检索深度，一次写缓存可服务后续更大的 limit
	ComputeK int `koanf:"compute_k" validate:"gte=0"`
}

type BreakerSettings struct {
	Enabled bool `koanf:"enabled"`
	// MaxFailures 是连续失败多少次后熔断
	MaxFailures uint32        `koanf:"max_failures" validate:"gte=1"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	Interval    time.Duration `koanf:"interval" validate:"gte=0"`
}

type FeastSettings struct {
	Enabled       bool   `koanf:"enabled"`
	Host          string `koanf:"host"`
	Port          int    `koanf:"port" validate:"gte=0,lte=65535"`
	Project       string `koanf:"project"`
	EntityKey     string `koanf:"entity_key"`
	ViewsFeature  string `koanf:"views_feature"`
	LikesFeature  string `koanf:"likes_feature"`
	TimeoutMillis int    `koanf:"timeout_ms" validate:"gte=0"`
}

type EngineSettings struct {
	// ProfilesPath 为空时使用内置 profile 表
	ProfilesPath   string `koanf:"profiles_path"`
	MaxRecentLikes int    `koanf:"max_recent_likes" validate:"gte=0"`
}

// DefaultSettings 返回默认配置：本地 sqlite + 内存缓存。
func DefaultSettings() *Settings {
	return &Settings{
		Log: logging.Config{Level: "info", Format: "json"},
		SQL: SQLSettings{Driver: "sqlite", DSN: "file:vidrec.db?cache=shared", MaxOpenConns: 4},
		Cache: CacheSettings{
			Backend:   "memory",
			MaxAge:    24 * time.Hour,
			TTL:       48 * time.Hour,
			KeyPrefix: "vidrec:similar:",
		},
		Similar: SimilarSettings{ComputeK: 50},
		Breaker: BreakerSettings{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    time.Minute,
		},
		Feast: FeastSettings{
			Port:          6566,
			EntityKey:     "video_key",
			ViewsFeature:  "video_engagement:views",
			LikesFeature:  "video_engagement:likes",
			TimeoutMillis: 200,
		},
		Engine: EngineSettings{MaxRecentLikes: DefaultMaxRecentLikes},
	}
}

// LoadSettings 按 默认值 → YAML 文件（可选）→ 环境变量 的顺序分层加载。
func LoadSettings(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	s := &Settings{}
	if err := k.Unmarshal("", s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// envTransform: VIDREC_CACHE_MAX_AGE → cache.max_age（第一段是分组，其余是字段名）。
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + field
}

// Validate 校验服务配置。
func (s *Settings) Validate() error {
	if err := getValidator().Struct(s); err != nil {
		return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig, "config: settings invalid", err)
	}
	switch {
	case s.Cache.Backend == "redis" && s.Cache.RedisAddr == "":
		return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig, "config: settings invalid",
			fmt.Errorf("cache.redis_addr is required for the redis backend"))
	case s.Cache.Backend == "badger" && s.Cache.BadgerPath == "":
		return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig, "config: settings invalid",
			fmt.Errorf("cache.badger_path is required for the badger backend"))
	case s.Feast.Enabled && s.Feast.Host == "":
		return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig, "config: settings invalid",
			fmt.Errorf("feast.host is required when feast is enabled"))
	}
	return nil
}

// Timeout 返回特征服务单次调用的超时。
func (f FeastSettings) Timeout() time.Duration {
	return time.Duration(f.TimeoutMillis) * time.Millisecond
}
