package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/vidrec/core"
)

// RedisCache 是 Redis 实现的相似缓存：每个源视频一个 JSON 值，SET 整体覆盖，带 TTL。
// 生产环境多实例共享时使用。
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache 使用已有客户端创建缓存；ttl <= 0 表示不过期。
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// DialRedisCache 连接 Redis 并校验可用。
func DialRedisCache(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: redis ping", err)
	}
	return NewRedisCache(client, prefix, ttl), nil
}

func (r *RedisCache) Name() string { return "redis" }

func (r *RedisCache) Get(ctx context.Context, source core.VideoRef) (*core.CacheEntry, error) {
	val, err := r.client.Get(ctx, cacheKey(r.prefix, source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrCacheMiss
	}
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: redis get", err)
	}
	return decodeEntry(val)
}

func (r *RedisCache) Put(ctx context.Context, entry *core.CacheEntry) error {
	if entry == nil || !entry.Source.Valid() {
		return core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: entry requires a valid source")
	}
	cp := cloneEntry(entry)
	cp.Renumber()
	data, err := encodeEntry(cp)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, cacheKey(r.prefix, entry.Source), data, r.ttl).Err(); err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: redis set", err)
	}
	return nil
}

// Delete 删除某个源视频的条目。
func (r *RedisCache) Delete(ctx context.Context, source core.VideoRef) error {
	return r.client.Del(ctx, cacheKey(r.prefix, source)).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

var _ core.SimilarityCache = (*RedisCache)(nil)
