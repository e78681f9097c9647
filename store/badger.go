package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rushteam/vidrec/core"
)

// BadgerCache 是 BadgerDB 实现的相似缓存：嵌入式、可持久化，适合单机部署。
type BadgerCache struct {
	db     *badger.DB
	prefix string
	ttl    time.Duration
}

// OpenBadgerCache 打开（或创建）dir 下的 Badger 数据库。
func OpenBadgerCache(dir, prefix string, ttl time.Duration) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: open badger", err)
	}
	return NewBadgerCache(db, prefix, ttl), nil
}

// NewBadgerCache 使用已打开的 DB；ttl <= 0 表示不过期。
func NewBadgerCache(db *badger.DB, prefix string, ttl time.Duration) *BadgerCache {
	return &BadgerCache{db: db, prefix: prefix, ttl: ttl}
}

func (b *BadgerCache) Name() string { return "badger" }

func (b *BadgerCache) Get(ctx context.Context, source core.VideoRef) (*core.CacheEntry, error) {
	var entry *core.CacheEntry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKey(b.prefix, source)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			e, err := decodeEntry(val)
			entry = e
			return err
		})
	})
	if err != nil {
		if core.IsCacheMiss(err) {
			return nil, err
		}
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: badger get", err)
	}
	return entry, nil
}

func (b *BadgerCache) Put(ctx context.Context, entry *core.CacheEntry) error {
	if entry == nil || !entry.Source.Valid() {
		return core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: entry requires a valid source")
	}
	cp := cloneEntry(entry)
	cp.Renumber()
	data, err := encodeEntry(cp)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(cacheKey(b.prefix, entry.Source)), data)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "cache: badger set", err)
	}
	return nil
}

func (b *BadgerCache) Close() error {
	return b.db.Close()
}

var _ core.SimilarityCache = (*BadgerCache)(nil)
