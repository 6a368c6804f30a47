package cache

import (
	"context"
	"reflect"
	"time"
)

// ExpiringStore is a Service that can report an entry's remaining lifetime.
type ExpiringStore interface {
	Service
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// LayeredCache implements two-level cache (L1: Memory, L2: shared store such as Redis).
type LayeredCache struct {
	memCache *MemoryCache
	remote   ExpiringStore
}

// NewLayeredCache creates a layered cache with memory in front of remote.
func NewLayeredCache(remote ExpiringStore, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{}

	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		memCache: NewMemoryCache(cfg.Memory...),
		remote:   remote,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// Write-through: remote first, then memory
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memCache.Get(ctx, key, dest); err == nil {
		return nil
	}

	if err := lc.remote.Get(ctx, key, dest); err != nil {
		return err
	}

	// Promote with the remaining lifetime so L1 never outlives L2.
	if ttl, err := lc.remote.TTL(ctx, key); err == nil && ttl > 0 {
		if rv := reflect.ValueOf(dest); rv.Kind() == reflect.Ptr && !rv.IsNil() {
			_ = lc.memCache.Set(ctx, key, rv.Elem().Interface(), ttl)
		}
	}
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memCache.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.memCache.DeleteByPattern(ctx, pattern)
	return lc.remote.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.memCache.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.remote.Exists(ctx, keys...)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	return lc.remote.Close()
}
