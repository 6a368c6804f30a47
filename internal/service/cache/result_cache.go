package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	pkgcache "ClimaPulse/pkg/cache"
	applogger "ClimaPulse/pkg/logger"
	"ClimaPulse/pkg/metrics"
)

const keyPrefix = "result"

// DefaultTTL applies to operation kinds without a configured TTL.
const DefaultTTL = 5 * time.Minute

// Config holds one TTL per operation kind.
type Config struct {
	TTL         map[models.OperationKind]time.Duration
	FallbackTTL time.Duration
}

// ResultCache memoizes gateway results by RequestKey. Values are stored as
// JSON, so an entry is replaced wholesale on every Set and readers always get
// their own copy.
type ResultCache struct {
	store   pkgcache.Service
	cfg     Config
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewResultCache(store pkgcache.Service, cfg Config, m domrepo.Metrics, log *applogger.Logger) *ResultCache {
	if cfg.TTL == nil {
		cfg.TTL = map[models.OperationKind]time.Duration{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &ResultCache{store: store, cfg: cfg, metrics: m, log: log}
}

// TTL returns the lifetime of entries of the given kind.
func (c *ResultCache) TTL(kind models.OperationKind) time.Duration {
	if d, ok := c.cfg.TTL[kind]; ok && d > 0 {
		return d
	}
	return DefaultTTL
}

// FallbackTTL returns the lifetime of synthetic fallback entries.
func (c *ResultCache) FallbackTTL(kind models.OperationKind) time.Duration {
	ttl := c.TTL(kind)
	if c.cfg.FallbackTTL > 0 && c.cfg.FallbackTTL < ttl {
		return c.cfg.FallbackTTL
	}
	return ttl
}

// Get decodes the entry for key into dest. A missing, expired or unreadable
// entry is reported as absent.
func (c *ResultCache) Get(ctx context.Context, key models.RequestKey, dest interface{}) bool {
	var raw string
	err := c.store.Get(ctx, storageKey(key), &raw)
	hit := err == nil
	if hit {
		if err = json.Unmarshal([]byte(raw), dest); err != nil {
			hit = false
		}
	}
	if err != nil && !errors.Is(err, pkgcache.ErrCacheMiss) {
		c.log.Warn("result cache read failed",
			applogger.String("key", key.String()),
			applogger.Error(err))
	}
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(string(key.Kind), hit)
	}
	return hit
}

// Set stores value under the TTL of its operation kind.
func (c *ResultCache) Set(ctx context.Context, key models.RequestKey, value interface{}) {
	c.put(ctx, key, value, c.TTL(key.Kind))
}

// SetFallback stores a synthetic fallback result, which expires sooner so
// the backend is tried again once it recovers.
func (c *ResultCache) SetFallback(ctx context.Context, key models.RequestKey, value interface{}) {
	c.put(ctx, key, value, c.FallbackTTL(key.Kind))
}

func (c *ResultCache) put(ctx context.Context, key models.RequestKey, value interface{}, ttl time.Duration) {
	b, err := json.Marshal(value)
	if err != nil {
		c.log.Error("result cache encode failed", applogger.String("key", key.String()), applogger.Error(err))
		return
	}
	if err := c.store.Set(ctx, storageKey(key), string(b), ttl); err != nil {
		c.log.Warn("result cache write failed", applogger.String("key", key.String()), applogger.Error(err))
	}
}

// Invalidate drops the entry for key.
func (c *ResultCache) Invalidate(ctx context.Context, key models.RequestKey) error {
	return c.store.Delete(ctx, storageKey(key))
}

// Clear drops every cached result.
func (c *ResultCache) Clear(ctx context.Context) error {
	return c.store.DeleteByPattern(ctx, pkgcache.BuildPattern(keyPrefix+":"))
}

func storageKey(key models.RequestKey) string {
	return pkgcache.GenerateKeyWithParams(keyPrefix, key.Kind, pkgcache.HashKey(key.String()))
}
