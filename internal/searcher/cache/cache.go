// Package cache memoizes ranked search results. Entries live in an
// in-process expiring LRU and, when configured, in Redis behind a circuit
// breaker. Every indexing run invalidates the cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/resilience"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "fre:search:"

// Remote is the shared cache backend. *redis.Client satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

type Options struct {
	LRUSize int
	TTL     time.Duration
	// Remote may be nil, in which case only the LRU is used.
	Remote  Remote
	Breaker *resilience.CircuitBreaker
	Metrics *metrics.Metrics
}

// QueryCache memoizes search results by query and search mode.
type QueryCache struct {
	local      *expirable.LRU[string, []ranker.ScoredDoc]
	remote     Remote
	breaker    *resilience.CircuitBreaker
	ttl        time.Duration
	group      singleflight.Group
	generation atomic.Uint64
	metrics    *metrics.Metrics
	logger     *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func New(opts Options) *QueryCache {
	if opts.LRUSize <= 0 {
		opts.LRUSize = 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	breaker := opts.Breaker
	if opts.Remote != nil && breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.BreakerConfig{})
	}
	return &QueryCache{
		local:   expirable.NewLRU[string, []ranker.ScoredDoc](opts.LRUSize, nil, opts.TTL),
		remote:  opts.Remote,
		breaker: breaker,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached result for (query, mode) or computes it
// once, however many callers ask concurrently. hit reports whether the
// result came from either cache layer.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query, mode string,
	compute func() ([]ranker.ScoredDoc, error),
) (result []ranker.ScoredDoc, hit bool, err error) {
	key := c.key(query, mode)
	if docs, ok := c.lookup(ctx, key); ok {
		return docs, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if docs, ok := c.lookup(ctx, key); ok {
			return docs, nil
		}
		docs, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, docs)
		return docs, nil
	})
	if err != nil {
		return nil, false, err
	}
	c.misses.Add(1)
	c.metrics.CacheMiss()
	return v.([]ranker.ScoredDoc), false, nil
}

// Invalidate drops every cached result. Entries computed before the call
// can no longer be returned, even if they are stored after it.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	var deleted int64
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = c.remote.DeleteByPrefix(ctx, keyPrefix)
		return err
	})
	c.publishBreaker()
	if err != nil {
		return fmt.Errorf("invalidating redis cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "redis_keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts since construction.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// RemoteState reports the Redis breaker state, or closed without Redis.
func (c *QueryCache) RemoteState() resilience.State {
	if c.breaker == nil {
		return resilience.StateClosed
	}
	return c.breaker.State()
}

// HasRemote reports whether a Redis backend is configured.
func (c *QueryCache) HasRemote() bool {
	return c.remote != nil
}

func (c *QueryCache) lookup(ctx context.Context, key string) ([]ranker.ScoredDoc, bool) {
	if docs, ok := c.local.Get(key); ok {
		c.hits.Add(1)
		c.metrics.CacheHit("lru")
		return docs, true
	}
	if c.remote == nil {
		return nil, false
	}
	var (
		data  []byte
		found bool
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.remote.Get(ctx, key)
		return err
	})
	c.publishBreaker()
	if err != nil {
		c.logger.Debug("redis cache get failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var docs []ranker.ScoredDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	c.local.Add(key, docs)
	c.hits.Add(1)
	c.metrics.CacheHit("redis")
	return docs, true
}

func (c *QueryCache) store(ctx context.Context, key string, docs []ranker.ScoredDoc) {
	c.local.Add(key, docs)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache marshal failed", "error", err)
		return
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.remote.Set(ctx, key, data, c.ttl)
	})
	c.publishBreaker()
	if err != nil {
		c.logger.Debug("redis cache set failed", "error", err)
	}
}

func (c *QueryCache) publishBreaker() {
	if c.metrics == nil || c.breaker == nil {
		return
	}
	c.metrics.SetBreakerState("redis-cache", int(c.breaker.State()))
}

// key hashes the query so arbitrary user input never reaches Redis key
// syntax. The generation makes earlier entries unreachable after Invalidate.
func (c *QueryCache) key(query, mode string) string {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(query))
	gen := strconv.FormatUint(c.generation.Load(), 10)
	return keyPrefix + gen + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}
