// Package plancache is the hot key-value tier over validated plans
// (C6). It backs onto Redis with a TTL; if Redis is unreachable at
// construction, the cache degrades to a no-op so the planner pipeline
// keeps working without a hot tier — every operation then counts
// toward the miss/error statistics instead of failing the caller.
package plancache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
)

// Config controls TTL and the oversized-entry cutoff.
type Config struct {
	TTL         time.Duration
	MaxSizeBytes int64
}

// DefaultConfig returns the spec's default cache parameters: a 1800s
// TTL and a 1 MiB entry size cap.
func DefaultConfig() Config {
	return Config{TTL: 1800 * time.Second, MaxSizeBytes: 1 << 20}
}

// Stats summarizes cache activity.
type Stats struct {
	Hits   uint64
	Misses uint64
	Errors uint64
}

// Cache is the hot plan cache. All methods are safe for concurrent use.
type Cache struct {
	cfg    Config
	client *redis.Client
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New builds a Cache backed by client. If client is nil, or a ping
// against it fails, the returned Cache silently degrades to a no-op.
func New(ctx context.Context, cfg Config, client *redis.Client, logger *zap.Logger) *Cache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = def.MaxSizeBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{cfg: cfg, logger: logger.With(zap.String("component", "plancache"))}

	if client == nil {
		c.logger.Warn("plan cache constructed without a redis client, degrading to no-op")
		return c
	}
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn("plan cache redis ping failed, degrading to no-op", zap.Error(err))
		return c
	}

	c.client = client
	return c
}

// Key returns the cache key for query: "sql:" + SHA-256(normalized query).
func Key(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return "sql:" + hex.EncodeToString(sum[:])
}

// Get looks up query's plan. ok is false on miss, construction
// degradation, or a corrupted entry (which also counts as an error).
func (c *Cache) Get(ctx context.Context, query string) (plan routerdomain.Plan, ok bool) {
	if c.client == nil {
		c.recordMiss()
		return routerdomain.Plan{}, false
	}

	val, err := c.client.Get(ctx, Key(query)).Result()
	if err == redis.Nil {
		c.recordMiss()
		return routerdomain.Plan{}, false
	}
	if err != nil {
		c.recordError()
		return routerdomain.Plan{}, false
	}

	var p routerdomain.Plan
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		c.recordError()
		return routerdomain.Plan{}, false
	}

	c.recordHit()
	return p, true
}

// Set stores plan under query's key unless its serialized size exceeds
// MaxSizeBytes, or the cache is degraded. stored reports whether the
// write actually happened.
func (c *Cache) Set(ctx context.Context, query string, plan routerdomain.Plan) (stored bool) {
	data, err := json.Marshal(plan)
	if err != nil {
		c.recordError()
		return false
	}
	if int64(len(data)) > c.cfg.MaxSizeBytes {
		c.recordError()
		return false
	}
	if c.client == nil {
		c.recordMiss()
		return false
	}

	if err := c.client.Set(ctx, Key(query), data, c.cfg.TTL).Err(); err != nil {
		c.recordError()
		return false
	}
	return true
}

// Delete removes query's cached plan, if any.
func (c *Cache) Delete(ctx context.Context, query string) error {
	if c.client == nil {
		c.recordMiss()
		return nil
	}
	return c.client.Del(ctx, Key(query)).Err()
}

// Clear removes every cached plan entry (keys under the "sql:" prefix).
func (c *Cache) Clear(ctx context.Context) error {
	if c.client == nil {
		c.recordMiss()
		return nil
	}
	iter := c.client.Scan(ctx, 0, "sql:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Stats returns a snapshot of hit/miss/error counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

func (c *Cache) recordError() {
	c.mu.Lock()
	c.stats.Errors++
	c.stats.Misses++
	c.mu.Unlock()
}
