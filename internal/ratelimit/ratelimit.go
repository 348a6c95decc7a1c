// Package ratelimit implements a per-identifier sliding-window request
// counter (C8). Unlike a token-bucket limiter, it records the exact
// timestamp of every admitted request and counts how many fall inside
// [now-window, now]; identifiers with no recent traffic are naturally
// reclaimable.
//
// Redis sorted sets back the counter when a client is configured
// (ZADD/ZREMRANGEBYSCORE/ZCARD); otherwise it falls back to an
// in-process map guarded by a mutex, matching the two-backend design
// of the rate limiter this package is modeled on.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

// Config controls admission thresholds.
type Config struct {
	Enabled bool
	// MaxRequests is the number of requests an identifier may make within Window.
	MaxRequests int
	// Window is the sliding window over which requests are counted.
	Window time.Duration
}

// DefaultConfig returns the spec's default rate-limit parameters.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxRequests: 100, Window: 60 * time.Second}
}

// Limiter is a sliding-window rate limiter, one counter per identifier.
//
// All methods are safe for concurrent use.
type Limiter struct {
	cfg    Config
	redis  *redis.Client
	logger *zap.Logger

	mu      sync.Mutex
	inMem   map[string][]time.Time
	rejects uint64
	allows  uint64
}

// New builds a Limiter. If client is non-nil it is used as the
// sliding-window backend; otherwise requests are tracked in-process.
func New(cfg Config, client *redis.Client, logger *zap.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		cfg:    cfg,
		redis:  client,
		logger: logger.With(zap.String("component", "ratelimit")),
		inMem:  make(map[string][]time.Time),
	}
}

// IsAllowed reports whether identifier has made fewer than MaxRequests
// requests in the trailing window. It does not record a request.
func (l *Limiter) IsAllowed(ctx context.Context, identifier string) (bool, error) {
	if !l.cfg.Enabled {
		return true, nil
	}
	count, err := l.count(ctx, identifier, time.Now())
	if err != nil {
		return false, err
	}
	return count < l.cfg.MaxRequests, nil
}

// RecordRequest appends a request timestamp for identifier if doing so
// would not exceed MaxRequests. It returns whether the request was recorded.
func (l *Limiter) RecordRequest(ctx context.Context, identifier string) (bool, error) {
	if !l.cfg.Enabled {
		return true, nil
	}

	now := time.Now()

	var allowed bool
	if l.redis != nil {
		var err error
		allowed, err = l.checkAndRecordRedis(ctx, identifier, now)
		if err != nil {
			return false, err
		}
	} else {
		allowed = l.checkAndRecordInMemory(identifier, now)
	}

	l.mu.Lock()
	if allowed {
		l.allows++
	} else {
		l.rejects++
	}
	l.mu.Unlock()
	return allowed, nil
}

// CheckLimit records identifier's request if permitted, or returns a
// rate_limit error carrying retry_after when the limit is exceeded.
func (l *Limiter) CheckLimit(ctx context.Context, identifier string) error {
	recorded, err := l.RecordRequest(ctx, identifier)
	if err != nil {
		return err
	}
	if recorded {
		return nil
	}

	retryAfter, err := l.retryAfter(ctx, identifier)
	if err != nil {
		retryAfter = l.cfg.Window
	}
	return routererr.New(routererr.KindRateLimit, "rate limit exceeded").
		WithDetail("note", "rate_limit_exceeded").
		WithDetail("identifier", identifier).
		WithDetail("retry_after_seconds", retryAfter.Seconds())
}

// Stats summarizes admission decisions made by this Limiter instance.
type Stats struct {
	Allowed        uint64
	Rejected       uint64
	RejectionRate  float64
}

// Stats returns a snapshot of admission counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.allows + l.rejects
	var rate float64
	if total > 0 {
		rate = float64(l.rejects) / float64(total)
	}
	return Stats{Allowed: l.allows, Rejected: l.rejects, RejectionRate: rate}
}

// Reset clears the recorded request history for identifier, or for
// every identifier when identifier is empty.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	l.mu.Lock()
	if identifier == "" {
		l.inMem = make(map[string][]time.Time)
	} else {
		delete(l.inMem, identifier)
	}
	l.mu.Unlock()

	if l.redis == nil {
		return nil
	}
	if identifier == "" {
		iter := l.redis.Scan(ctx, 0, redisKey("*"), 0).Iterator()
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
		return l.redis.Del(ctx, keys...).Err()
	}
	return l.redis.Del(ctx, redisKey(identifier)).Err()
}

func (l *Limiter) count(ctx context.Context, identifier string, now time.Time) (int, error) {
	if l.redis != nil {
		return l.countRedis(ctx, identifier, now)
	}
	return l.countInMemory(identifier, now), nil
}

func (l *Limiter) countInMemory(identifier string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.cfg.Window)
	times := pruneOlderThan(l.inMem[identifier], cutoff)
	l.inMem[identifier] = times
	return len(times)
}

// checkAndRecordInMemory prunes, counts, and conditionally appends
// identifier's request under a single lock hold so that two concurrent
// requests for the same identifier can never both observe a slot free
// and both be admitted.
func (l *Limiter) checkAndRecordInMemory(identifier string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.cfg.Window)
	times := pruneOlderThan(l.inMem[identifier], cutoff)
	if len(times) >= l.cfg.MaxRequests {
		l.inMem[identifier] = times
		return false
	}
	l.inMem[identifier] = append(times, now)
	return true
}

// checkAndRecordRedis counts identifier's in-window entries and, if
// admitted, records the new one. Redis-backed state is shared across
// process instances and is not guarded by l.mu; admission races there
// are bounded by ZADD/ZCARD ordering rather than an in-process mutex.
func (l *Limiter) checkAndRecordRedis(ctx context.Context, identifier string, now time.Time) (bool, error) {
	count, err := l.countRedis(ctx, identifier, now)
	if err != nil {
		return false, err
	}
	if count >= l.cfg.MaxRequests {
		return false, nil
	}
	if err := l.recordRedis(ctx, identifier, now); err != nil {
		return false, err
	}
	return true, nil
}

func pruneOlderThan(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(times); i++ {
		if times[i].After(cutoff) {
			break
		}
	}
	return times[i:]
}

func (l *Limiter) retryAfter(ctx context.Context, identifier string) (time.Duration, error) {
	now := time.Now()
	if l.redis != nil {
		oldest, err := l.oldestRedis(ctx, identifier)
		if err != nil {
			return 0, err
		}
		if oldest.IsZero() {
			return l.cfg.Window, nil
		}
		return oldest.Add(l.cfg.Window).Sub(now), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	times := l.inMem[identifier]
	if len(times) == 0 {
		return l.cfg.Window, nil
	}
	return times[0].Add(l.cfg.Window).Sub(now), nil
}

func redisKey(identifier string) string {
	return fmt.Sprintf("ratelimit:%s", identifier)
}

func (l *Limiter) countRedis(ctx context.Context, identifier string, now time.Time) (int, error) {
	key := redisKey(identifier)
	cutoff := now.Add(-l.cfg.Window)

	if err := l.redis.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff.UnixNano())).Err(); err != nil {
		return 0, fmt.Errorf("ratelimit prune: %w", err)
	}
	count, err := l.redis.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit count: %w", err)
	}
	return int(count), nil
}

func (l *Limiter) recordRedis(ctx context.Context, identifier string, now time.Time) error {
	key := redisKey(identifier)
	member := fmt.Sprintf("%d", now.UnixNano())

	if err := l.redis.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return fmt.Errorf("ratelimit record: %w", err)
	}
	return l.redis.Expire(ctx, key, l.cfg.Window).Err()
}

func (l *Limiter) oldestRedis(ctx context.Context, identifier string) (time.Time, error) {
	key := redisKey(identifier)
	vals, err := l.redis.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("ratelimit oldest: %w", err)
	}
	if len(vals) == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, int64(vals[0].Score)), nil
}
