package plancache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	c := New(context.Background(), Config{TTL: time.Minute, MaxSizeBytes: 1024}, client, nil)
	return c, s
}

func TestKey_NormalizesQuery(t *testing.T) {
	k1 := Key("  SELECT * FROM sales_fact  ")
	k2 := Key("select * from sales_fact")
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "sql:"))
}

func TestCache_SetThenGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	plan := routerdomain.Plan{SQL: "SELECT 1 LIMIT 10", Confidence: 0.9, Explanation: "test"}
	stored := c.Set(ctx, "how many sales", plan)
	assert.True(t, stored)

	got, ok := c.Get(ctx, "how many sales")
	require.True(t, ok)
	assert.Equal(t, plan, got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
}

func TestCache_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok := c.Get(context.Background(), "never seen")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestCache_OversizedEntryNotStored(t *testing.T) {
	c, _ := newTestCache(t)
	plan := routerdomain.Plan{
		SQL:         "SELECT 1 LIMIT 10",
		Confidence:  0.9,
		Explanation: strings.Repeat("x", 2048),
	}
	stored := c.Set(context.Background(), "big query", plan)
	assert.False(t, stored)

	_, ok := c.Get(context.Background(), "big query")
	assert.False(t, ok)

	assert.Equal(t, uint64(1), c.Stats().Errors)
}

func TestCache_CorruptedEntryCountsAsError(t *testing.T) {
	c, s := newTestCache(t)
	require.NoError(t, s.Set(Key("bad entry"), "not json"))

	_, ok := c.Get(context.Background(), "bad entry")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Errors)
}

func TestCache_DegradesToNoOpWithoutClient(t *testing.T) {
	c := New(context.Background(), DefaultConfig(), nil, nil)

	stored := c.Set(context.Background(), "q", routerdomain.Plan{SQL: "SELECT 1 LIMIT 1"})
	assert.False(t, stored)

	_, ok := c.Get(context.Background(), "q")
	assert.False(t, ok)

	assert.Equal(t, uint64(2), c.Stats().Misses)
}

func TestCache_DegradesToNoOpOnUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	c := New(context.Background(), DefaultConfig(), client, nil)

	stored := c.Set(context.Background(), "q", routerdomain.Plan{SQL: "SELECT 1 LIMIT 1"})
	assert.False(t, stored)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	plan := routerdomain.Plan{SQL: "SELECT 1 LIMIT 1", Confidence: 0.5, Explanation: "e"}

	c.Set(ctx, "q1", plan)
	c.Set(ctx, "q2", plan)

	require.NoError(t, c.Delete(ctx, "q1"))
	_, ok := c.Get(ctx, "q1")
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx))
	_, ok = c.Get(ctx, "q2")
	assert.False(t, ok)
}
