package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.requestsTotal)
	assert.NotNil(t, collector.requestDuration)
	assert.NotNil(t, collector.tokensInput)
	assert.NotNil(t, collector.tokensOutput)
	assert.NotNil(t, collector.costUSD)
}

func TestCollector_RecordRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRequest("sql", 100*time.Millisecond, 100, 50, 0.01)

	count := testutil.CollectAndCount(collector.requestsTotal)
	assert.Greater(t, count, 0)

	tokensIn := testutil.ToFloat64(collector.tokensInput)
	assert.Equal(t, float64(100), tokensIn)

	tokensOut := testutil.ToFloat64(collector.tokensOutput)
	assert.Equal(t, float64(50), tokensOut)

	cost := testutil.ToFloat64(collector.costUSD)
	assert.InDelta(t, 0.01, cost, 0.0001)
}

func TestCollector_RecordRequest_ZeroUsageSkipsCounters(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRequest("unknown", 0, 0, 0, 0)

	assert.Equal(t, float64(0), testutil.ToFloat64(collector.tokensInput))
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.tokensOutput))
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.costUSD))
}

func TestCollector_RecordCacheHitMiss(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("cache")
	collector.RecordCacheMiss("history")

	assert.Greater(t, testutil.CollectAndCount(collector.cacheHits), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.cacheMisses), 0)
}

func TestCollector_RecordBreakerState(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordBreakerState("llm_provider", 1)

	assert.Greater(t, testutil.CollectAndCount(collector.breakerState), 0)
}

func TestCollector_RecordDBQuery(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("SELECT", 20*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
}

func TestCollector_RecordDBConnections(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections(10, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordRequest("sql", 100*time.Millisecond, 10, 5, 0.001)
			collector.RecordCacheHit("cache")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Greater(t, testutil.CollectAndCount(collector.requestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.cacheHits), 0)
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	registry.MustRegister(collector.requestsTotal)
	registry.MustRegister(collector.requestDuration)

	collector.RecordRequest("sql", 100*time.Millisecond, 0, 0, 0)

	count := testutil.CollectAndCount(collector.requestsTotal)
	assert.Greater(t, count, 0)
}
