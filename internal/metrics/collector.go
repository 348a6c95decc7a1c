// Package metrics is the process-wide Prometheus registry for the
// router: per-tool request counts, latency, and token/cost counters.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns the router's Prometheus instruments.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensInput     prometheus.Counter
	tokensOutput    prometheus.Counter
	costUSD         prometheus.Counter

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	breakerState *prometheus.GaugeVec

	dbConnectionsOpen prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
	dbQueryDuration   *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the router's instruments under namespace
// (e.g. "router") and returns a Collector.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of dispatched requests by tool",
		},
		[]string{"tool"},
	)

	c.requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_ms",
			Help:      "Request latency in milliseconds by tool",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"tool"},
	)

	c.tokensInput = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_input_total",
		Help:      "Total input tokens consumed by the planner",
	})

	c.tokensOutput = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_output_total",
		Help:      "Total output tokens produced by the planner",
	})

	c.costUSD = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_usd_total",
		Help:      "Total estimated planner cost in USD",
	})

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache/history hits by tier",
		},
		[]string{"tier"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache/history misses by tier",
		},
		[]string{"tier"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)

	c.dbConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Number of open database connections",
	})

	c.dbConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_idle",
		Help:      "Number of idle database connections",
	})

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds by method and path",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request body size in bytes by method and path",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes by method and path",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"method", "path"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one HTTP request's method, normalized path,
// status, duration, and request/response sizes (C13, generic transport
// layer — separate from RecordRequest's per-tool dispatch metrics).
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, reqSize, respSize int64) {
	statusLabel := strconv.Itoa(status)
	c.httpRequestsTotal.WithLabelValues(method, path, statusLabel).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordRequest records one dispatched request's tool, latency, and
// token/cost usage (usage fields are skipped when zero).
func (c *Collector) RecordRequest(tool string, duration time.Duration, tokensIn, tokensOut int, costUSD float64) {
	c.requestsTotal.WithLabelValues(tool).Inc()
	c.requestDuration.WithLabelValues(tool).Observe(float64(duration.Milliseconds()))
	if tokensIn > 0 {
		c.tokensInput.Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		c.tokensOutput.Add(float64(tokensOut))
	}
	if costUSD > 0 {
		c.costUSD.Add(costUSD)
	}
}

// RecordCacheHit records a hit against the named tier ("cache" or "history").
func (c *Collector) RecordCacheHit(tier string) {
	c.cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a miss against the named tier.
func (c *Collector) RecordCacheMiss(tier string) {
	c.cacheMisses.WithLabelValues(tier).Inc()
}

// RecordBreakerState publishes the breaker's current numeric state.
func (c *Collector) RecordBreakerState(name string, state int) {
	c.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordDBConnections records the pool's open/idle connection counts.
func (c *Collector) RecordDBConnections(open, idle int) {
	c.dbConnectionsOpen.Set(float64(open))
	c.dbConnectionsIdle.Set(float64(idle))
}

// RecordDBQuery records one database operation's duration.
func (c *Collector) RecordDBQuery(operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
