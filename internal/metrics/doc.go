// Package metrics exposes the router's Prometheus instruments: a
// per-tool request counter and latency histogram, token/cost
// counters, cache/history hit-miss counters, a circuit breaker state
// gauge, and database pool gauges. Instruments are registered once
// per namespace via promauto and scraped over the metrics server's
// HTTP listener.
package metrics
