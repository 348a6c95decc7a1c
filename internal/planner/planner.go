// Package planner is the SQL planner (C10): the decorator pipeline
// that turns a natural-language query into a validated Plan, composing
// the plan cache, plan history, circuit breaker, LLM provider, and SQL
// validator in that order.
//
// Pipeline per spec §4.10: cache hit returns immediately; a cache miss
// falls through to history; a history miss requires the circuit
// breaker to admit a call, then calls the provider, validates the
// output through the SQL validator (the final authority), and on
// success writes through to both cache and history. Errors are never
// written to either tier.
package planner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/breaker"
	"github.com/acme-corp/enterprise-tool-router/internal/llmplan"
	"github.com/acme-corp/enterprise-tool-router/internal/metrics"
	"github.com/acme-corp/enterprise-tool-router/internal/plancache"
	"github.com/acme-corp/enterprise-tool-router/internal/planhistory"
	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
	"github.com/acme-corp/enterprise-tool-router/internal/sqlvalidator"
)

// Source identifies where a Plan was ultimately produced, for metrics
// and audit detail.
type Source string

const (
	SourceCache   Source = "cache"
	SourceHistory Source = "history"
	SourceLLM     Source = "llm"
)

// Result is a validated plan plus provenance and usage.
type Result struct {
	Plan   routerdomain.Plan
	Source Source
	Usage  routerdomain.Usage
}

// Options controls one Plan call.
type Options struct {
	UserID        string
	CorrelationID string
	Timeout       time.Duration
	// BypassCache, when true, skips both the cache and history tiers
	// (spec §9 Open Question: bypass_cache bypasses both).
	BypassCache bool
	Retention   time.Duration
}

// Planner wires cache, history, breaker, provider and validator into
// the single Plan operation.
type Planner struct {
	cache     *plancache.Cache
	history   *planhistory.Store
	breaker   *breaker.Breaker
	provider  llmplan.Provider
	validator *sqlvalidator.Validator
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// New builds a Planner. Any of cache/history may be nil, in which case
// that tier is skipped entirely.
func New(cache *plancache.Cache, history *planhistory.Store, cb *breaker.Breaker, provider llmplan.Provider, validator *sqlvalidator.Validator, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		cache:     cache,
		history:   history,
		breaker:   cb,
		provider:  provider,
		validator: validator,
		logger:    logger.With(zap.String("component", "planner")),
	}
}

// SetMetrics attaches a Collector that cache/history hit-miss counters
// are reported to. Nil is a valid no-op value.
func (p *Planner) SetMetrics(m *metrics.Collector) {
	p.metrics = m
}

// Plan resolves query to a validated Plan, trying cache, then history,
// then the LLM provider gated by the circuit breaker. Errors are never
// written to cache or history (spec §9 Open Question).
func (p *Planner) Plan(ctx context.Context, query string, opts Options) (Result, error) {
	if !opts.BypassCache && p.cache != nil {
		if plan, ok := p.cache.Get(ctx, query); ok {
			p.recordCacheHit("cache")
			return Result{Plan: plan, Source: SourceCache}, nil
		}
		p.recordCacheMiss("cache")
	}

	if !opts.BypassCache && p.history != nil {
		if entry, ok, err := p.history.Lookup(ctx, query); err == nil && ok {
			p.recordCacheHit("history")
			plan := entry.ToPlan()
			if !opts.BypassCache && p.cache != nil {
				p.cache.Set(ctx, query, plan)
			}
			return Result{Plan: plan, Source: SourceHistory}, nil
		}
		p.recordCacheMiss("history")
	}

	if p.breaker != nil && !p.breaker.CanExecute() {
		return Result{}, routererr.New(routererr.KindCircuitBreaker, "planner circuit is open").
			WithDetail("state", p.breaker.State().String())
	}

	out, usage, err := p.provider.Complete(ctx, query, opts.Timeout)
	if err != nil {
		if p.breaker != nil {
			p.breaker.RecordFailure()
		}
		return Result{}, err
	}

	sanitizedSQL, verr := p.validator.Validate(out.SQL)
	if verr != nil {
		if p.breaker != nil {
			p.breaker.RecordFailure()
		}
		return Result{}, verr
	}
	if p.breaker != nil {
		p.breaker.RecordSuccess()
	}

	plan := routerdomain.Plan{SQL: sanitizedSQL, Confidence: out.Confidence, Explanation: out.Explanation}

	if !opts.BypassCache {
		if p.cache != nil {
			p.cache.Set(ctx, query, plan)
		}
		if p.history != nil {
			if err := p.history.Store(ctx, query, plan, opts.UserID, opts.CorrelationID, usage, opts.Retention); err != nil {
				p.logger.Warn("failed to persist plan history", zap.Error(err))
			}
		}
	}

	return Result{Plan: plan, Source: SourceLLM, Usage: usage}, nil
}

func (p *Planner) recordCacheHit(tier string) {
	if p.metrics != nil {
		p.metrics.RecordCacheHit(tier)
	}
}

func (p *Planner) recordCacheMiss(tier string) {
	if p.metrics != nil {
		p.metrics.RecordCacheMiss(tier)
	}
}
