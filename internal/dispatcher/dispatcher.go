// Package dispatcher is the C12 request dispatcher: admission,
// keyword-heuristic tool routing, tool invocation, and metrics/audit
// recording, producing the Routed envelope returned to the HTTP layer.
package dispatcher

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/audit"
	"github.com/acme-corp/enterprise-tool-router/internal/ctxkeys"
	"github.com/acme-corp/enterprise-tool-router/internal/metrics"
	"github.com/acme-corp/enterprise-tool-router/internal/ratelimit"
	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

// serializeError converts any error into the stable seven-key shape,
// wrapping non-router errors as an unknown-kind router error first.
func serializeError(err error) routererr.Serialized {
	if re, ok := err.(*routererr.Error); ok {
		return re.Serialize()
	}
	return routererr.New(routererr.KindUnknown, err.Error()).Serialize()
}

// ToolOptions carries the per-call context every Tool.Run needs.
type ToolOptions struct {
	CorrelationID string
	UserID        string
	BypassCache   bool
	Timeout       time.Duration
	Retention     time.Duration
}

// Tool is the contract the dispatcher expects from every downstream
// tool. internal/sqltool implements this via an adapter; the vector
// and REST tools are out-of-scope stubs satisfying only this contract.
type Tool interface {
	Run(ctx context.Context, query string, opts ToolOptions) (routerdomain.ToolResult, routerdomain.Usage, error)
}

// Request is one incoming dispatch request.
type Request struct {
	Query         string
	CorrelationID string
	UserID        string
	BypassCache   bool
}

// Dispatcher composes admission, routing, tool invocation, and the
// metrics/audit side effects around a request.
type Dispatcher struct {
	sqlTool    Tool
	vectorTool Tool
	restTool   Tool
	limiter    *ratelimit.Limiter
	metrics    *metrics.Collector
	auditSink  *audit.Sink
	timeout    time.Duration
	retention  time.Duration
	logger     *zap.Logger
}

// New builds a Dispatcher. limiter, metricsCollector and auditSink may
// be nil to disable that concern entirely.
func New(sqlTool, vectorTool, restTool Tool, limiter *ratelimit.Limiter, metricsCollector *metrics.Collector, auditSink *audit.Sink, timeout, retention time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sqlTool:    sqlTool,
		vectorTool: vectorTool,
		restTool:   restTool,
		limiter:    limiter,
		metrics:    metricsCollector,
		auditSink:  auditSink,
		timeout:    timeout,
		retention:  retention,
		logger:     logger.With(zap.String("component", "dispatcher")),
	}
}

// route applies the ordered keyword heuristic from spec §4.12 step 4.
func route(query string) (tool string, confidence float64) {
	folded := strings.ToLower(query)

	if containsAny(folded, "select", "from", "group by", "revenue", "count", "sum", "sql") {
		return "sql", 0.75
	}
	if containsAny(folded, "runbook", "docs", "how do i", "procedure", "playbook", "doc") {
		return "vector", 0.70
	}
	if containsAny(folded, "call api", "endpoint", "http", "status", "service", "api") {
		return "rest", 0.70
	}
	return "unknown", 0.30
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Handle runs the full C12 pipeline for one request.
func (d *Dispatcher) Handle(ctx context.Context, req Request) routerdomain.Routed {
	// Per the fixed Open Question answer, admission is checked before a
	// correlation id is ever assigned: a rate-limited request carries
	// whatever id the caller supplied (possibly none) and is never
	// charged the cost of generating one. It also never opens an audit
	// entry: admission is rejected at the door, before the pipeline has
	// a tool/correlation id to attribute a record to, so the "one audit
	// record per request" invariant is scoped to admitted requests.
	if req.UserID != "" && d.limiter != nil {
		if err := d.limiter.CheckLimit(ctx, req.UserID); err != nil {
			return routerdomain.Routed{
				Tool:          "unknown",
				Confidence:    0.0,
				Result:        routerdomain.ToolResult{Data: serializeError(err)},
				CorrelationID: req.CorrelationID,
				ElapsedMS:     0,
			}
		}
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = ctxkeys.NewCorrelationID()
	}

	start := time.Now()
	tool, confidence := route(req.Query)

	entry := audit.Open(correlationID, req.UserID, tool, "run", map[string]any{"query": req.Query})

	routed := routerdomain.Routed{Tool: tool, Confidence: confidence, CorrelationID: correlationID}

	if tool == "unknown" {
		routed.Result = routerdomain.ToolResult{Notes: "no confident tool match"}
		routed.ElapsedMS = time.Since(start).Milliseconds()
		d.finish(ctx, entry, routed, true)
		return routed
	}

	var target Tool
	switch tool {
	case "sql":
		target = d.sqlTool
	case "vector":
		target = d.vectorTool
	case "rest":
		target = d.restTool
	}

	opts := ToolOptions{
		CorrelationID: correlationID,
		UserID:        req.UserID,
		BypassCache:   req.BypassCache,
		Timeout:       d.timeout,
		Retention:     d.retention,
	}

	result, usage, err := target.Run(ctx, req.Query, opts)
	elapsed := time.Since(start)
	routed.ElapsedMS = elapsed.Milliseconds()

	success := err == nil
	if err != nil {
		routed.Result = routerdomain.ToolResult{Data: serializeError(err)}
	} else {
		routed.Result = result
		routed.TokensInput = result.TokensInput
		routed.TokensOutput = result.TokensOutput
		routed.CostUSD = result.CostUSD
		if usage.InputTokens > 0 {
			routed.TokensInput = usage.InputTokens
		}
		if usage.OutputTokens > 0 {
			routed.TokensOutput = usage.OutputTokens
		}
	}

	if d.metrics != nil {
		d.metrics.RecordRequest(tool, elapsed, routed.TokensInput, routed.TokensOutput, routed.CostUSD)
	}

	d.finish(ctx, entry, routed, success)
	return routed
}

func (d *Dispatcher) finish(ctx context.Context, entry *audit.Entry, routed routerdomain.Routed, success bool) {
	if d.auditSink == nil {
		return
	}
	if success {
		entry.CloseSuccess(ctx, d.auditSink, routed.Result, routed.TokensInput, routed.TokensOutput, routed.CostUSD)
	} else {
		entry.CloseFailure(ctx, d.auditSink)
	}
}
