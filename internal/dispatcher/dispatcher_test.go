package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/ratelimit"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
)

type fakeTool struct {
	result routerdomain.ToolResult
	usage  routerdomain.Usage
	err    error
	calls  int
}

func (f *fakeTool) Run(ctx context.Context, query string, opts ToolOptions) (routerdomain.ToolResult, routerdomain.Usage, error) {
	f.calls++
	return f.result, f.usage, f.err
}

func newTestDispatcher(sql, vector, rest Tool, limiter *ratelimit.Limiter) *Dispatcher {
	return New(sql, vector, rest, limiter, nil, nil, time.Second, time.Hour, zap.NewNop())
}

func TestRoute_SQLKeywords(t *testing.T) {
	tool, conf := route("select revenue from sales")
	assert.Equal(t, "sql", tool)
	assert.Equal(t, 0.75, conf)
}

func TestRoute_VectorKeywords(t *testing.T) {
	tool, _ := route("how do i restart the job runbook")
	assert.Equal(t, "vector", tool)
}

func TestRoute_RestKeywords(t *testing.T) {
	tool, _ := route("what is the status of the payment endpoint")
	assert.Equal(t, "rest", tool)
}

func TestRoute_Unknown(t *testing.T) {
	tool, conf := route("hello there")
	assert.Equal(t, "unknown", tool)
	assert.Equal(t, 0.30, conf)
}

func TestRoute_SQLPrecedesOtherKeywords(t *testing.T) {
	// "api" appears but "select" takes precedence per the ordered heuristic.
	tool, _ := route("select count from api_calls")
	assert.Equal(t, "sql", tool)
}

func TestDispatcher_UnknownRouteDoesNotInvokeAnyTool(t *testing.T) {
	sql := &fakeTool{}
	d := newTestDispatcher(sql, &fakeTool{}, &fakeTool{}, nil)

	routed := d.Handle(context.Background(), Request{Query: "hello there"})
	assert.Equal(t, "unknown", routed.Tool)
	assert.Equal(t, 0.30, routed.Confidence)
	assert.Equal(t, "no confident tool match", routed.Result.Notes)
	assert.Equal(t, 0, sql.calls)
}

func TestDispatcher_RoutesToSQLTool(t *testing.T) {
	sql := &fakeTool{result: routerdomain.ToolResult{Notes: "ok"}}
	d := newTestDispatcher(sql, &fakeTool{}, &fakeTool{}, nil)

	routed := d.Handle(context.Background(), Request{Query: "select revenue from sales"})
	assert.Equal(t, "sql", routed.Tool)
	assert.Equal(t, 1, sql.calls)
	assert.GreaterOrEqual(t, routed.ElapsedMS, int64(0))
}

func TestDispatcher_ToolErrorIsSerializedIntoResult(t *testing.T) {
	sql := &fakeTool{err: routererr.New(routererr.KindExecution, "boom")}
	d := newTestDispatcher(sql, &fakeTool{}, &fakeTool{}, nil)

	routed := d.Handle(context.Background(), Request{Query: "select 1 from t"})
	serialized, ok := routed.Result.Data.(routererr.Serialized)
	require.True(t, ok)
	assert.Equal(t, "execution", serialized.Category)
}

func TestDispatcher_RateLimitedRequestShortCircuits(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Enabled: true, MaxRequests: 1, Window: time.Minute}, nil, zap.NewNop())
	sql := &fakeTool{}
	d := newTestDispatcher(sql, &fakeTool{}, &fakeTool{}, limiter)

	routed := d.Handle(context.Background(), Request{Query: "select 1", UserID: "user-1"})
	assert.Equal(t, "sql", routed.Tool)
	assert.Equal(t, 1, sql.calls)

	routed2 := d.Handle(context.Background(), Request{Query: "select 1", UserID: "user-1"})
	assert.Equal(t, "unknown", routed2.Tool)
	assert.Equal(t, 0.0, routed2.Confidence)
	assert.Equal(t, int64(0), routed2.ElapsedMS)
	assert.Equal(t, 1, sql.calls, "rate-limited request must not invoke the tool")

	serialized, ok := routed2.Result.Data.(routererr.Serialized)
	require.True(t, ok)
	assert.Equal(t, "rate_limit", serialized.Category)
}

func TestDispatcher_GeneratesCorrelationIDWhenAbsent(t *testing.T) {
	sql := &fakeTool{}
	d := newTestDispatcher(sql, &fakeTool{}, &fakeTool{}, nil)
	routed := d.Handle(context.Background(), Request{Query: "select 1"})
	assert.Equal(t, "sql", routed.Tool)
	assert.NotEmpty(t, routed.CorrelationID)
}
