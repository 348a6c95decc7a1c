package llmplan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

func TestMockProvider_DefaultsToValidResponse(t *testing.T) {
	p := NewMockProvider()
	out, usage, err := p.Complete(context.Background(), "q", time.Second)
	require.NoError(t, err)
	assert.NoError(t, ValidateSchema(out))
	assert.Equal(t, 10, usage.InputTokens)
	assert.Equal(t, 1, p.Calls())
}

func TestMockProvider_WithPlanningError(t *testing.T) {
	p := NewMockProvider().WithPlanningError("upstream rejected the prompt")
	_, _, err := p.Complete(context.Background(), "q", time.Second)
	require.Error(t, err)
	re, ok := err.(*routererr.Error)
	require.True(t, ok)
	assert.Equal(t, routererr.KindPlanning, re.Kind)
}

func TestMockProvider_WithTimeoutExceedsDeadline(t *testing.T) {
	p := NewMockProvider().WithTimeout(50 * time.Millisecond)
	_, _, err := p.Complete(context.Background(), "q", 10*time.Millisecond)
	require.Error(t, err)
	re, ok := err.(*routererr.Error)
	require.True(t, ok)
	assert.Equal(t, routererr.KindTimeout, re.Kind)
}

func TestMockProvider_ContextCancellationDuringDelay(t *testing.T) {
	p := NewMockProvider().WithTimeout(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := p.Complete(ctx, "q", time.Second)
	require.Error(t, err)
}

func TestMockProvider_WithResponseOverridesOutput(t *testing.T) {
	custom := PlannedOutput{SQL: "SELECT 2 FROM t LIMIT 5", Confidence: 0.4, Explanation: "custom"}
	p := NewMockProvider().WithResponse(custom, routerdomain.Usage{InputTokens: 3, OutputTokens: 4})
	out, usage, err := p.Complete(context.Background(), "q", time.Second)
	require.NoError(t, err)
	assert.Equal(t, custom.SQL, out.SQL)
	assert.Equal(t, 3, usage.InputTokens)
	assert.Equal(t, 4, usage.OutputTokens)
}
