package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationID_RoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")

	got, ok := CorrelationID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc-123", got)
}

func TestCorrelationID_AbsentReturnsFalse(t *testing.T) {
	_, ok := CorrelationID(context.Background())
	assert.False(t, ok)
}

func TestCorrelationID_EmptyValueReturnsFalse(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	_, ok := CorrelationID(ctx)
	assert.False(t, ok)
}
