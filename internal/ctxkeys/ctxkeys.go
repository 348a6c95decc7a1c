// Package ctxkeys defines the typed context keys threaded through a
// single query's lifecycle.
package ctxkeys

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// NewCorrelationID generates an RFC-4122 random identifier for a
// request that arrived without one.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID attaches the correlation id assigned to an inbound
// request to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id attached to ctx, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(correlationIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
