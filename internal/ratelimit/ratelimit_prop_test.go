package ratelimit

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestProperty_AtMostMaxRequestsWithinWindow is P7: for identifier u,
// at most max_requests calls succeed within any sliding window_seconds.
func TestProperty_AtMostMaxRequestsWithinWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxRequests := rapid.IntRange(1, 30).Draw(t, "max_requests")
		attempts := rapid.IntRange(1, 60).Draw(t, "attempts")

		l := New(Config{Enabled: true, MaxRequests: maxRequests, Window: time.Minute}, nil, nil)
		ctx := context.Background()

		allowed := 0
		for i := 0; i < attempts; i++ {
			ok, err := l.RecordRequest(ctx, "u")
			if err != nil {
				t.Fatalf("RecordRequest: %v", err)
			}
			if ok {
				allowed++
			}
		}

		if allowed > maxRequests {
			t.Fatalf("allowed %d requests within the window, want <= max_requests %d", allowed, maxRequests)
		}
		if attempts >= maxRequests && allowed != maxRequests {
			t.Fatalf("allowed %d of %d attempts, want exactly max_requests %d since the window never expired", allowed, attempts, maxRequests)
		}
	})
}
