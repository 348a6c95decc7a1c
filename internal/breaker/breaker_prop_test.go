package breaker

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestProperty_OpensAfterThresholdWithinWindow is P6: after
// failure_threshold failures within window_seconds, the breaker
// rejects the next call without invoking the provider.
func TestProperty_OpensAfterThresholdWithinWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 20).Draw(t, "threshold")
		extraCalls := rapid.IntRange(0, 10).Draw(t, "extra")

		b := New(Config{
			FailureThreshold: threshold,
			Window:           time.Minute,
			RecoveryTimeout:  time.Hour,
		}, nil)

		for i := 0; i < threshold+extraCalls; i++ {
			if i < threshold {
				if !b.CanExecute() {
					t.Fatalf("breaker rejected call %d before reaching threshold %d", i, threshold)
				}
			}
			b.RecordFailure()
		}

		if b.CanExecute() {
			t.Fatalf("breaker still permits calls after %d failures >= threshold %d", threshold+extraCalls, threshold)
		}
		if b.State() != StateOpen {
			t.Fatalf("state = %v, want %v", b.State(), StateOpen)
		}
	})
}
