// Package breaker implements a three-state circuit breaker gating calls
// to the LLM provider.
//
// Unlike a simple consecutive-failure counter, failures are tracked as
// a monotonic queue of timestamps: only failures within the last
// window_seconds count toward the threshold. This matches a
// sliding-window failure rate rather than "N failures in a row".
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls breaker thresholds and timing.
type Config struct {
	// FailureThreshold is the number of failures within Window that opens the circuit.
	FailureThreshold int
	// Window is the sliding window over which failures are counted.
	Window time.Duration
	// RecoveryTimeout is how long the circuit stays OPEN before allowing a probe.
	RecoveryTimeout time.Duration
	// OnStateChange, if set, is invoked (outside the lock) on every transition.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the spec's default breaker parameters.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker is a sliding-window, three-state circuit breaker.
//
// All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state        State
	failureTimes []time.Time
	openedAt     time.Time

	logger *zap.Logger
}

// New creates a Breaker. A zero-value Config field falls back to
// DefaultConfig's value for that field.
func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{cfg: cfg, state: StateClosed, logger: logger}
}

// State returns the breaker's current state, lazily applying the
// OPEN -> HALF_OPEN transition if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover(time.Now())
	return b.state
}

// CanExecute reports whether a call is currently permitted.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover(time.Now())
	return b.state != StateOpen
}

// RecordSuccess records a successful call.
//
// In HALF_OPEN, a success closes the circuit. In CLOSED, it is a no-op
// on state (the failure queue is time-based, not reset by success).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.transition(StateClosed, time.Now())
		b.failureTimes = nil
		b.openedAt = time.Time{}
	}
}

// RecordFailure records a failed call, appending now to the sliding
// failure window and opening the circuit if the threshold is reached.
func (b *Breaker) RecordFailure() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen, now)
		b.openedAt = now
		return
	case StateOpen:
		return
	}

	b.failureTimes = append(b.failureTimes, now)
	b.pruneFailures(now)

	if len(b.failureTimes) >= b.cfg.FailureThreshold {
		b.transition(StateOpen, now)
		b.openedAt = now
	}
}

// Reset forces the breaker back to CLOSED, clearing all failure history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureTimes = nil
	b.openedAt = time.Time{}
	b.transition(StateClosed, time.Now())
}

// FailureCount returns the number of failures currently inside the window.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneFailures(time.Now())
	return len(b.failureTimes)
}

// must hold b.mu
func (b *Breaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for ; i < len(b.failureTimes); i++ {
		if b.failureTimes[i].After(cutoff) {
			break
		}
	}
	b.failureTimes = b.failureTimes[i:]
}

// must hold b.mu
func (b *Breaker) maybeRecover(now time.Time) {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.transition(StateHalfOpen, now)
	}
}

// must hold b.mu
func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.logger.Info("circuit breaker state change",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if b.cfg.OnStateChange != nil {
		cb := b.cfg.OnStateChange
		go cb(from, to)
	}
}
