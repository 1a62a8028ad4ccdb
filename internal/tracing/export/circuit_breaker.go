package export

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type CircuitState string

const (
	StateClosed   CircuitState = "CLOSED"
	StateOpen     CircuitState = "OPEN"
	StateHalfOpen CircuitState = "HALF_OPEN"
)

// BreakerConfig mirrors the resilience surface of the export pipeline.
type BreakerConfig struct {
	// FailureRateThreshold opens the circuit when exceeded over the window.
	FailureRateThreshold float64
	// SlowCallRateThreshold opens the circuit when exceeded over the window.
	SlowCallRateThreshold float64
	// SlowCallDuration classifies a call as slow.
	SlowCallDuration time.Duration
	// SlidingWindowSize is the number of recent calls considered.
	SlidingWindowSize int
	// MinimumCalls is the sample size required before rates are evaluated.
	MinimumCalls int
	// OpenDuration is how long the circuit stays open before trialing.
	OpenDuration time.Duration
	// HalfOpenMaxCalls is the number of trial calls permitted half-open.
	HalfOpenMaxCalls int
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRateThreshold:  0.5,
		SlowCallRateThreshold: 0.5,
		SlowCallDuration:      5 * time.Second,
		SlidingWindowSize:     100,
		MinimumCalls:          5,
		OpenDuration:          60 * time.Second,
		HalfOpenMaxCalls:      10,
	}
}

type callOutcome struct {
	failure bool
	slow    bool
}

// CircuitBreaker guards the primary export backend. All state lives behind
// one mutex so concurrent export attempts and the half-open trial window
// can never observe inconsistent counters.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             CircuitState
	window            []callOutcome
	windowNext        int
	windowFilled      int
	halfOpenPermitted int
	halfOpenSuccesses int
	openedAt          time.Time
	lastTransition    time.Time
}

func NewCircuitBreaker(cfg BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if cfg.SlidingWindowSize <= 0 {
		cfg.SlidingWindowSize = DefaultBreakerConfig().SlidingWindowSize
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultBreakerConfig().HalfOpenMaxCalls
	}
	b := &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
		window: make([]callOutcome, cfg.SlidingWindowSize),
	}
	b.lastTransition = b.now()
	return b
}

// Allow reports whether a primary attempt may proceed. An open circuit whose
// wait has elapsed transitions to half-open and admits the caller as a trial.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.OpenDuration {
			b.transition(StateHalfOpen)
			b.halfOpenPermitted = 1
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenPermitted < b.cfg.HalfOpenMaxCalls {
			b.halfOpenPermitted++
			return true
		}
		return false
	}
	return false
}

// RecordSuccess records a successful primary call of the given duration.
func (b *CircuitBreaker) RecordSuccess(elapsed time.Duration) {
	b.record(callOutcome{slow: elapsed >= b.cfg.SlowCallDuration})
}

// RecordFailure records a failed primary call of the given duration.
func (b *CircuitBreaker) RecordFailure(elapsed time.Duration) {
	b.record(callOutcome{failure: true, slow: elapsed >= b.cfg.SlowCallDuration})
}

func (b *CircuitBreaker) record(outcome callOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.push(outcome)
		if b.windowFilled >= b.cfg.MinimumCalls &&
			(b.failureRate() > b.cfg.FailureRateThreshold || b.slowCallRate() > b.cfg.SlowCallRateThreshold) {
			b.open()
		}
	case StateHalfOpen:
		if outcome.failure {
			// A single trial failure reopens immediately.
			b.open()
			return
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenMaxCalls {
			b.resetWindow()
			b.transition(StateClosed)
		}
	case StateOpen:
		// Late results from calls admitted before opening are ignored.
	}
}

func (b *CircuitBreaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

func (b *CircuitBreaker) transition(next CircuitState) {
	if b.state == next {
		return
	}
	b.logger.Warn("Circuit breaker state transition",
		zap.String("from", string(b.state)),
		zap.String("to", string(next)),
		zap.Float64("failure_rate", b.failureRate()),
		zap.Float64("slow_call_rate", b.slowCallRate()),
	)
	b.state = next
	b.lastTransition = b.now()
}

func (b *CircuitBreaker) push(outcome callOutcome) {
	b.window[b.windowNext] = outcome
	b.windowNext = (b.windowNext + 1) % len(b.window)
	if b.windowFilled < len(b.window) {
		b.windowFilled++
	}
}

func (b *CircuitBreaker) resetWindow() {
	b.window = make([]callOutcome, b.cfg.SlidingWindowSize)
	b.windowNext = 0
	b.windowFilled = 0
}

func (b *CircuitBreaker) failureRate() float64 {
	if b.windowFilled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.windowFilled; i++ {
		if b.window[i].failure {
			failures++
		}
	}
	return float64(failures) / float64(b.windowFilled)
}

func (b *CircuitBreaker) slowCallRate() float64 {
	if b.windowFilled == 0 {
		return 0
	}
	slow := 0
	for i := 0; i < b.windowFilled; i++ {
		if b.window[i].slow {
			slow++
		}
	}
	return float64(slow) / float64(b.windowFilled)
}

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) FailureRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureRate()
}

func (b *CircuitBreaker) SlowCallRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slowCallRate()
}

// LastTransition reports when the breaker last changed state.
func (b *CircuitBreaker) LastTransition() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTransition
}
