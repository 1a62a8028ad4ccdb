package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testBreakerConfig() BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.MinimumCalls = 5
	cfg.OpenDuration = 60 * time.Second
	cfg.HalfOpenMaxCalls = 3
	return cfg
}

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(cfg, zap.NewNop())
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("Starts closed and allows calls", func(t *testing.T) {
		b, _ := newTestBreaker(testBreakerConfig())
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Allow())
	})

	t.Run("Opens once failure rate exceeds threshold over minimum calls", func(t *testing.T) {
		b, _ := newTestBreaker(testBreakerConfig())
		for i := 0; i < 5; i++ {
			assert.True(t, b.Allow())
			b.RecordFailure(time.Millisecond)
		}
		assert.Equal(t, StateOpen, b.State())
		assert.False(t, b.Allow())
	})

	t.Run("Stays closed below the minimum sample size", func(t *testing.T) {
		b, _ := newTestBreaker(testBreakerConfig())
		for i := 0; i < 4; i++ {
			b.RecordFailure(time.Millisecond)
		}
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("Opens on slow-call rate even when calls succeed", func(t *testing.T) {
		cfg := testBreakerConfig()
		cfg.SlowCallDuration = 10 * time.Millisecond
		b, _ := newTestBreaker(cfg)
		for i := 0; i < 5; i++ {
			b.RecordSuccess(50 * time.Millisecond)
		}
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("Transitions to half-open after the wait duration", func(t *testing.T) {
		b, now := newTestBreaker(testBreakerConfig())
		for i := 0; i < 5; i++ {
			b.RecordFailure(time.Millisecond)
		}
		assert.False(t, b.Allow())

		*now = now.Add(61 * time.Second)
		assert.True(t, b.Allow())
		assert.Equal(t, StateHalfOpen, b.State())
	})

	t.Run("A single half-open failure reopens the circuit", func(t *testing.T) {
		b, now := newTestBreaker(testBreakerConfig())
		for i := 0; i < 5; i++ {
			b.RecordFailure(time.Millisecond)
		}
		*now = now.Add(61 * time.Second)
		assert.True(t, b.Allow())
		b.RecordFailure(time.Millisecond)
		assert.Equal(t, StateOpen, b.State())
		assert.False(t, b.Allow())
	})

	t.Run("A run of half-open successes closes the circuit", func(t *testing.T) {
		b, now := newTestBreaker(testBreakerConfig())
		for i := 0; i < 5; i++ {
			b.RecordFailure(time.Millisecond)
		}
		*now = now.Add(61 * time.Second)
		for i := 0; i < 3; i++ {
			assert.True(t, b.Allow())
			b.RecordSuccess(time.Millisecond)
		}
		assert.Equal(t, StateClosed, b.State())
		// The window was reset, so old failures no longer count.
		b.RecordFailure(time.Millisecond)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("Half-open admits only the configured number of trial calls", func(t *testing.T) {
		b, now := newTestBreaker(testBreakerConfig())
		for i := 0; i < 5; i++ {
			b.RecordFailure(time.Millisecond)
		}
		*now = now.Add(61 * time.Second)
		for i := 0; i < 3; i++ {
			assert.True(t, b.Allow())
		}
		assert.False(t, b.Allow())
	})
}
