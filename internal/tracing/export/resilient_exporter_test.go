package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/metrics"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	name     string
	err      error
	attempts int
}

func (f *fakeBackend) Export(ctx context.Context, spans []*model.Span) error {
	f.attempts++
	return f.err
}

func (f *fakeBackend) Name() string {
	return f.name
}

func testSpans() []*model.Span {
	span := model.NewSpan(model.NewRootContext(), "", "op", model.SpanKindInternal, time.Now())
	span.Finish(time.Now())
	return []*model.Span{span}
}

func newResilient(primary, fallback *fakeBackend) (*ResilientExporter, *time.Time) {
	cfg := DefaultBreakerConfig()
	cfg.MinimumCalls = 5
	breaker := NewCircuitBreaker(cfg, zap.NewNop())
	now := time.Now()
	breaker.now = func() time.Time { return now }
	r := NewResilientExporter(primary, fallback, breaker, time.Second, metrics.NewTracingMetrics(), zap.NewNop())
	r.now = func() time.Time { return now }
	return r, &now
}

func TestResilientExporter(t *testing.T) {
	t.Run("Healthy primary receives spans, fallback is untouched", func(t *testing.T) {
		primary := &fakeBackend{name: "otlp"}
		fallback := &fakeBackend{name: "elasticsearch"}
		r, _ := newResilient(primary, fallback)

		require.NoError(t, r.Export(context.Background(), testSpans()))
		assert.Equal(t, 1, primary.attempts)
		assert.Zero(t, fallback.attempts)
		assert.EqualValues(t, 1, r.Health().PrimarySuccess)
	})

	t.Run("Names itself after both backends", func(t *testing.T) {
		r, _ := newResilient(&fakeBackend{name: "otlp"}, &fakeBackend{name: "elasticsearch"})
		assert.Equal(t, "otlp+elasticsearch", r.Name())
	})

	t.Run("Primary failure falls back within the same call", func(t *testing.T) {
		primary := &fakeBackend{name: "otlp", err: errors.New("collector down")}
		fallback := &fakeBackend{name: "elasticsearch"}
		r, _ := newResilient(primary, fallback)

		require.NoError(t, r.Export(context.Background(), testSpans()))
		assert.Equal(t, 1, primary.attempts)
		assert.Equal(t, 1, fallback.attempts)
	})

	t.Run("Circuit opens after the failure threshold and primary sees zero attempts while open", func(t *testing.T) {
		primary := &fakeBackend{name: "otlp", err: errors.New("collector down")}
		fallback := &fakeBackend{name: "elasticsearch"}
		r, _ := newResilient(primary, fallback)

		for i := 0; i < 5; i++ {
			require.NoError(t, r.Export(context.Background(), testSpans()))
		}
		assert.Equal(t, StateOpen, r.Health().CircuitState)

		attemptsWhenOpened := primary.attempts
		require.NoError(t, r.Export(context.Background(), testSpans()))
		assert.Equal(t, attemptsWhenOpened, primary.attempts, "no primary attempts while OPEN")
		assert.Equal(t, 6, fallback.attempts)
	})

	t.Run("After the wait duration the next export trials primary again", func(t *testing.T) {
		primary := &fakeBackend{name: "otlp", err: errors.New("collector down")}
		fallback := &fakeBackend{name: "elasticsearch"}
		r, now := newResilient(primary, fallback)

		for i := 0; i < 5; i++ {
			require.NoError(t, r.Export(context.Background(), testSpans()))
		}
		require.Equal(t, StateOpen, r.Health().CircuitState)
		attemptsWhenOpened := primary.attempts

		*now = now.Add(61 * time.Second)
		primary.err = nil
		require.NoError(t, r.Export(context.Background(), testSpans()))
		assert.Equal(t, attemptsWhenOpened+1, primary.attempts)
		assert.EqualValues(t, 1, r.Health().PrimarySuccess)
	})

	t.Run("Fallback failure loses the spans and reports the error", func(t *testing.T) {
		primary := &fakeBackend{name: "otlp", err: errors.New("collector down")}
		fallback := &fakeBackend{name: "elasticsearch", err: errors.New("cluster red")}
		r, _ := newResilient(primary, fallback)

		err := r.Export(context.Background(), testSpans())
		assert.Error(t, err)
		assert.EqualValues(t, 1, r.Health().FallbackFailure)
	})

	t.Run("Empty batches are a no-op", func(t *testing.T) {
		primary := &fakeBackend{name: "otlp"}
		fallback := &fakeBackend{name: "elasticsearch"}
		r, _ := newResilient(primary, fallback)
		require.NoError(t, r.Export(context.Background(), nil))
		assert.Zero(t, primary.attempts)
	})
}
