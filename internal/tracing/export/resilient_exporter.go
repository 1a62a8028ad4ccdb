package export

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/metrics"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"go.uber.org/zap"
)

const defaultExportTimeout = 10 * time.Second

// ResilientExporter routes spans to a primary backend behind a circuit
// breaker, failing over to a secondary backend on failure or while the
// circuit is open. Fallback failure means the spans are lost: that is logged
// as a data-loss signal but never propagated to the instrumented path as
// anything other than an error return to the (asynchronous) caller.
type ResilientExporter struct {
	primary  SpanExporter
	fallback SpanExporter
	breaker  *CircuitBreaker
	timeout  time.Duration
	metrics  *metrics.TracingMetrics
	logger   *zap.Logger
	now      func() time.Time

	primarySuccess  atomic.Int64
	primaryFailure  atomic.Int64
	fallbackSuccess atomic.Int64
	fallbackFailure atomic.Int64
}

var _ SpanExporter = (*ResilientExporter)(nil)

func NewResilientExporter(
	primary SpanExporter,
	fallback SpanExporter,
	breaker *CircuitBreaker,
	timeout time.Duration,
	m *metrics.TracingMetrics,
	logger *zap.Logger,
) *ResilientExporter {
	if timeout <= 0 {
		timeout = defaultExportTimeout
	}
	return &ResilientExporter{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		timeout:  timeout,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Name identifies the composite for logs and metrics.
func (r *ResilientExporter) Name() string {
	return r.primary.Name() + "+" + r.fallback.Name()
}

// Export attempts the primary backend unless the circuit is open, then the
// fallback in the same call on any primary failure. Returns an error only
// when both backends failed and the spans are lost.
func (r *ResilientExporter) Export(ctx context.Context, spans []*model.Span) error {
	if len(spans) == 0 {
		return nil
	}

	if r.breaker.Allow() {
		start := r.now()
		err := r.exportWithTimeout(ctx, r.primary, spans)
		elapsed := r.now().Sub(start)
		if err == nil {
			r.breaker.RecordSuccess(elapsed)
			r.primarySuccess.Add(1)
			r.metrics.RecordExport(r.primary.Name(), true)
			r.publishCircuit()
			return nil
		}
		r.breaker.RecordFailure(elapsed)
		r.primaryFailure.Add(1)
		r.metrics.RecordExport(r.primary.Name(), false)
		r.logger.Warn("Primary backend export failed, falling back",
			zap.String("backend", r.primary.Name()),
			zap.Int("spans", len(spans)),
			zap.Error(err),
		)
	} else {
		r.logger.Debug("Circuit open, routing spans directly to fallback",
			zap.Int("spans", len(spans)))
	}
	r.publishCircuit()

	if err := r.exportWithTimeout(ctx, r.fallback, spans); err != nil {
		r.fallbackFailure.Add(1)
		r.metrics.RecordExport(r.fallback.Name(), false)
		r.metrics.RecordLostSpans(len(spans))
		r.logger.Error("Fallback backend export failed, spans lost",
			zap.String("backend", r.fallback.Name()),
			zap.Int("spans", len(spans)),
			zap.Error(err),
		)
		return err
	}
	r.fallbackSuccess.Add(1)
	r.metrics.RecordExport(r.fallback.Name(), true)
	return nil
}

func (r *ResilientExporter) exportWithTimeout(ctx context.Context, backend SpanExporter, spans []*model.Span) error {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return backend.Export(tctx, spans)
}

func (r *ResilientExporter) publishCircuit() {
	r.metrics.RecordCircuit(circuitStateValue(r.breaker.State()), r.breaker.FailureRate(), r.breaker.SlowCallRate())
}

func circuitStateValue(s CircuitState) float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	}
	return 0
}

// Health is the snapshot served by the health endpoint.
type Health struct {
	CircuitState    CircuitState `json:"circuit_state"`
	FailureRate     float64      `json:"failure_rate"`
	SlowCallRate    float64      `json:"slow_call_rate"`
	PrimaryBackend  string       `json:"primary_backend"`
	FallbackBackend string       `json:"fallback_backend"`
	PrimarySuccess  int64        `json:"primary_success"`
	PrimaryFailure  int64        `json:"primary_failure"`
	FallbackSuccess int64        `json:"fallback_success"`
	FallbackFailure int64        `json:"fallback_failure"`
	LastTransition  time.Time    `json:"last_transition"`
}

func (r *ResilientExporter) Health() Health {
	return Health{
		CircuitState:    r.breaker.State(),
		FailureRate:     r.breaker.FailureRate(),
		SlowCallRate:    r.breaker.SlowCallRate(),
		PrimaryBackend:  r.primary.Name(),
		FallbackBackend: r.fallback.Name(),
		PrimarySuccess:  r.primarySuccess.Load(),
		PrimaryFailure:  r.primaryFailure.Load(),
		FallbackSuccess: r.fallbackSuccess.Load(),
		FallbackFailure: r.fallbackFailure.Load(),
		LastTransition:  r.breaker.LastTransition(),
	}
}
