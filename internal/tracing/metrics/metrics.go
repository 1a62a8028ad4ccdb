package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// TracingMetrics is the prometheus view of the export pipeline: per-backend
// outcomes, circuit health and sampling decisions, consumed by external
// monitoring.
type TracingMetrics struct {
	registry *prometheus.Registry

	exportTotal   *prometheus.CounterVec
	circuitState  prometheus.Gauge
	failureRate   prometheus.Gauge
	slowCallRate  prometheus.Gauge
	decisionTotal *prometheus.CounterVec
	bufferedSpans prometheus.Gauge
	lostSpans     prometheus.Counter
}

func NewTracingMetrics() *TracingMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &TracingMetrics{
		registry: registry,
		exportTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracing_export_total",
			Help: "Span export attempts by backend and outcome.",
		}, []string{"backend", "outcome"}),
		circuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracing_export_circuit_state",
			Help: "Primary backend circuit state (0=closed, 1=open, 2=half-open).",
		}),
		failureRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracing_export_failure_rate",
			Help: "Failure rate over the circuit breaker sliding window.",
		}),
		slowCallRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracing_export_slow_call_rate",
			Help: "Slow-call rate over the circuit breaker sliding window.",
		}),
		decisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracing_sampling_decisions_total",
			Help: "Tail sampling decisions by reason.",
		}, []string{"reason"}),
		bufferedSpans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracing_sampling_buffered_spans",
			Help: "Spans currently held in the tail sampling buffer.",
		}),
		lostSpans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracing_export_lost_spans_total",
			Help: "Spans dropped after both primary and fallback export failed.",
		}),
	}
	registry.MustRegister(
		m.exportTotal,
		m.circuitState,
		m.failureRate,
		m.slowCallRate,
		m.decisionTotal,
		m.bufferedSpans,
		m.lostSpans,
	)
	return m
}

func (m *TracingMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *TracingMetrics) RecordExport(backend string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.exportTotal.WithLabelValues(backend, outcome).Inc()
}

func (m *TracingMetrics) RecordCircuit(state float64, failureRate, slowCallRate float64) {
	m.circuitState.Set(state)
	m.failureRate.Set(failureRate)
	m.slowCallRate.Set(slowCallRate)
}

func (m *TracingMetrics) RecordDecision(reason string) {
	m.decisionTotal.WithLabelValues(reason).Inc()
}

func (m *TracingMetrics) SetBufferedSpans(n int) {
	m.bufferedSpans.Set(float64(n))
}

func (m *TracingMetrics) RecordLostSpans(n int) {
	m.lostSpans.Add(float64(n))
}
