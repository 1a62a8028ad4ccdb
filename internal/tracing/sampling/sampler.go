package sampling

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/export"
	"github.com/italoag/wallet-sub007/internal/tracing/metrics"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"go.uber.org/zap"
)

const (
	DefaultWindow             = 5 * time.Second
	DefaultSlowTraceThreshold = 500 * time.Millisecond
	DefaultProbability        = 0.10
	DefaultMaxBufferedSpans   = 100_000
)

const (
	ReasonError         = "error"
	ReasonSlowTrace     = "slow_trace"
	ReasonProbability   = "probability"
	ReasonWindowExpired = "window_expired"
	ReasonDropped       = "dropped"
)

type SamplerConfig struct {
	Window             time.Duration
	SlowTraceThreshold time.Duration
	Probability        float64
	MaxBufferedSpans   int64
}

func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Window:             DefaultWindow,
		SlowTraceThreshold: DefaultSlowTraceThreshold,
		Probability:        DefaultProbability,
		MaxBufferedSpans:   DefaultMaxBufferedSpans,
	}
}

// Sampler buffers finished spans per trace and decides after the fact which
// traces are worth exporting. Traces with any error span or with a total
// duration above the slow threshold are always exported; the rest go through
// deterministic probability sampling keyed by trace id.
type Sampler struct {
	config   SamplerConfig
	buffer   *TraceBuffer
	exporter export.SpanExporter
	metrics  *metrics.TracingMetrics
	logger   *zap.Logger
	now      func() time.Time

	evaluated atomic.Int64
	sampled   atomic.Int64
	dropped   atomic.Int64
	forced    atomic.Int64
}

func NewSampler(
	config SamplerConfig,
	exporter export.SpanExporter,
	m *metrics.TracingMetrics,
	logger *zap.Logger,
) (*Sampler, error) {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.SlowTraceThreshold <= 0 {
		config.SlowTraceThreshold = DefaultSlowTraceThreshold
	}
	if config.Probability <= 0 {
		config.Probability = DefaultProbability
	}
	if config.MaxBufferedSpans <= 0 {
		config.MaxBufferedSpans = DefaultMaxBufferedSpans
	}
	buffer, err := NewTraceBuffer(config.MaxBufferedSpans, logger)
	if err != nil {
		return nil, err
	}
	return &Sampler{
		config:   config,
		buffer:   buffer,
		exporter: exporter,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Offer accepts a finished span from the tracer. Safe for concurrent use.
func (s *Sampler) Offer(span *model.Span) {
	if span == nil {
		return
	}
	s.buffer.Append(span, s.now())
	s.metrics.SetBufferedSpans(int(s.buffer.SpanCount()))
}

// Start launches the decision loop and returns a stop function. The loop
// runs several times per window so complete traces do not wait for the full
// window before being evaluated.
func (s *Sampler) Start() func() {
	interval := s.config.Window / 5
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Flush(s.now())
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() {
		close(done)
		s.Flush(s.now().Add(s.config.Window))
		s.buffer.Close()
	}
}

// Flush drains every due trace group, applies the decision rule and exports
// the sampled ones. Incomplete traces whose window expired are evaluated
// under the always-sample rule only.
func (s *Sampler) Flush(now time.Time) {
	groups := s.buffer.Drain(now, s.config.Window)
	for _, group := range groups {
		s.evaluated.Add(1)
		sampled, reason := s.decide(group)
		if !sampled {
			s.dropped.Add(1)
			s.metrics.RecordDecision(ReasonDropped)
			continue
		}
		s.sampled.Add(1)
		if reason != ReasonProbability {
			s.forced.Add(1)
		}
		s.metrics.RecordDecision(reason)
		if err := s.exporter.Export(context.Background(), group.Spans); err != nil {
			s.logger.Error("Failed to export sampled trace",
				zap.String("trace_id", group.TraceID),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
	}
	s.metrics.SetBufferedSpans(int(s.buffer.SpanCount()))
}

func (s *Sampler) decide(group TraceGroup) (bool, string) {
	if anyError(group.Spans) {
		if group.Complete {
			return true, ReasonError
		}
		return true, ReasonWindowExpired
	}
	if traceDuration(group.Spans) > s.config.SlowTraceThreshold {
		if group.Complete {
			return true, ReasonSlowTrace
		}
		return true, ReasonWindowExpired
	}
	if !group.Complete {
		return false, ReasonDropped
	}
	if traceProbability(group.TraceID) < s.config.Probability {
		return true, ReasonProbability
	}
	return false, ReasonDropped
}

func anyError(spans []*model.Span) bool {
	for _, span := range spans {
		if span.HasError() {
			return true
		}
	}
	return false
}

// traceDuration is the wall-clock extent of the trace, from the earliest
// start to the latest end across all buffered spans.
func traceDuration(spans []*model.Span) time.Duration {
	if len(spans) == 0 {
		return 0
	}
	start := spans[0].StartTime
	end := spans[0].EndTime
	for _, span := range spans[1:] {
		if span.StartTime.Before(start) {
			start = span.StartTime
		}
		if span.EndTime.After(end) {
			end = span.EndTime
		}
	}
	return end.Sub(start)
}

// traceProbability maps a trace id to a uniform value in [0, 1) so the
// baseline sampling decision is reproducible for a given id.
func traceProbability(traceID string) float64 {
	h := fnv.New64a()
	h.Write([]byte(traceID))
	return float64(h.Sum64()) / float64(math.MaxUint64)
}

// SamplerCounts is the snapshot served by the health endpoint.
type SamplerCounts struct {
	Buffered  int   `json:"buffered"`
	Evaluated int64 `json:"evaluated"`
	Sampled   int64 `json:"sampled"`
	Dropped   int64 `json:"dropped"`
	Forced    int64 `json:"forced"`
	Evictions int64 `json:"evictions"`
}

func (s *Sampler) Counts() SamplerCounts {
	return SamplerCounts{
		Buffered:  int(s.buffer.SpanCount()),
		Evaluated: s.evaluated.Load(),
		Sampled:   s.sampled.Load(),
		Dropped:   s.dropped.Load(),
		Forced:    s.forced.Load(),
		Evictions: s.evictions(),
	}
}

func (s *Sampler) evictions() int64 {
	return s.buffer.Evictions()
}
