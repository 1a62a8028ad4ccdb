package propagation

import (
	"context"
	"strings"
	"sync"

	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"github.com/italoag/wallet-sub007/internal/tracing/tracer"
	"go.uber.org/zap"
)

// State is the ambient propagation state a non-blocking pipeline threads
// through its stages. It is treated as immutable: capture and restore
// allocate new maps instead of mutating shared ones, so concurrent
// independent pipelines never interfere.
type State map[string]interface{}

const (
	stateKeySpan    = "tracing.span"
	stateKeyContext = "tracing.context"
	stateKeyWorker  = "tracing.worker"
)

// ReactivePropagator captures and restores trace context across asynchronous
// stage boundaries that may resume on a different worker. Failures inside
// capture/restore degrade to no-ops: pipelines never observe tracing errors.
type ReactivePropagator struct {
	flagStore *flags.Store
	workerID  func() string
	logger    *zap.Logger
	logOnce   sync.Once
}

// NewReactivePropagator builds a propagator. workerID is the host-provided
// accessor for the identifier of the currently executing worker.
func NewReactivePropagator(flagStore *flags.Store, workerID func() string, logger *zap.Logger) *ReactivePropagator {
	return &ReactivePropagator{
		flagStore: flagStore,
		workerID:  workerID,
		logger:    logger,
	}
}

// Capture reads the current span from ctx and returns a pure function that
// inserts the trace context, the span and the originating worker id into a
// propagation state under fixed keys. Capture is idempotent: re-capturing an
// already-captured state overwrites the same keys. With no active span it
// returns the identity function.
func (p *ReactivePropagator) Capture(ctx context.Context) (write func(State) State) {
	write = identity
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Recovered from panic while capturing trace context", zap.Any("panic", r))
			write = identity
		}
	}()

	if !p.flagStore.IsEnabled(flags.Reactive) {
		return identity
	}
	span := tracer.SpanFromContext(ctx)
	if span == nil {
		p.logOnce.Do(func() {
			p.logger.Debug("No active span to capture for reactive propagation")
		})
		return identity
	}
	spanCtx := span.Context()
	origin := p.workerID()

	return func(state State) State {
		next := make(State, len(state)+3)
		for k, v := range state {
			next[k] = v
		}
		next[stateKeySpan] = span
		next[stateKeyContext] = spanCtx
		next[stateKeyWorker] = origin
		return next
	}
}

// Restore extracts the span from a propagated state. When the current worker
// differs from the one recorded at capture time, the hop is made visible on
// the span via worker.id and worker.scheduler attributes. Returns nil when
// the state carries no context.
func (p *ReactivePropagator) Restore(state State) (span *model.Span) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Recovered from panic while restoring trace context", zap.Any("panic", r))
			span = nil
		}
	}()

	if !p.flagStore.IsEnabled(flags.Reactive) {
		return nil
	}
	span, ok := state[stateKeySpan].(*model.Span)
	if !ok {
		return nil
	}
	origin, _ := state[stateKeyWorker].(string)
	current := p.workerID()
	if origin != "" && current != "" && origin != current {
		span.SetAttribute("worker.id", current)
		span.SetAttribute("worker.scheduler", schedulerClass(current))
	}
	return span
}

// ContextFromState returns the propagated trace context, if any.
func ContextFromState(state State) (model.TraceContext, bool) {
	spanCtx, ok := state[stateKeyContext].(model.TraceContext)
	return spanCtx, ok
}

func identity(state State) State {
	return state
}

// schedulerClass infers the scheduler family from a worker identifier so
// cross-worker hops are diagnosable in the trace.
func schedulerClass(workerID string) string {
	id := strings.ToLower(workerID)
	switch {
	case strings.Contains(id, "parallel"):
		return "parallel"
	case strings.Contains(id, "bounded"), strings.Contains(id, "elastic"), strings.Contains(id, "io"):
		return "bounded-io"
	case strings.Contains(id, "single"):
		return "single"
	case strings.Contains(id, "immediate"):
		return "immediate"
	default:
		return "unknown"
	}
}
