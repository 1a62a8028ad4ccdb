package tracer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"github.com/italoag/wallet-sub007/internal/tracing/sanitize"
	"go.uber.org/zap"
)

// Sink receives finished, scrubbed spans. The tail sampler implements this.
type Sink interface {
	Offer(span *model.Span)
}

type spanContextKey struct{}

// ContextWithSpan returns a context carrying span as the current span.
func ContextWithSpan(ctx context.Context, span *model.Span) context.Context {
	if span == nil {
		return ctx
	}
	return context.WithValue(ctx, spanContextKey{}, span)
}

// SpanFromContext returns the current span, or nil when none is active.
func SpanFromContext(ctx context.Context) *model.Span {
	span, _ := ctx.Value(spanContextKey{}).(*model.Span)
	return span
}

// Tracer owns span lifecycles for the host application: start a unit of work,
// optionally mark it errored, finish it. Finished spans are scrubbed and
// handed to the sampler sink. Instrumentation areas disabled via feature
// flags skip span creation entirely.
type Tracer struct {
	flagStore   *flags.Store
	sink        Sink
	logger      *zap.Logger
	now         func() time.Time
	idleTimeout time.Duration

	mu   sync.Mutex
	open map[*model.Span]struct{}
}

const defaultIdleTimeout = 5 * time.Minute

func NewTracer(flagStore *flags.Store, sink Sink, idleTimeout time.Duration, logger *zap.Logger) *Tracer {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &Tracer{
		flagStore:   flagStore,
		sink:        sink,
		logger:      logger,
		now:         time.Now,
		idleTimeout: idleTimeout,
		open:        make(map[*model.Span]struct{}),
	}
}

// StartSpan begins a span named name as a child of the context's current
// span, or as a trace root when none is active. When the instrumentation
// area is disabled it returns the parent context and a nil span; Tag,
// MarkError and Finish all accept nil, making the whole point a true no-op.
func (t *Tracer) StartSpan(
	ctx context.Context,
	name string,
	kind model.SpanKind,
	area flags.Component,
) (context.Context, *model.Span) {
	if !t.flagStore.IsEnabled(area) {
		return ctx, nil
	}
	var spanCtx model.TraceContext
	var parentSpanID string
	if parent := SpanFromContext(ctx); parent != nil {
		spanCtx = model.ChildContext(parent.Context())
		parentSpanID = parent.SpanID
	} else {
		spanCtx = model.NewRootContext()
	}
	span := model.NewSpan(spanCtx, parentSpanID, name, kind, t.now())
	t.track(span)
	return ContextWithSpan(ctx, span), span
}

// StartSpanWithRemoteParent begins a span linked to a trace context received
// from another process (e.g. a message envelope). An invalid remote context
// degrades to a new root span.
func (t *Tracer) StartSpanWithRemoteParent(
	ctx context.Context,
	name string,
	kind model.SpanKind,
	area flags.Component,
	remote model.TraceContext,
) (context.Context, *model.Span) {
	if !t.flagStore.IsEnabled(area) {
		return ctx, nil
	}
	var spanCtx model.TraceContext
	var parentSpanID string
	if remote.IsValid() {
		spanCtx = model.ChildContext(remote)
		parentSpanID = remote.SpanID
	} else {
		spanCtx = model.NewRootContext()
	}
	span := model.NewSpan(spanCtx, parentSpanID, name, kind, t.now())
	t.track(span)
	return ContextWithSpan(ctx, span), span
}

// Tag records an attribute on span. Values are scrubbed at completion, not
// here, so repeated tagging stays cheap.
func (t *Tracer) Tag(span *model.Span, key, value string) {
	if span == nil {
		return
	}
	span.SetAttribute(key, value)
}

// MarkError flags span as errored using the error's type name.
func (t *Tracer) MarkError(span *model.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.MarkError(errorType(err))
	span.SetAttribute("error.message", err.Error())
}

// Finish scrubs the span's attributes, finalizes it and hands it to the
// sampler. Only the first Finish for a span reaches the sink.
func (t *Tracer) Finish(span *model.Span) {
	if span == nil {
		return
	}
	span.RewriteAttributes(sanitize.ByAttributeKey)
	if !span.Finish(t.now()) {
		return
	}
	t.untrack(span)
	t.sink.Offer(span)
}

func (t *Tracer) track(span *model.Span) {
	t.mu.Lock()
	t.open[span] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracer) untrack(span *model.Span) {
	t.mu.Lock()
	delete(t.open, span)
	t.mu.Unlock()
}

// OpenSpans reports how many spans are started but not yet finished.
func (t *Tracer) OpenSpans() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

func errorType(err error) string {
	type typed interface{ Type() string }
	if te, ok := err.(typed); ok {
		return te.Type()
	}
	return fmt.Sprintf("%T", err)
}
