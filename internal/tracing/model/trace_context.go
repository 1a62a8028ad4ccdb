package model

import (
	"strings"

	"github.com/google/uuid"
)

// TraceContext is the (traceId, spanId, sampled) triple needed to create a
// child span or to link spans across a process boundary. Contexts are value
// types: propagation always copies, never mutates in place.
type TraceContext struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// NewRootContext creates a fresh context for a new trace. The trace id is
// 128 bits (32 lowercase hex chars), the span id 64 bits (16 hex chars).
// Sampled starts false; the tail sampler owns the final decision.
func NewRootContext() TraceContext {
	return TraceContext{
		TraceID: newTraceID(),
		SpanID:  newSpanID(),
	}
}

// ChildContext derives a context for a child span: same trace id, fresh span
// id. The parent linkage itself is recorded on the Span, not here.
func ChildContext(parent TraceContext) TraceContext {
	return TraceContext{
		TraceID: parent.TraceID,
		SpanID:  newSpanID(),
		Sampled: parent.Sampled,
	}
}

// Equal compares by (traceId, spanId); the sampled flag is advisory.
func (c TraceContext) Equal(other TraceContext) bool {
	return c.TraceID == other.TraceID && c.SpanID == other.SpanID
}

// IsValid reports whether the context carries usable identifiers.
func (c TraceContext) IsValid() bool {
	return len(c.TraceID) == 32 && len(c.SpanID) == 16
}

func newTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newSpanID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
