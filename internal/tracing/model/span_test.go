package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTraceContext(t *testing.T) {
	t.Run("Root context has fresh 128-bit trace id and 64-bit span id", func(t *testing.T) {
		ctx := NewRootContext()
		assert.Len(t, ctx.TraceID, 32)
		assert.Len(t, ctx.SpanID, 16)
		assert.False(t, ctx.Sampled)
		assert.True(t, ctx.IsValid())
	})

	t.Run("Child context keeps the trace id but gets a new span id", func(t *testing.T) {
		parent := NewRootContext()
		child := ChildContext(parent)
		assert.Equal(t, parent.TraceID, child.TraceID)
		assert.NotEqual(t, parent.SpanID, child.SpanID)
	})

	t.Run("Equality is by trace id and span id only", func(t *testing.T) {
		ctx := NewRootContext()
		same := TraceContext{TraceID: ctx.TraceID, SpanID: ctx.SpanID, Sampled: true}
		assert.True(t, ctx.Equal(same))
		assert.False(t, ctx.Equal(ChildContext(ctx)))
	})
}

func TestSpanLifecycle(t *testing.T) {
	start := time.Now()

	t.Run("Span without parent is a trace root", func(t *testing.T) {
		span := NewSpan(NewRootContext(), "", "op", SpanKindInternal, start)
		assert.True(t, span.IsRoot())
	})

	t.Run("Finish is idempotent and end time never moves", func(t *testing.T) {
		span := NewSpan(NewRootContext(), "", "op", SpanKindInternal, start)
		end := start.Add(100 * time.Millisecond)
		assert.True(t, span.Finish(end))
		assert.False(t, span.Finish(end.Add(time.Hour)))
		assert.Equal(t, end, span.EndTime)
		assert.Equal(t, 100*time.Millisecond, span.Duration())
	})

	t.Run("End time is clamped so it never precedes start time", func(t *testing.T) {
		span := NewSpan(NewRootContext(), "", "op", SpanKindInternal, start)
		span.Finish(start.Add(-time.Second))
		assert.Equal(t, span.StartTime, span.EndTime)
	})

	t.Run("Attributes keep insertion order and overwrite in place", func(t *testing.T) {
		span := NewSpan(NewRootContext(), "", "op", SpanKindInternal, start)
		span.SetAttribute("a", "1")
		span.SetAttribute("b", "2")
		span.SetAttribute("a", "3")
		attrs := span.Attributes()
		assert.Equal(t, []Attribute{{"a", "3"}, {"b", "2"}}, attrs)
	})

	t.Run("Mutations after finish are ignored", func(t *testing.T) {
		span := NewSpan(NewRootContext(), "", "op", SpanKindInternal, start)
		span.Finish(start.Add(time.Millisecond))
		span.SetAttribute("late", "x")
		span.MarkError("late")
		_, found := span.Attribute("late")
		assert.False(t, found)
		status, _ := span.Status()
		assert.Equal(t, StatusOK, status)
	})

	t.Run("MarkError records status and error type", func(t *testing.T) {
		span := NewSpan(NewRootContext(), "", "op", SpanKindInternal, start)
		span.MarkError("timeout")
		status, errType := span.Status()
		assert.Equal(t, StatusError, status)
		assert.Equal(t, "timeout", errType)
		assert.True(t, span.HasError())
	})
}
