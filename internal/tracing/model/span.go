package model

import (
	"encoding/json"
	"sync"
	"time"
)

type SpanKind string

const (
	SpanKindInternal SpanKind = "INTERNAL"
	SpanKindProducer SpanKind = "PRODUCER"
	SpanKindConsumer SpanKind = "CONSUMER"
	SpanKindClient   SpanKind = "CLIENT"
)

type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// Attribute is a single key/value pair on a span. Attributes keep their
// insertion order.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Span is a timed record of one unit of work. A span is mutable (attributes,
// status) while its operation executes, is finalized exactly once via Finish,
// and must be treated as immutable afterwards.
type Span struct {
	TraceID      string    `json:"trace_id"`
	SpanID       string    `json:"span_id"`
	ParentSpanID string    `json:"parent_span_id,omitempty"`
	Name         string    `json:"name"`
	Kind         SpanKind  `json:"kind"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Sampled      bool      `json:"sampled"`

	mu        sync.Mutex
	status    Status
	errorType string
	attrKeys  []string
	attrs     map[string]string
	finished  bool
	lastTouch time.Time
}

// NewSpan starts a span for the given context. parentSpanID may be empty, in
// which case the span is a trace root.
func NewSpan(ctx TraceContext, parentSpanID, name string, kind SpanKind, start time.Time) *Span {
	return &Span{
		TraceID:      ctx.TraceID,
		SpanID:       ctx.SpanID,
		ParentSpanID: parentSpanID,
		Name:         name,
		Kind:         kind,
		StartTime:    start,
		Sampled:      ctx.Sampled,
		status:       StatusOK,
		attrs:        make(map[string]string),
		lastTouch:    start,
	}
}

// Context returns the propagation triple for this span.
func (s *Span) Context() TraceContext {
	return TraceContext{TraceID: s.TraceID, SpanID: s.SpanID, Sampled: s.Sampled}
}

// IsRoot reports whether the span has no parent linkage.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

// SetAttribute records an attribute, overwriting in place if the key already
// exists. It is a no-op once the span is finished.
func (s *Span) SetAttribute(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if _, exists := s.attrs[key]; !exists {
		s.attrKeys = append(s.attrKeys, key)
	}
	s.attrs[key] = value
	s.lastTouch = time.Now()
}

// Attribute returns the value for key and whether it was present.
func (s *Span) Attribute(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Attributes returns a copy of the attributes in insertion order.
func (s *Span) Attributes() []Attribute {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attribute, 0, len(s.attrKeys))
	for _, k := range s.attrKeys {
		out = append(out, Attribute{Key: k, Value: s.attrs[k]})
	}
	return out
}

// RewriteAttributes applies fn to every attribute value. Used to scrub
// sensitive data before the span leaves the process. No-op once finished.
func (s *Span) RewriteAttributes(fn func(key, value string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	for _, k := range s.attrKeys {
		s.attrs[k] = fn(k, s.attrs[k])
	}
}

// MarkError flags the span as errored with a classifying error type.
func (s *Span) MarkError(errorType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.status = StatusError
	s.errorType = errorType
	s.lastTouch = time.Now()
}

// Finish finalizes the span at end. The first call wins; later calls report
// false and change nothing, so end time never moves once set.
func (s *Span) Finish(end time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	if end.Before(s.StartTime) {
		end = s.StartTime
	}
	s.EndTime = end
	s.finished = true
	return true
}

// LastActivity is the time of the most recent mutation: span start, the last
// attribute write, or the last error mark. It distinguishes a long-running
// span that is still being worked on from one that was abandoned.
func (s *Span) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouch
}

// IsFinished reports whether Finish has been called.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Status returns the span status and error type (empty unless errored).
func (s *Span) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.errorType
}

// HasError reports whether the span was marked errored.
func (s *Span) HasError() bool {
	st, _ := s.Status()
	return st == StatusError
}

// Duration is the elapsed time between start and end. Zero until finished.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

type spanDocument struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	Kind         SpanKind          `json:"kind"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Status       Status            `json:"status"`
	ErrorType    string            `json:"error_type,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// MarshalJSON renders the span as a flat document suitable for indexing.
func (s *Span) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := make(map[string]string, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	return json.Marshal(spanDocument{
		TraceID:      s.TraceID,
		SpanID:       s.SpanID,
		ParentSpanID: s.ParentSpanID,
		Name:         s.Name,
		Kind:         s.Kind,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Status:       s.status,
		ErrorType:    s.errorType,
		Attributes:   attrs,
	})
}
