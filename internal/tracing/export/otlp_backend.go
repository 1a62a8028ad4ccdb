package export

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/italoag/wallet-sub007/internal/tracing/model"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	otlpcommon "go.opentelemetry.io/proto/otlp/common/v1"
	otlpresource "go.opentelemetry.io/proto/otlp/resource/v1"
	otlptrace "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// OTLPBackend ships spans to an OpenTelemetry collector over gRPC. This is
// the primary backend: any conforming tracing backend can sit behind it.
type OTLPBackend struct {
	name        string
	serviceName string
	client      protoTrace.TraceServiceClient
	logger      *zap.Logger
}

func NewOTLPBackend(name, serviceName string, conn grpc.ClientConnInterface, logger *zap.Logger) *OTLPBackend {
	return &OTLPBackend{
		name:        name,
		serviceName: serviceName,
		client:      protoTrace.NewTraceServiceClient(conn),
		logger:      logger,
	}
}

func (b *OTLPBackend) Name() string {
	return b.name
}

func (b *OTLPBackend) Export(ctx context.Context, spans []*model.Span) error {
	scopeSpans := make([]*otlptrace.Span, 0, len(spans))
	for _, span := range spans {
		converted, err := toOTLPSpan(span)
		if err != nil {
			b.logger.Warn("Skipping span that cannot be converted to OTLP",
				zap.String("span_id", span.SpanID), zap.Error(err))
			continue
		}
		scopeSpans = append(scopeSpans, converted)
	}
	if len(scopeSpans) == 0 {
		return nil
	}

	req := &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: []*otlptrace.ResourceSpans{
			{
				Resource: &otlpresource.Resource{
					Attributes: []*otlpcommon.KeyValue{
						{
							Key: "service.name",
							Value: &otlpcommon.AnyValue{
								Value: &otlpcommon.AnyValue_StringValue{StringValue: b.serviceName},
							},
						},
					},
				},
				ScopeSpans: []*otlptrace.ScopeSpans{{Spans: scopeSpans}},
			},
		},
	}
	if _, err := b.client.Export(ctx, req); err != nil {
		return fmt.Errorf("otlp export failed: %w", err)
	}
	return nil
}

func toOTLPSpan(span *model.Span) (*otlptrace.Span, error) {
	traceID, err := hex.DecodeString(span.TraceID)
	if err != nil {
		return nil, fmt.Errorf("bad trace id %q: %w", span.TraceID, err)
	}
	spanID, err := hex.DecodeString(span.SpanID)
	if err != nil {
		return nil, fmt.Errorf("bad span id %q: %w", span.SpanID, err)
	}
	var parentSpanID []byte
	if span.ParentSpanID != "" {
		parentSpanID, err = hex.DecodeString(span.ParentSpanID)
		if err != nil {
			return nil, fmt.Errorf("bad parent span id %q: %w", span.ParentSpanID, err)
		}
	}

	attrs := span.Attributes()
	kvs := make([]*otlpcommon.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		kvs = append(kvs, &otlpcommon.KeyValue{
			Key: attr.Key,
			Value: &otlpcommon.AnyValue{
				Value: &otlpcommon.AnyValue_StringValue{StringValue: attr.Value},
			},
		})
	}

	status, errorType := span.Status()
	otlpStatus := &otlptrace.Status{Code: otlptrace.Status_STATUS_CODE_OK}
	if status == model.StatusError {
		otlpStatus = &otlptrace.Status{
			Code:    otlptrace.Status_STATUS_CODE_ERROR,
			Message: errorType,
		}
	}

	return &otlptrace.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		ParentSpanId:      parentSpanID,
		Name:              span.Name,
		Kind:              toOTLPKind(span.Kind),
		StartTimeUnixNano: uint64(span.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(span.EndTime.UnixNano()),
		Attributes:        kvs,
		Status:            otlpStatus,
	}, nil
}

func toOTLPKind(kind model.SpanKind) otlptrace.Span_SpanKind {
	switch kind {
	case model.SpanKindProducer:
		return otlptrace.Span_SPAN_KIND_PRODUCER
	case model.SpanKindConsumer:
		return otlptrace.Span_SPAN_KIND_CONSUMER
	case model.SpanKindClient:
		return otlptrace.Span_SPAN_KIND_CLIENT
	default:
		return otlptrace.Span_SPAN_KIND_INTERNAL
	}
}
